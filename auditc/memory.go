package auditc

import (
	"fmt"
	"sync"

	"github.com/segmentio/ksuid"
)

// NewMemory keeps the latest capacity entries in memory, capacity <= 0 keeps everything.
func NewMemory(capacity int) Store {
	return &memStore{capacity: capacity}
}

type memStore struct {
	capacity int
	entries  []Entry
	mu       sync.RWMutex
}

func (m *memStore) Append(entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entries...)
	if m.capacity > 0 && len(m.entries) > m.capacity {
		m.entries = append([]Entry(nil), m.entries[len(m.entries)-m.capacity:]...)
	}
	return nil
}

func (m *memStore) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := max(len(m.entries)-n, 0)
	return append([]Entry(nil), m.entries[start:]...), nil
}

func (m *memStore) Get(id ksuid.KSUID) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ID == id {
			return m.entries[i], nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *memStore) Close() error {
	return nil
}
