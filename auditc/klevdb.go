package auditc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klev-dev/klevdb"
	"github.com/segmentio/ksuid"
)

// Open creates or opens a durable store in dir, indexed by entry id and time.
func Open(dir string) (Store, error) {
	log, err := klevdb.Open(dir, klevdb.Options{
		CreateDirs: true,
		KeyIndex:   true,
		TimeIndex:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &logStore{log: log}, nil
}

type logStore struct {
	log klevdb.Log
}

func (s *logStore) Append(entries ...Entry) error {
	msgs := make([]klevdb.Message, len(entries))
	for i, entry := range entries {
		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
		msgs[i] = klevdb.Message{
			Time:  entry.Time,
			Key:   entry.ID.Bytes(),
			Value: value,
		}
	}
	if _, err := s.log.Publish(msgs); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (s *logStore) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	maxOffset, err := s.log.NextOffset()
	if err != nil {
		return nil, fmt.Errorf("audit log offset: %w", err)
	}

	var entries []Entry
	for offset := max(maxOffset-int64(n), 0); offset < maxOffset; {
		nextOffset, msgs, err := s.log.Consume(offset, int64(n))
		if err != nil {
			return nil, fmt.Errorf("consume audit log: %w", err)
		}
		if nextOffset <= offset {
			break
		}
		offset = nextOffset

		for _, msg := range msgs {
			entry, err := decode(msg)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *logStore) Get(id ksuid.KSUID) (Entry, error) {
	msg, err := s.log.GetByKey(id.Bytes())
	switch {
	case errors.Is(err, klevdb.ErrNotFound):
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return Entry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return decode(msg)
}

func (s *logStore) Close() error {
	return s.log.Close()
}

func decode(msg klevdb.Message) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode audit entry at %d: %w", msg.Offset, err)
	}
	return entry, nil
}
