package auditc

import (
	"errors"
	"time"

	"github.com/segmentio/ksuid"
)

var ErrNotFound = errors.New("audit entry not found")

// Entry is one recorded access decision.
type Entry struct {
	ID          ksuid.KSUID `json:"id"`
	Time        time.Time   `json:"time"`
	User        string      `json:"user"`
	Addr        string      `json:"addr"`
	Allowed     bool        `json:"allowed"`
	Reason      string      `json:"reason"`
	Rule        string      `json:"rule,omitempty"`
	Fingerprint string      `json:"fingerprint"`
}

type Store interface {
	Append(entries ...Entry) error
	// Tail returns up to n of the latest entries, oldest first.
	Tail(n int) ([]Entry, error)
	Get(id ksuid.KSUID) (Entry, error)
	Close() error
}
