// Package journal records session lifecycle events (join, leave, eviction,
// shutdown) to a SQL database. Message bodies are never stored.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a journal event.
type Kind string

const (
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
	KindEvict    Kind = "evict"
	KindShutdown Kind = "shutdown"
)

// Event is one session lifecycle transition.
type Event struct {
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`
	Username  string    `json:"username"`
	Kind      Kind      `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Recorder accepts events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// ErrDisabled is returned by Open when no driver is configured.
var ErrDisabled = errors.New("journal: disabled")

// Open returns a Store for the given driver. An empty driver yields
// ErrDisabled so callers can run without a journal.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		store, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mysql":
		store, err := NewMySQLStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
}
