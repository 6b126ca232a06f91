// Package server keeps the set of admitted chat clients in a Registry guarded
// by a single lock.
package server

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrDuplicateID is returned when a client id is registered twice.
	ErrDuplicateID = errors.New("registry: client id already registered")
	// ErrNotFound is returned when an id is not (or no longer) registered.
	ErrNotFound = errors.New("registry: client not found")
	// ErrRegistryClosed is returned by Register after Drain.
	ErrRegistryClosed = errors.New("registry: closed")
)

// ClientEntry is a client that completed the username handshake.
// Its fields are fixed once it has been registered.
type ClientEntry struct {
	ID        ClientID
	Conn      Conn
	Username  string
	JoinedAt  time.Time
	SessionID string
	// Seq is assigned by Register and orders entries by admission.
	Seq uint64
}

// Registry maps client ids to their entries. All access goes through one
// RWMutex; no network I/O is ever performed while it is held.
type Registry struct {
	mu      sync.RWMutex
	clients map[ClientID]*ClientEntry
	seq     uint64
	closed  bool
}

// NewRegistry creates an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[ClientID]*ClientEntry),
	}
}

// Register admits entry under entry.ID.
func (r *Registry) Register(entry *ClientEntry) error {
	if entry == nil || entry.ID == "" {
		return errors.New("registry: invalid entry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.clients[entry.ID]; exists {
		return ErrDuplicateID
	}
	r.seq++
	entry.Seq = r.seq
	r.clients[entry.ID] = entry
	return nil
}

// Unregister removes and returns the entry for id. Concurrent removals of the
// same id are expected; all but the first get ErrNotFound.
func (r *Registry) Unregister(id ClientID) (*ClientEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.clients, id)
	return entry, nil
}

// LookupUsername returns the username stored for id.
func (r *Registry) LookupUsername(id ClientID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.clients[id]
	if !ok {
		return "", ErrNotFound
	}
	return entry.Username, nil
}

// Snapshot returns the entries registered at the time of the call.
func (r *Registry) Snapshot() []*ClientEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*ClientEntry, 0, len(r.clients))
	for _, entry := range r.clients {
		entries = append(entries, entry)
	}
	return entries
}

// ForEach calls fn for every entry of a point-in-time snapshot. fn runs
// without the lock held, so it may call back into the registry.
func (r *Registry) ForEach(fn func(*ClientEntry)) {
	for _, entry := range r.Snapshot() {
		fn(entry)
	}
}

// Len reports the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Drain empties the registry, refuses further registrations and returns
// what was registered.
func (r *Registry) Drain() []*ClientEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*ClientEntry, 0, len(r.clients))
	for id, entry := range r.clients {
		entries = append(entries, entry)
		delete(r.clients, id)
	}
	r.closed = true
	return entries
}
