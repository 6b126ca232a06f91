// Package server fans chat messages out to registered clients via Relay,
// evicting peers whose connection has gone away.
package server

import (
	"log/slog"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

// Relay delivers messages to the clients of a Registry.
type Relay struct {
	registry *Registry
	logger   *slog.Logger
	journal  *journalSink
}

// NewRelay creates a relay over registry. A nil logger discards output and a
// nil recorder disables the session journal.
func NewRelay(registry *Registry, logger *slog.Logger, recorder journal.Recorder) *Relay {
	if logger == nil {
		logger = discardLogger()
	}
	return &Relay{
		registry: registry,
		logger:   logger,
		journal:  newJournalSink(recorder, logger),
	}
}

// Broadcast writes message to every registered client except exclude and
// returns how many writes succeeded. An empty exclude reaches everybody.
// A failed write evicts that client; the remaining targets are still served.
func (r *Relay) Broadcast(message string, exclude ClientID) int {
	payload := frame(message)
	targets := r.registry.Snapshot()

	delivered := 0
	for _, target := range targets {
		if exclude != "" && target.ID == exclude {
			continue
		}
		if err := target.Conn.Send(payload); err != nil {
			r.evict(target, err)
			continue
		}
		delivered++
	}

	r.logger.Debug("broadcast delivered", "targets", len(targets), "delivered", delivered, "excluded", string(exclude))
	return delivered
}

// Send writes message to a single client without going through the registry.
func (r *Relay) Send(entry *ClientEntry, message string) error {
	return entry.Conn.Send(frame(message))
}

// evict drops a client whose connection failed a write. Closing the
// connection unblocks its session worker, which then emits the leave notice.
func (r *Relay) evict(target *ClientEntry, cause error) {
	_, err := r.registry.Unregister(target.ID)

	if isExpectedCloseError(cause) {
		r.logger.Debug("send to departed client failed", "client", string(target.ID), "username", target.Username, "error", cause)
	} else {
		r.logger.Warn("send failed, evicting client", "client", string(target.ID), "username", target.Username, "error", cause)
	}

	if closeErr := target.Conn.Close(); closeErr != nil && !isExpectedCloseError(closeErr) {
		r.logger.Debug("error closing evicted connection", "client", string(target.ID), "error", closeErr)
	}

	if err == nil {
		r.journal.record(target, journal.KindEvict, cause.Error())
	}
}
