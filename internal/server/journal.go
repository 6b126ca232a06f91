package server

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

const journalWriteTimeout = 2 * time.Second

// journalSink forwards lifecycle events to an optional recorder. Failures are
// logged and never reach the session that caused them.
type journalSink struct {
	recorder journal.Recorder
	logger   *slog.Logger
}

func newJournalSink(recorder journal.Recorder, logger *slog.Logger) *journalSink {
	return &journalSink{recorder: recorder, logger: logger}
}

func (j *journalSink) record(entry *ClientEntry, kind journal.Kind, reason string) {
	if j == nil || j.recorder == nil || entry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	err := j.recorder.Record(ctx, journal.Event{
		SessionID: entry.SessionID,
		ClientID:  string(entry.ID),
		Username:  entry.Username,
		Kind:      kind,
		Reason:    reason,
		At:        time.Now().UTC(),
	})
	if err != nil {
		j.logger.Warn("journal write failed", "client", string(entry.ID), "kind", string(kind), "error", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
