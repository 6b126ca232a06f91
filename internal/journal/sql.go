package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// sqlStore holds the statements shared by every SQL dialect.
type sqlStore struct {
	db *sql.DB
}

func (s *sqlStore) init(schema string) error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: create schema: %w", err)
	}
	return nil
}

// Record inserts one event. A zero At is replaced with the current time.
func (s *sqlStore) Record(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_events (session_id, client_id, username, kind, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.ClientID, event.Username, string(event.Kind), event.Reason, event.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s event: %w", event.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *sqlStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, client_id, username, kind, reason, at
		FROM session_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			kind string
		)
		if err := rows.Scan(&ev.SessionID, &ev.ClientID, &ev.Username, &kind, &ev.Reason, &ev.At); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
