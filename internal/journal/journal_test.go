package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenDisabled(t *testing.T) {
	store, err := Open("", "")
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Open(\"\") error = %v, want ErrDisabled", err)
	}
	if store != nil {
		t.Errorf("Open(\"\") store = %v, want nil", store)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Fatal("Open(postgres) succeeded")
	}
}

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{SessionID: "s1", ClientID: "127.0.0.1:5000", Username: "alice", Kind: KindJoin, At: base},
		{SessionID: "s2", ClientID: "127.0.0.1:5001", Username: "bob", Kind: KindJoin, At: base.Add(time.Second)},
		{SessionID: "s2", ClientID: "127.0.0.1:5001", Username: "bob", Kind: KindLeave, Reason: "exit requested", At: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record(%s) error = %v", ev.Kind, err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d events", len(got))
	}
	if got[0].Kind != KindLeave || got[0].Reason != "exit requested" || got[0].Username != "bob" {
		t.Errorf("newest event = %+v", got[0])
	}
	if got[1].Kind != KindJoin || got[1].SessionID != "s2" {
		t.Errorf("second event = %+v", got[1])
	}
	if !got[0].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("At = %v, want %v", got[0].At, base.Add(2*time.Second))
	}
}

func TestSQLiteRecordFillsTimestamp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := store.Record(ctx, Event{SessionID: "s1", ClientID: "c", Username: "carol", Kind: KindEvict}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d events, want 1", len(got))
	}
	if got[0].At.Before(before) {
		t.Errorf("At = %v, want a current timestamp", got[0].At)
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Record(ctx, Event{SessionID: "s1", ClientID: "c", Username: "dave", Kind: KindShutdown, Reason: "server stopped"}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	got, err := second.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Username != "dave" || got[0].Kind != KindShutdown {
		t.Errorf("reopened journal = %+v", got)
	}
}
