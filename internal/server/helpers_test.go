package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/journal"
)

const (
	messageTimeout = 2 * time.Second
	quietPeriod    = 150 * time.Millisecond
)

// fakeConn is an in-memory Conn. Payloads pushed with deliver are returned by
// Receive; everything sent is recorded.
type fakeConn struct {
	addr    net.Addr
	inbox   chan []byte
	sendErr error

	mu     sync.Mutex
	sent   []string
	closed bool
	done   chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:  fakeAddr(addr),
		inbox: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case payload := <-c.inbox:
		return payload, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed network connection")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return c.addr
}

func (c *fakeConn) deliver(payload string) {
	c.inbox <- []byte(payload)
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// memoryJournal collects journal events in memory.
type memoryJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (j *memoryJournal) Record(_ context.Context, event journal.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

func (j *memoryJournal) Recent(_ context.Context, limit int) ([]journal.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Event
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.events[i])
	}
	return out, nil
}

func (j *memoryJournal) Close() error { return nil }

func (j *memoryJournal) kinds(username string) []journal.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	var kinds []journal.Kind
	for _, ev := range j.events {
		if ev.Username == username {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func entryFor(id string, conn Conn, username string) *ClientEntry {
	return &ClientEntry{
		ID:       ClientID(id),
		Conn:     conn,
		Username: username,
		JoinedAt: time.Now(),
	}
}

// startTestServer runs a server on an ephemeral loopback port.
func startTestServer(t *testing.T, mutate func(*Config), opts ...Option) *Server {
	t.Helper()

	cfg := *NewConfig()
	cfg.Port = 0
	cfg.RateLimit.Burst = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv := New(cfg, opts...)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(5 * time.Second)
	})
	return srv
}

// joinClient connects username and consumes its welcome message.
func joinClient(t *testing.T, srv *Server, username string) *client.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	c, err := client.Dial(ctx, srv.Addr().String(), username)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", username, err)
	}
	t.Cleanup(func() { _ = c.Close() })

	expectMessage(t, c, WelcomeMessage(username))
	return c
}

func expectMessage(t *testing.T, c *client.Client, want string) {
	t.Helper()
	got, err := c.ReadMessage(messageTimeout)
	if err != nil {
		t.Fatalf("%s: waiting for %q: %v", c.Username, want, err)
	}
	if got != want {
		t.Fatalf("%s: got message %q, want %q", c.Username, got, want)
	}
}

func expectNoMessage(t *testing.T, c *client.Client) {
	t.Helper()
	got, err := c.ReadMessage(quietPeriod)
	if err == nil || got != "" {
		t.Fatalf("%s: unexpected message %q (err %v)", c.Username, got, err)
	}
	if !isTimeout(err) {
		t.Fatalf("%s: expected read timeout, got %v", c.Username, err)
	}
}

func expectClosed(t *testing.T, c *client.Client) {
	t.Helper()
	for {
		msg, err := c.ReadMessage(messageTimeout)
		if err == nil {
			continue
		}
		if isTimeout(err) {
			t.Fatalf("%s: connection still open (last message %q)", c.Username, msg)
		}
		return
	}
}

// drain reads messages until the connection stays quiet.
func drain(c *client.Client) []string {
	var got []string
	for {
		msg, err := c.ReadMessage(300 * time.Millisecond)
		if err != nil {
			return got
		}
		got = append(got, msg)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(messageTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func usernames(r *Registry) []string {
	var names []string
	for _, entry := range r.Snapshot() {
		names = append(names, entry.Username)
	}
	return names
}

func containsAll(haystack []string, needles ...string) bool {
	joined := "\x00" + strings.Join(haystack, "\x00") + "\x00"
	for _, n := range needles {
		if !strings.Contains(joined, "\x00"+n+"\x00") {
			return false
		}
	}
	return true
}
