// Package server implements a TCP chat server: a registry of joined clients,
// a broadcast relay, one session worker per connection and the lifecycle
// that starts and stops them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/semaphore"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

var (
	// ErrServerClosed is returned once Stop has been called.
	ErrServerClosed = errors.New("server: closed")
	// ErrServerStarted is returned by a second call to Start.
	ErrServerStarted = errors.New("server: already started")
	// ErrTooManyPending is returned by ServeConn when max_pending
	// connections are already waiting for their username.
	ErrTooManyPending = errors.New("server: too many pending handshakes")
)

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the structured logger used by the server and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJournal records session lifecycle events to recorder.
func WithJournal(recorder journal.Recorder) Option {
	return func(s *Server) {
		s.recorder = recorder
	}
}

// Server accepts chat clients and relays their messages.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	recorder journal.Recorder
	registry *Registry
	relay    *Relay
	journal  *journalSink
	pending  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	listener    net.Listener
	started     bool
	stopped     bool
	handshaking map[ClientID]Conn
	stopping    atomic.Bool
	wg          sync.WaitGroup
}

// New builds a server for cfg. Missing values are filled with defaults.
func New(cfg Config, opts ...Option) *Server {
	cfg = sanitizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         cfg,
		logger:      discardLogger(),
		registry:    NewRegistry(),
		pending:     semaphore.NewWeighted(int64(cfg.MaxPending)),
		ctx:         ctx,
		cancel:      cancel,
		handshaking: make(map[ClientID]Conn),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.relay = NewRelay(s.registry, s.logger, s.recorder)
	s.journal = newJournalSink(s.recorder, s.logger)
	return s
}

// Start binds the listener and runs the acceptor loop in the background.
// A bind or listen failure is returned and leaves the server unstarted.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrServerClosed
	}
	if s.started {
		return ErrServerStarted
	}

	addr := s.cfg.Address()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	if s.cfg.MaxClients > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxClients)
	}

	s.listener = ln
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()

	s.logger.Info("server started", "addr", ln.Addr().String(), "max_pending", s.cfg.MaxPending, "max_clients", s.cfg.MaxClients)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry exposes the client registry for read-only inspection.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Relay returns the broadcast relay used by the sessions.
func (s *Server) Relay() *Relay {
	return s.relay
}

// ServeConn runs a session for a connection accepted by another transport
// and blocks until it ends. conn is always closed when ServeConn returns.
func (s *Server) ServeConn(ctx context.Context, conn Conn, id ClientID) error {
	if id == "" {
		_ = conn.Close()
		return errors.New("server: empty client id")
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return err
	}
	if !s.pending.TryAcquire(1) {
		s.logger.Warn("too many pending handshakes, dropping connection",
			"client", string(id), "max_pending", s.cfg.MaxPending)
		_ = conn.Close()
		return ErrTooManyPending
	}
	release := sync.OnceFunc(func() { s.pending.Release(1) })

	if !s.beginSession() {
		release()
		_ = conn.Close()
		return ErrServerClosed
	}
	defer s.wg.Done()

	s.logger.Info("client connected", "client", string(id))
	s.newSession(conn, id).run(release)
	return nil
}

// Stop notifies every registered client, closes all connections and the
// listener. Registration is refused from the moment Stop begins. Workers
// notice their closed connection and exit on their own.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.stopping.Store(true)
	ln := s.listener
	pending := make([]Conn, 0, len(s.handshaking))
	for _, conn := range s.handshaking {
		pending = append(pending, conn)
	}
	s.mu.Unlock()

	s.logger.Info("shutting down server")
	s.cancel()

	entries := s.registry.Drain()
	for _, entry := range entries {
		if err := s.relay.Send(entry, ShutdownNotice); err != nil {
			s.logger.Debug("shutdown notice not delivered", "client", string(entry.ID), "error", err)
		}
	}
	for _, entry := range entries {
		if err := entry.Conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Debug("error closing client connection", "client", string(entry.ID), "error", err)
		}
		s.journal.record(entry, journal.KindShutdown, "server stopped")
	}
	for _, conn := range pending {
		_ = conn.Close()
	}

	var err error
	if ln != nil {
		if closeErr := ln.Close(); closeErr != nil && !isExpectedCloseError(closeErr) {
			err = fmt.Errorf("server: close listener: %w", closeErr)
		}
	}

	s.logger.Info("server stopped", "closed_clients", len(entries), "closed_pending", len(pending))
	return err
}

// Shutdown stops the server and waits up to timeout for the acceptor and
// every session worker to return.
func (s *Server) Shutdown(timeout time.Duration) error {
	err := s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server shutdown completed")
		return err
	case <-time.After(timeout):
		s.logger.Warn("server shutdown timeout reached, some sessions may still be running")
		return errors.Join(err, context.DeadlineExceeded)
	}
}

func (s *Server) isStopping() bool {
	return s.stopping.Load()
}

// beginSession reserves a slot in the worker group unless the server stopped.
func (s *Server) beginSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) trackHandshake(id ClientID, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.handshaking[id] = conn
	return true
}

func (s *Server) untrackHandshake(id ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handshaking, id)
}
