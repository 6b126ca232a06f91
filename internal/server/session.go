// Package server runs one session worker per connection. The worker owns the
// read side of its connection and drives the client through
// connected → handshaking → active → closed.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Tyrowin/tcpchat/internal/journal"
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateHandshaking
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateHandshaking:
		return "handshaking"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// readDeadliner is implemented by connections that support the optional
// handshake timeout.
type readDeadliner interface {
	setReadDeadline(t time.Time) error
}

type session struct {
	srv     *Server
	conn    Conn
	id      ClientID
	state   sessionState
	entry   *ClientEntry
	limiter *rateLimiter
	logger  *slog.Logger
}

func (s *Server) newSession(conn Conn, id ClientID) *session {
	return &session{
		srv:     s,
		conn:    conn,
		id:      id,
		state:   stateConnected,
		limiter: newRateLimiter(s.cfg.RateLimit.Burst, s.cfg.RateLimit.RefillInterval),
		logger:  s.logger.With("client", string(id)),
	}
}

// run drives the session until the connection is closed. handshakeDone is
// called exactly once, as soon as the username exchange has finished either
// way.
func (ss *session) run(handshakeDone func()) {
	ss.state = stateHandshaking
	username, err := ss.handshake()
	handshakeDone()
	if err != nil {
		ss.logger.Info("handshake failed", "error", err)
		ss.close()
		return
	}

	entry := &ClientEntry{
		ID:        ss.id,
		Conn:      ss.conn,
		Username:  username,
		JoinedAt:  time.Now().UTC(),
		SessionID: uuid.NewString(),
	}
	if err := ss.srv.registry.Register(entry); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			ss.logger.Error("client id already registered, dropping connection", "username", username)
		} else {
			ss.logger.Info("registration refused", "username", username, "error", err)
		}
		ss.close()
		return
	}

	ss.entry = entry
	ss.state = stateActive
	ss.logger = ss.logger.With("username", username)
	ss.logger.Info("client joined", "clients", ss.srv.registry.Len())
	ss.srv.journal.record(entry, journal.KindJoin, "")

	ss.srv.relay.Broadcast(JoinNotice(username), ss.id)
	if err := ss.srv.relay.Send(entry, WelcomeMessage(username)); err != nil {
		ss.leave(fmt.Sprintf("welcome failed: %v", err))
		return
	}

	ss.leave(ss.receiveLoop())
}

// handshake reads the first payload and turns it into a username.
func (ss *session) handshake() (string, error) {
	if !ss.srv.trackHandshake(ss.id, ss.conn) {
		return "", ErrServerClosed
	}
	defer ss.srv.untrackHandshake(ss.id)

	timeout := ss.srv.cfg.HandshakeTimeout
	deadliner, canDeadline := ss.conn.(readDeadliner)
	if timeout > 0 && canDeadline {
		if err := deadliner.setReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", fmt.Errorf("%w: %v", errHandshake, err)
		}
		defer func() {
			_ = deadliner.setReadDeadline(time.Time{})
		}()
	}

	payload, err := ss.conn.Receive()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errHandshake, err)
	}
	return normalizeUsername(payload)
}

// receiveLoop relays chat messages until the client goes away and returns
// the reason it stopped.
func (ss *session) receiveLoop() string {
	for {
		payload, err := ss.conn.Receive()
		if err != nil {
			return ss.describeReadError(err)
		}
		if len(payload) == 0 {
			return "empty payload"
		}
		if !utf8.Valid(payload) {
			return "payload is not valid UTF-8"
		}
		if isExitCommand(payload) {
			return "exit requested"
		}

		text := chatText(payload)
		if strings.TrimSpace(text) == "" {
			continue
		}

		if !ss.limiter.allow() {
			ss.logger.Warn("rate limit exceeded, discarding message",
				"burst", ss.srv.cfg.RateLimit.Burst,
				"interval", ss.srv.cfg.RateLimit.RefillInterval)
			continue
		}

		ss.srv.relay.Broadcast(ChatMessage(ss.entry.Username, text), ss.id)
	}
}

func (ss *session) describeReadError(err error) string {
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		ss.logger.Debug("connection closed", "error", err)
		return "connection closed"
	}
	ss.logger.Warn("read error", "error", err)
	return fmt.Sprintf("read error: %v", err)
}

// leave performs the active → closed transition.
func (ss *session) leave(reason string) {
	username, err := ss.srv.registry.LookupUsername(ss.id)
	if err != nil {
		username = ss.entry.Username
	}

	_, err = ss.srv.registry.Unregister(ss.id)
	switch {
	case err == nil:
		ss.srv.relay.Broadcast(LeaveNotice(username), "")
		ss.srv.journal.record(ss.entry, journal.KindLeave, reason)
	case ss.srv.isStopping():
		// Removed by shutdown, which already notified everybody.
	default:
		// Evicted by the relay after a failed write.
		ss.srv.relay.Broadcast(LeaveNotice(username), "")
	}

	ss.close()
	ss.logger.Info("client left", "reason", reason, "clients", ss.srv.registry.Len())
}

func (ss *session) close() {
	ss.state = stateClosed
	if err := ss.conn.Close(); err != nil && !isExpectedCloseError(err) {
		ss.logger.Debug("error closing connection", "error", err)
	}
}
