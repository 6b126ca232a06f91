package server

import (
	"errors"
	"net"
	"sync"
	"time"
)

const maxAcceptDelay = time.Second

// acceptLoop accepts TCP connections until the listener is closed and starts
// a session worker for each. The loop never waits on a session: when the
// pending-handshake pool is full the new connection is closed at once.
func (s *Server) acceptLoop(ln net.Listener) {
	var tempDelay time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isStopping() {
				s.logger.Debug("acceptor stopped", "error", err)
				return
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			s.logger.Warn("accept error, retrying", "error", err, "delay", tempDelay)

			select {
			case <-time.After(tempDelay):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		tempDelay = 0

		id := clientIDFromAddr("", conn.RemoteAddr())
		s.logger.Info("client connected", "client", string(id))

		if !s.pending.TryAcquire(1) {
			s.logger.Warn("too many pending handshakes, dropping connection",
				"client", string(id), "max_pending", s.cfg.MaxPending)
			_ = conn.Close()
			continue
		}
		release := sync.OnceFunc(func() { s.pending.Release(1) })

		if !s.beginSession() {
			release()
			_ = conn.Close()
			return
		}

		c := newTCPConn(conn, int(s.cfg.MaxMessageSize), s.cfg.WriteTimeout)
		go func() {
			defer s.wg.Done()
			s.newSession(c, id).run(release)
		}()
	}
}
