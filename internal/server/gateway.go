// Package server lets WebSocket clients join the chat through the same
// session worker as TCP clients. Every WebSocket message is one payload.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsClientPrefix = "ws/"

// wsConn adapts a WebSocket connection to Conn. gorilla connections allow
// one concurrent writer, so writes are serialised here.
type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newWSConn(conn *websocket.Conn, maxMessageSize int64, writeTimeout time.Duration) *wsConn {
	if conn != nil && maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &wsConn{conn: conn, writeTimeout: writeTimeout}
}

// Receive returns the next text or binary message.
func (c *wsConn) Receive() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Send writes payload as one text message. Framing is explicit on WebSocket,
// so the line terminator added for stream peers is dropped.
func (c *wsConn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(payload, []byte("\n")))
}

// Close sends a best-effort close frame and closes the socket.
func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) setReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Gateway upgrades HTTP requests to WebSocket sessions on a Server.
type Gateway struct {
	server   *Server
	upgrader websocket.Upgrader
	origins  *originPolicy
	logger   *slog.Logger
}

// NewGateway creates a gateway for srv using the server's HTTP settings.
func NewGateway(srv *Server) *Gateway {
	g := &Gateway{
		server:  srv,
		origins: newOriginPolicy(srv.cfg.HTTP.AllowedOrigins, srv.logger),
		logger:  srv.logger.With("transport", "websocket"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.check,
	}
	return g
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Info("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ws := newWSConn(conn, g.server.cfg.MaxMessageSize, g.server.cfg.WriteTimeout)
	id := clientIDFromAddr(wsClientPrefix, conn.RemoteAddr())

	// The request context stays alive until this handler returns.
	if err := g.server.ServeConn(r.Context(), ws, id); err != nil &&
		!errors.Is(err, ErrServerClosed) && !errors.Is(err, context.Canceled) {
		g.logger.Warn("websocket session not started", "client", string(id), "error", err)
	}
}
