// Package server wraps accepted network connections in a transport-neutral
// handle so TCP and WebSocket peers share one session state machine.
package server

import (
	"net"
	"time"
)

// Conn is one accepted client connection. Receive returns exactly one
// application payload per call; for TCP that is whatever a single read
// produced.
type Conn interface {
	Receive() ([]byte, error)
	Send(payload []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// ClientID identifies a live connection by its remote address.
type ClientID string

// clientIDFromAddr derives the registry key for a peer. Transports other than
// plain TCP pass a prefix so their ids never collide with TCP ones.
func clientIDFromAddr(prefix string, addr net.Addr) ClientID {
	if addr == nil {
		return ""
	}
	return ClientID(prefix + addr.String())
}

type tcpConn struct {
	conn         net.Conn
	buf          []byte
	writeTimeout time.Duration
}

// newTCPConn wraps a raw stream connection. bufSize bounds a single payload.
func newTCPConn(conn net.Conn, bufSize int, writeTimeout time.Duration) *tcpConn {
	if bufSize <= 0 {
		bufSize = defaultMaxMessageSize
	}
	return &tcpConn{
		conn:         conn,
		buf:          make([]byte, bufSize),
		writeTimeout: writeTimeout,
	}
}

// Receive performs a single read. A zero-length result with a nil error is
// reported as an empty payload, which the session treats as a disconnect.
func (c *tcpConn) Receive() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		payload := make([]byte, n)
		copy(payload, c.buf[:n])
		return payload, nil
	}
	return nil, err
}

func (c *tcpConn) Send(payload []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(payload)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// setReadDeadline is used only while waiting for the username.
func (c *tcpConn) setReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}
