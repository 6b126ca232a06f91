// Package client is a minimal peer for the chat server: it connects, sends
// the username and exchanges messages. Incoming server messages are
// newline-terminated.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ExitCommand asks the server to end the session.
const ExitCommand = "exit"

// Client is one connection to the chat server.
type Client struct {
	Username string

	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to addr and sends username as the handshake payload.
func Dial(ctx context.Context, addr, username string) (*Client, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("client: username is required")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	c := &Client{
		Username: username,
		conn:     conn,
		reader:   bufio.NewReader(conn),
	}
	if err := c.Send(username); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("client: send username: %w", err)
	}
	return c, nil
}

// Send writes text as one payload.
func (c *Client) Send(text string) error {
	_, err := c.conn.Write([]byte(text))
	return err
}

// ReadMessage returns the next server message without its line terminator.
// A positive timeout bounds the wait; zero waits indefinitely.
func (c *Client) ReadMessage(timeout time.Duration) (string, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	line, err := c.reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// Leave sends the exit command and closes the connection.
func (c *Client) Leave() error {
	sendErr := c.Send(ExitCommand)
	closeErr := c.conn.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

// Close drops the connection without saying goodbye.
func (c *Client) Close() error {
	return c.conn.Close()
}

// LocalAddr is the client side address, which the server uses as client id.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
