// Package server defines the text protocol spoken with chat clients and the
// helpers that normalise inbound payloads.
package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ExitCommand ends a session when sent as a payload, in any letter case.
const ExitCommand = "exit"

// ShutdownNotice is sent to every client before the server closes them.
const ShutdownNotice = "[Broadcast] The server is closed!"

var errHandshake = errors.New("handshake: no usable username")

// WelcomeMessage is addressed only to the client that just joined.
func WelcomeMessage(username string) string {
	return fmt.Sprintf("[Server] Hi %s, Welcome to the chat!", username)
}

// JoinNotice announces a new client to everybody else.
func JoinNotice(username string) string {
	return fmt.Sprintf("[Broadcast] %s has joined the chat!", username)
}

// LeaveNotice announces a departed client to the remaining ones.
func LeaveNotice(username string) string {
	return fmt.Sprintf("[Broadcast] %s has left the chat!", username)
}

// ChatMessage tags a relayed message with its author.
func ChatMessage(username, text string) string {
	return fmt.Sprintf("[%s] %s", username, text)
}

// frame terminates an outbound message with a newline so line-oriented
// peers can split what they receive.
func frame(message string) []byte {
	return []byte(message + "\n")
}

// normalizeUsername turns the first payload of a session into a username.
func normalizeUsername(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", errHandshake
	}
	name := norm.NFC.String(strings.TrimSpace(string(payload)))
	if name == "" {
		return "", errHandshake
	}
	return name, nil
}

// chatText strips the line terminator a client may have appended.
func chatText(payload []byte) string {
	return strings.TrimRight(string(payload), "\r\n")
}

// isExitCommand reports whether payload asks to leave the chat.
func isExitCommand(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), ExitCommand)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
