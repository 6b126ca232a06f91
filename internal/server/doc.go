// Package server implements the core of the TCP chat service.
//
// A Server accepts connections, runs one session worker per connection and
// keeps admitted clients in a Registry. The Relay fans messages out to every
// registered client except the sender and evicts peers whose writes fail.
// Each received payload is one message: over TCP that is whatever a single
// read returns, so messages sent in quick succession may be merged or split.
// The optional HTTP surface hosts a WebSocket gateway into the same chat.
package server
