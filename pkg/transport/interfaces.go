package transport

import (
	"context"
	"errors"
)

// Transport errors.
var (
	// ErrChannelClosed indicates the channel is closed and can no longer
	// send or receive.
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is a bidirectional, message-oriented byte transport.
//
// Send and Receive preserve message boundaries: one Send on one side
// yields exactly one Receive on the other. Send is safe for concurrent
// use; Receive must be called from a single goroutine.
type Channel interface {
	// Send transmits one message. Returns ErrChannelClosed after Close.
	Send(data []byte) error

	// Receive blocks until the next message arrives. Returns
	// ErrChannelClosed once the channel is closed from either side.
	Receive() ([]byte, error)

	// Close tears down the channel. Safe to call more than once.
	Close() error

	// RemoteAddr describes the peer, for logging.
	RemoteAddr() string
}

// Dialer opens a fresh channel to a remote endpoint.
//
// The connection layer calls Open once per connection attempt; every
// reconnect gets a new channel.
type Dialer interface {
	Open(ctx context.Context) (Channel, error)
}
