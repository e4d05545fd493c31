package ports

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned by PeerChannel operations after Close or once
// the remote side has gone away.
var ErrChannelClosed = errors.New("peer channel closed")

// PeerChannel is a message-framed duplex channel between the device and the
// bridge. Message boundaries are preserved: one Send yields one Receive.
type PeerChannel interface {
	// Send writes one message. Safe for concurrent use.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks until the next message arrives, the context is done or
	// the channel closes. Only one goroutine may call Receive at a time.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the channel. Pending and future calls return ErrChannelClosed.
	Close() error
}
