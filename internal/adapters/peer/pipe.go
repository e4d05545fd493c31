// Package peer provides an in-process peer channel.
package peer

import (
	"context"
	"sync"

	"github.com/bft-labs/sensorrelay/internal/ports"
)

// DefaultBuffer is the number of messages each direction can hold before
// Send blocks.
const DefaultBuffer = 256

// Pipe returns two connected channel ends. A message sent on one end is
// received on the other. Closing either end closes both.
func Pipe(buffer int) (ports.PeerChannel, ports.PeerChannel) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	shared := &closer{closed: make(chan struct{})}
	return &end{in: ba, out: ab, closer: shared}, &end{in: ab, out: ba, closer: shared}
}

type closer struct {
	once   sync.Once
	closed chan struct{}
}

func (c *closer) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type end struct {
	in  <-chan []byte
	out chan<- []byte
	*closer
}

func (e *end) Send(ctx context.Context, msg []byte) error {
	select {
	case <-e.closed:
		return ports.ErrChannelClosed
	default:
	}

	cp := append([]byte(nil), msg...)
	select {
	case e.out <- cp:
		return nil
	case <-e.closed:
		return ports.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *end) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.closed:
		return nil, ports.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ ports.PeerChannel = (*end)(nil)
