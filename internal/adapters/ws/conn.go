// Package ws implements the peer channel over WebSocket binary messages.
// The device side listens; the bridge side dials.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/sensorrelay/internal/ports"
)

// DefaultWriteTimeout bounds a single Send when ctx carries no deadline.
const DefaultWriteTimeout = 10 * time.Second

// readBuffer is the number of inbound messages queued ahead of Receive.
const readBuffer = 256

// Conn implements ports.PeerChannel over a WebSocket connection.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	msgs     chan []byte
	readDone chan struct{}
	readErr  error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an established WebSocket connection and starts reading from it.
func NewConn(c *websocket.Conn) *Conn {
	conn := &Conn{
		ws:       c,
		msgs:     make(chan []byte, readBuffer),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go conn.readLoop()
	return conn
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		select {
		case c.msgs <- data:
		case <-c.closed:
			return
		}
	}
}

// Send writes one binary message.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ports.ErrChannelClosed
	case <-c.readDone:
		return ports.ErrChannelClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("ws: set deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ports.ErrChannelClosed
		}
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Receive returns the next binary message.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	default:
	}

	select {
	case msg := <-c.msgs:
		return msg, nil
	case <-c.readDone:
		// drain anything queued before the reader stopped
		select {
		case msg := <-c.msgs:
			return msg, nil
		default:
		}
		return nil, ports.ErrChannelClosed
	case <-c.closed:
		return nil, ports.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.readDone
}

// Err returns the error that stopped the reader. Valid once Done is closed.
func (c *Conn) Err() error {
	<-c.readDone
	return c.readErr
}

// Close sends a close frame and tears down the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

var _ ports.PeerChannel = (*Conn)(nil)
