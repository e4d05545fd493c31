package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// Dial opens a peer connection to url (ws://host:port/peer).
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return NewConn(c), nil
}

// Redial keeps a connection to url open until ctx is done. Each established
// connection is passed to handle, which must return once the connection is
// finished. Failed dials are retried with exponential backoff.
func Redial(ctx context.Context, url string, b *app.Backoff, logger ports.Logger, handle func(ctx context.Context, conn *Conn)) error {
	for {
		conn, err := Dial(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("peer dial failed",
				ports.String("url", url),
				ports.Int("attempt", b.Attempts()+1),
				ports.Duration("retry_in", b.Current()),
				ports.Err(err))
			if err := b.Sleep(ctx); err != nil {
				return nil
			}
			continue
		}

		b.Reset()
		logger.Info("peer connected", ports.String("url", url))
		handle(ctx, conn)
		conn.Close()
		logger.Info("peer disconnected", ports.String("url", url))

		if ctx.Err() != nil {
			return nil
		}
	}
}
