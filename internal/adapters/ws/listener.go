package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/sensorrelay/internal/ports"
)

// DefaultPath is the HTTP path the device accepts peer connections on.
const DefaultPath = "/peer"

// Listener accepts peer connections over WebSocket.
type Listener struct {
	upgrader websocket.Upgrader
	conns    chan *Conn
	logger   ports.Logger
}

// NewListener creates a listener. Use it as an http.Handler, or call Serve.
func NewListener(logger ports.Logger) *Listener {
	return &Listener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(chan *Conn),
		logger: logger,
	}
}

// ServeHTTP upgrades the request and hands the connection to Accept.
// The request stays open until the connection is done.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("peer upgrade failed", ports.Err(err))
		return
	}
	conn := NewConn(c)
	l.logger.Info("peer connected", ports.String("remote", r.RemoteAddr))

	select {
	case l.conns <- conn:
	case <-conn.Done():
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	<-conn.Done()
	l.logger.Info("peer disconnected", ports.String("remote", r.RemoteAddr))
}

// Accept returns the next peer connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Serve listens on addr and serves peer connections at DefaultPath until ctx is done.
func (l *Listener) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, l)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.logger.Info("peer listener started", ports.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
