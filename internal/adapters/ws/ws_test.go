package ws

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + DefaultPath
}

func TestConn_Exchange(t *testing.T) {
	l := NewListener(log.NewNoopLogger())
	srv := httptest.NewServer(l)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	defer server.Close()

	if err := client.Send(ctx, []byte{1, '{', '}'}); err != nil {
		t.Fatalf("client Send() error = %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("server Receive() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, '{', '}'}) {
		t.Errorf("server got %v", got)
	}

	for i := 0; i < 10; i++ {
		if err := server.Send(ctx, []byte{0, byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		got, err := client.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got[1] != byte(i) {
			t.Errorf("message %d out of order: %v", i, got)
		}
	}
}

func TestConn_RemoteCloseEndsReceive(t *testing.T) {
	l := NewListener(log.NewNoopLogger())
	srv := httptest.NewServer(l)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatal(err)
	}

	client.Close()
	if _, err := server.Receive(ctx); !errors.Is(err, ports.ErrChannelClosed) {
		t.Errorf("Receive() after remote close = %v, want ErrChannelClosed", err)
	}
	if err := client.Send(ctx, []byte{1}); !errors.Is(err, ports.ErrChannelClosed) {
		t.Errorf("Send() after Close = %v, want ErrChannelClosed", err)
	}
	server.Close()
}

func TestRedial_RetriesUntilListenerAppears(t *testing.T) {
	l := NewListener(log.NewNoopLogger())
	srv := httptest.NewUnstartedServer(l)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// reserve the address, then start serving after a few failed dials
	url := "ws://" + srv.Listener.Addr().String() + DefaultPath
	connected := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Redial(ctx, url, app.NewBackoff(5*time.Millisecond, 20*time.Millisecond), log.NewNoopLogger(),
			func(ctx context.Context, conn *Conn) {
				close(connected)
				<-ctx.Done()
			})
	}()

	time.Sleep(30 * time.Millisecond)
	srv.Start()
	defer srv.Close()

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("Redial never connected")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Redial() error = %v", err)
	}
}
