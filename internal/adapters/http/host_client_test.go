package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

func endpointOf(t *testing.T, srv *httptest.Server) domain.Endpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	ep, err := domain.ParseEndpoint(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestHostClient_PostBatch(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/relay/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, "ACK:7")
	}))
	defer srv.Close()

	c := NewHostClient(srv.Client(), domain.HostPaths{}, log.NewNoopLogger())
	idx, err := c.PostBatch(context.Background(), endpointOf(t, srv), []byte{7, 0, 9, 0})
	if err != nil {
		t.Fatalf("PostBatch() error = %v", err)
	}
	if idx != 7 {
		t.Errorf("ack index = %d, want 7", idx)
	}
	if string(gotBody) != string([]byte{7, 0, 9, 0}) {
		t.Errorf("body = %v", gotBody)
	}
	if gotContentType != domain.ContentTypeOctetStream {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestHostClient_PostBatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}},
		{"bad token", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "OK")
		}},
		{"negative index", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ACK:-1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewHostClient(srv.Client(), domain.HostPaths{}, log.NewNoopLogger())
			_, err := c.PostBatch(context.Background(), endpointOf(t, srv), []byte{1})
			if !errors.Is(err, domain.ErrNetwork) {
				t.Errorf("PostBatch() error = %v, want ErrNetwork", err)
			}
		})
	}
}

func TestHostClient_PostFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/custom/file" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get(domain.HeaderFilename); got != "trial_acc_2024-6-20_16-24-44" {
			t.Errorf("filename header = %q", got)
		}
		if got := r.Header.Get(domain.HeaderBatchSize); got != strconv.Itoa(domain.BytesPerRecord) {
			t.Errorf("batch size header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 3 {
			t.Errorf("body length = %d", len(body))
		}
		io.WriteString(w, "OK")
	}))
	defer srv.Close()

	c := NewHostClient(srv.Client(), domain.HostPaths{File: "/custom/file"}, log.NewNoopLogger())
	err := c.PostFile(context.Background(), endpointOf(t, srv), "trial_acc_2024-6-20_16-24-44", domain.BytesPerRecord, []byte("abc"))
	if err != nil {
		t.Fatalf("PostFile() error = %v", err)
	}
}

func TestHostClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/relay/ping" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, domain.HostIdentity+"\n")
	}))
	defer srv.Close()

	c := NewHostClient(srv.Client(), domain.HostPaths{}, log.NewNoopLogger())
	id, err := c.Ping(context.Background(), endpointOf(t, srv))
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if id != domain.HostIdentity {
		t.Errorf("Ping() = %q, want %q", id, domain.HostIdentity)
	}
}

func TestHostClient_PingTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewHostClient(srv.Client(), domain.HostPaths{}, log.NewNoopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Ping(ctx, endpointOf(t, srv)); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("Ping() error = %v, want ErrNetwork", err)
	}
}
