// Package hostreceiver is a reference host receiver. It accepts relayed
// batches and whole files over HTTP, stores them in SQLite and answers the
// discovery ping.
package hostreceiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// Request body limits.
const (
	maxBatchBody = 64 << 10
	maxFileBody  = 256 << 20
)

// Server serves the host receiver contract.
type Server struct {
	store  *Store
	paths  domain.HostPaths
	logger ports.Logger
}

// NewServer creates a server over store. Zero paths fall back to the
// defaults.
func NewServer(store *Store, paths domain.HostPaths, logger ports.Logger) *Server {
	def := domain.DefaultHostPaths()
	if paths.Batch == "" {
		paths.Batch = def.Batch
	}
	if paths.File == "" {
		paths.File = def.File
	}
	if paths.Ping == "" {
		paths.Ping = def.Ping
	}
	return &Server{store: store, paths: paths, logger: logger}
}

// Handler returns the HTTP handler for the contract paths.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.paths.Batch, s.handleBatch)
	mux.HandleFunc(s.paths.File, s.handleFile)
	mux.HandleFunc(s.paths.Ping, s.handlePing)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.logger.Info("host receiver listening", ports.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	io.WriteString(w, domain.HostIdentity)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	b, err := codec.DecodeBatchPayload(body)
	if err != nil {
		s.logger.Warn("rejecting malformed batch", ports.Err(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	saved, err := s.store.SaveBatch(r.Context(), b, body)
	if err != nil {
		s.logger.Error("failed to store batch",
			ports.String("file", b.Filename),
			ports.Int("batch", int(b.Index)),
			ports.Err(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !saved {
		s.logger.Debug("duplicate batch",
			ports.String("file", b.Filename),
			ports.Int("batch", int(b.Index)))
	}
	io.WriteString(w, domain.FormatAck(int(b.Index)))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.Header.Get(domain.HeaderFilename)
	if filename == "" || filepath.Base(filename) != filename || filename == "." || filename == ".." {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	batchSize, err := strconv.Atoi(r.Header.Get(domain.HeaderBatchSize))
	if err != nil || batchSize <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFileBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.store.SaveFile(r.Context(), filename, batchSize, data); err != nil {
		s.logger.Error("failed to store file", ports.String("file", filename), ports.Err(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("file stored",
		ports.String("file", filename),
		ports.Int("bytes", len(data)),
		ports.Int("batch_size", batchSize))
	io.WriteString(w, domain.FileStored)
}
