package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/adapters/fs"
	"github.com/bft-labs/sensorrelay/internal/adapters/peer"
	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

// fakeSource delivers readings only when the test calls emit.
type fakeSource struct {
	name     string
	startErr error

	mu      sync.Mutex
	cb      func([]domain.Reading)
	starts  int
	stopped int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Start(ctx context.Context, onBatch func([]domain.Reading)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.cb = onBatch
	f.starts++
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = nil
	f.stopped++
}

// emit delivers one full batch whose samples all read v.
func (f *fakeSource) emit(v float32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cb == nil {
		return false
	}
	readings := make([]domain.Reading, domain.SamplesPerBatch)
	for i := range readings {
		readings[i] = domain.Reading{X: v, Y: v, Z: v}
	}
	f.cb(readings)
	return true
}

func newStore(t *testing.T) *fs.TrialStore {
	t.Helper()
	s, err := fs.NewTrialStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// writeTrial stores a file of n records. Record i holds x=i, y=-i, z=i/100.
func writeTrial(t *testing.T, s ports.TrialStore, name string, n int, extra int) {
	t.Helper()
	w, err := s.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	var buf []byte
	for i := 0; i < n; i++ {
		readings := make([]domain.Reading, domain.SamplesPerBatch)
		for j := range readings {
			readings[j] = domain.Reading{X: float32(i), Y: -float32(i), Z: float32(i) / 100}
		}
		buf = domain.AppendRecord(buf, readings)
	}
	buf = append(buf, make([]byte, extra)...)
	if _, err := w.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

// harness runs an agent on one end of a pipe; the test drives the other end.
type harness struct {
	t      *testing.T
	agent  *Agent
	bridge ports.PeerChannel
	ctx    context.Context
	done   chan error
}

func startAgent(t *testing.T, store ports.TrialStore, sources []ports.SensorSource, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	devEnd, bridgeEnd := peer.Pipe(0)
	a := New(store, sources, log.NewNoopLogger(), append([]Option{WithPaceDelay(0)}, opts...)...)
	h := &harness{t: t, agent: a, bridge: bridgeEnd, ctx: ctx, done: make(chan error, 1)}
	go func() { h.done <- a.Serve(ctx, devEnd) }()

	t.Cleanup(func() {
		bridgeEnd.Close()
		select {
		case err := <-h.done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after channel close")
		}
		a.Close()
		cancel()
	})
	return h
}

func (h *harness) command(action domain.Action, payload any) {
	h.t.Helper()
	env, err := domain.NewEnvelope(action, payload)
	if err != nil {
		h.t.Fatal(err)
	}
	msg, err := codec.EncodeCommand(env)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.bridge.Send(h.ctx, msg); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) recv() codec.Message {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	raw, err := h.bridge.Receive(ctx)
	if err != nil {
		h.t.Fatalf("Receive() error = %v", err)
	}
	msg, err := codec.Decode(raw)
	if err != nil {
		h.t.Fatalf("Decode() error = %v", err)
	}
	return msg
}

func (h *harness) expect(action domain.Action, v any) {
	h.t.Helper()
	msg := h.recv()
	if msg.Kind != codec.KindCommand || msg.Envelope.Action != action {
		h.t.Fatalf("got kind %d action %q, want %q", msg.Kind, msg.Envelope.Action, action)
	}
	if v != nil {
		if err := msg.Envelope.DecodePayload(v); err != nil {
			h.t.Fatal(err)
		}
	}
}

// listing requests the file list and returns the announced entries.
func (h *harness) listing() []domain.Listing {
	h.t.Helper()
	h.command(domain.ActionListFiles, nil)
	var out []domain.Listing
	for {
		msg := h.recv()
		switch msg.Envelope.Action {
		case domain.ActionFileListed:
			var l domain.Listing
			if err := msg.Envelope.DecodePayload(&l); err != nil {
				h.t.Fatal(err)
			}
			out = append(out, l)
		case domain.ActionListComplete:
			return out
		default:
			h.t.Fatalf("unexpected action %q during listing", msg.Envelope.Action)
		}
	}
}
