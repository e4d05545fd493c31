package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/adapters/fs"
	"github.com/bft-labs/sensorrelay/internal/adapters/peer"
	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/device"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

// fakeHost acknowledges every batch unless fail says otherwise.
type fakeHost struct {
	mu    sync.Mutex
	posts []string // "<file>#<index>"
	fail  func(index int) bool
}

func (h *fakeHost) PostBatch(ctx context.Context, ep domain.Endpoint, payload []byte) (int, error) {
	b, err := codec.DecodeBatchPayload(payload)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posts = append(h.posts, b.Filename+"#"+strconv.Itoa(int(b.Index)))
	if h.fail != nil && h.fail(int(b.Index)) {
		return 0, errors.New("connection refused")
	}
	return int(b.Index), nil
}

func (h *fakeHost) PostFile(ctx context.Context, ep domain.Endpoint, filename string, batchSize int, data []byte) error {
	return nil
}

func (h *fakeHost) Ping(ctx context.Context, ep domain.Endpoint) (string, error) {
	return domain.HostIdentity, nil
}

func (h *fakeHost) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.posts)
}

func (h *fakeHost) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.posts...)
}

type fakeEndpoints struct {
	mu sync.Mutex
	ep domain.Endpoint
}

func (f *fakeEndpoints) Endpoint() (domain.Endpoint, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ep, !f.ep.IsZero()
}

func (f *fakeEndpoints) set(ep domain.Endpoint) {
	f.mu.Lock()
	f.ep = ep
	f.mu.Unlock()
}

// harness runs an orchestrator attached to one end of a pipe. The other end
// is either scripted by the test or served by a real device agent.
type harness struct {
	t     *testing.T
	o     *Orchestrator
	store *settings.MemoryStore
	host  *fakeHost
	eps   *fakeEndpoints
	dev   ports.PeerChannel
	ctx   context.Context
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	h := &harness{
		t:     t,
		store: settings.NewMemoryStore(),
		host:  &fakeHost{},
		eps:   &fakeEndpoints{ep: domain.Endpoint{Host: "192.168.1.20", Port: domain.DefaultHostPort}},
		ctx:   ctx,
	}
	h.o = New(h.store, h.host, h.eps, log.NewNoopLogger(), cfg)

	bridgeEnd, devEnd := peer.Pipe(0)
	h.dev = devEnd

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := h.o.Run(ctx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := h.o.Serve(ctx, bridgeEnd); err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	}()

	t.Cleanup(func() {
		cancel()
		bridgeEnd.Close()
		wg.Wait()
	})
	return h
}

// nextCommand reads the next command the bridge sent to the device.
func (h *harness) nextCommand() domain.Envelope {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	raw, err := h.dev.Receive(ctx)
	if err != nil {
		h.t.Fatalf("device Receive() error = %v", err)
	}
	msg, err := codec.Decode(raw)
	if err != nil {
		h.t.Fatal(err)
	}
	if msg.Kind != codec.KindCommand {
		h.t.Fatalf("bridge sent kind %d", msg.Kind)
	}
	return msg.Envelope
}

func (h *harness) expectCommand(action domain.Action) domain.Envelope {
	h.t.Helper()
	env := h.nextCommand()
	if env.Action != action {
		h.t.Fatalf("command = %q, want %q", env.Action, action)
	}
	return env
}

// handshake consumes the listFiles and queryRecording sent on attach.
func (h *harness) handshake() {
	h.t.Helper()
	h.expectCommand(domain.ActionListFiles)
	h.expectCommand(domain.ActionQueryRecording)
}

func (h *harness) notify(action domain.Action, payload any) {
	h.t.Helper()
	env, err := domain.NewEnvelope(action, payload)
	if err != nil {
		h.t.Fatal(err)
	}
	msg, err := codec.EncodeCommand(env)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.dev.Send(h.ctx, msg); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) sendBatch(name string, index, count int) {
	h.t.Helper()
	msg, err := codec.EncodeBatch(domain.Batch{
		Index:     uint16(index),
		Count:     uint16(count),
		Timestamp: 1718893484000 + int64(index)*1000,
		Filename:  name,
	})
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.dev.Send(h.ctx, msg); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) set(key, value string) {
	h.t.Helper()
	if err := h.store.Set(key, value); err != nil {
		h.t.Fatal(err)
	}
}

// waitSetting polls until key holds want.
func (h *harness) waitSetting(key, want string) {
	h.t.Helper()
	waitFor(h.t, key+"="+want, func() bool {
		v, ok := h.store.Get(key)
		return ok && v == want
	})
}

func (h *harness) waitAbsent(key string) {
	h.t.Helper()
	waitFor(h.t, key+" absent", func() bool {
		_, ok := h.store.Get(key)
		return !ok
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTrialStore(t *testing.T) *fs.TrialStore {
	t.Helper()
	s, err := fs.NewTrialStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// writeTrial stores a file of n records followed by extra padding bytes.
func writeTrial(t *testing.T, s ports.TrialStore, name string, n, extra int) {
	t.Helper()
	w, err := s.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	readings := make([]domain.Reading, domain.SamplesPerBatch)
	var buf []byte
	for i := 0; i < n; i++ {
		for j := range readings {
			readings[j] = domain.Reading{X: float32(i), Y: 1, Z: -1}
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

// withDevice serves the device end of the harness with a real agent.
func withDevice(t *testing.T, h *harness, store ports.TrialStore) {
	t.Helper()
	a := device.New(store, nil, log.NewNoopLogger(), device.WithPaceDelay(time.Millisecond))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Serve(h.ctx, h.dev); err != nil {
			t.Errorf("device Serve() error = %v", err)
		}
	}()
	t.Cleanup(func() {
		h.dev.Close()
		<-done
		a.Close()
	})
}
