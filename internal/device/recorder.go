package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// Recorder is the capture state machine. It moves between Idle and
// Recording, and owns one lazily opened trial file per sensor group.
type Recorder struct {
	store  ports.TrialStore
	logger ports.Logger
	now    func() time.Time

	mu     sync.Mutex
	state  domain.RecordingState
	cancel context.CancelFunc
	groups []*group
}

// NewRecorder creates an idle recorder for the given sensor groups.
func NewRecorder(store ports.TrialStore, sources []ports.SensorSource, logger ports.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger,
		now:    time.Now,
		state:  domain.RecordingIdle,
	}
	for _, src := range sources {
		r.groups = append(r.groups, &group{source: src, r: r})
	}
	return r
}

// Start moves the recorder to Recording. Starting while already recording
// changes nothing.
func (r *Recorder) Start() (domain.RecordingStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.RecordingActive {
		return r.statusLocked(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	for i, g := range r.groups {
		g.open()
		if err := g.source.Start(ctx, g.onBatch); err != nil {
			// Roll back so the recorder stays Idle with nothing open.
			for _, started := range r.groups[:i] {
				started.source.Stop()
			}
			for _, opened := range r.groups[:i+1] {
				opened.close()
			}
			cancel()
			return r.statusLocked(), fmt.Errorf("start %s capture: %w", g.source.Name(), err)
		}
	}

	r.cancel = cancel
	r.state = domain.RecordingActive
	r.logger.Info("recording started", ports.Int("groups", len(r.groups)))
	return r.statusLocked(), nil
}

// Stop moves the recorder to Idle. Capture is stopped and every open file is
// closed. Stopping while idle changes nothing.
func (r *Recorder) Stop() domain.RecordingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.RecordingIdle {
		return r.statusLocked()
	}

	for _, g := range r.groups {
		g.source.Stop()
	}
	r.cancel()
	r.cancel = nil
	for _, g := range r.groups {
		g.close()
	}
	r.state = domain.RecordingIdle
	r.logger.Info("recording stopped")
	return r.statusLocked()
}

// Status returns the current recording state.
func (r *Recorder) Status() domain.RecordingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() domain.RecordingStatus {
	st := domain.RecordingStatus{
		State:  r.state,
		Groups: make(map[string]domain.RecordingState, len(r.groups)),
	}
	for _, g := range r.groups {
		st.Groups[g.source.Name()] = r.state
	}
	return st
}

// OpenFiles returns the names of the files currently open for writing.
func (r *Recorder) OpenFiles() map[string]bool {
	open := make(map[string]bool)
	for _, g := range r.groups {
		if name := g.fileName(); name != "" {
			open[name] = true
		}
	}
	return open
}

// group is the capture state of one sensor.
type group struct {
	source ports.SensorSource
	r      *Recorder

	mu      sync.Mutex
	active  bool
	name    string
	w       ports.TrialWriter
	pending []domain.Reading
	records int
}

func (g *group) open() {
	g.mu.Lock()
	g.active = true
	g.pending = g.pending[:0]
	g.mu.Unlock()
}

func (g *group) fileName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

// onBatch appends readings to the group's file, creating it on first use.
// Readings are written in whole records; a partial tail waits for the next
// callback.
func (g *group) onBatch(readings []domain.Reading) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}

	g.pending = append(g.pending, readings...)
	if len(g.pending) < domain.SamplesPerBatch {
		return
	}

	if g.w == nil {
		name := domain.NewTrialName(g.source.Name(), g.r.now()).String()
		w, err := g.r.store.Create(name)
		if err != nil {
			g.r.logger.Error("failed to create trial file",
				ports.String("file", name),
				ports.Err(err))
			g.pending = g.pending[:0]
			return
		}
		g.w, g.name, g.records = w, name, 0
		g.r.logger.Info("trial file opened", ports.String("file", name))
	}

	var buf []byte
	n := 0
	for ; len(g.pending)-n >= domain.SamplesPerBatch; n += domain.SamplesPerBatch {
		buf = domain.AppendRecord(buf, g.pending[n:n+domain.SamplesPerBatch])
	}
	g.pending = append(g.pending[:0], g.pending[n:]...)

	if _, err := g.w.Write(buf); err != nil {
		g.r.logger.Error("failed to write trial file",
			ports.String("file", g.name),
			ports.Err(err))
		g.closeLocked()
		return
	}
	g.records += n / domain.SamplesPerBatch
}

func (g *group) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.pending = g.pending[:0]
	g.closeLocked()
}

func (g *group) closeLocked() {
	if g.w == nil {
		return
	}
	if err := g.w.Close(); err != nil {
		g.r.logger.Warn("failed to close trial file",
			ports.String("file", g.name),
			ports.Err(err))
	}
	g.r.logger.Info("trial file closed",
		ports.String("file", g.name),
		ports.Int("batches", g.records))
	g.w, g.name, g.records = nil, "", 0
}
