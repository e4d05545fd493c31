package device

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

func TestRecorder_LazyOpen(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: domain.SensorAccelerometer}
	r := NewRecorder(store, []ports.SensorSource{src}, log.NewNoopLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 20, 16, 24, 44, 0, time.Local) }

	if _, err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	names, _ := store.List()
	if len(names) != 0 {
		t.Errorf("files before first reading = %v", names)
	}

	src.emit(1)
	src.emit(2)
	want := domain.NewTrialName("acc", r.now()).String()
	if open := r.OpenFiles(); !open[want] || len(open) != 1 {
		t.Errorf("OpenFiles() = %v, want %s", open, want)
	}

	r.Stop()
	if open := r.OpenFiles(); len(open) != 0 {
		t.Errorf("OpenFiles() after Stop = %v", open)
	}
	f, err := store.Open(want)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Size() != 2*domain.BytesPerRecord {
		t.Errorf("file size = %d, want %d", f.Size(), 2*domain.BytesPerRecord)
	}
}

func TestRecorder_PartialBatchesAreJoined(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: domain.SensorGyroscope}
	r := NewRecorder(store, []ports.SensorSource{src}, log.NewNoopLogger())
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}

	g := r.groups[0]
	g.onBatch(make([]domain.Reading, 60))
	if len(r.OpenFiles()) != 0 {
		t.Error("file opened before a full record was available")
	}
	g.onBatch(make([]domain.Reading, 60))
	g.onBatch(make([]domain.Reading, 80))
	r.Stop()

	names, _ := store.List()
	if len(names) != 1 {
		t.Fatalf("files = %v", names)
	}
	f, err := store.Open(names[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Size() != 2*domain.BytesPerRecord {
		t.Errorf("file size = %d, want two records", f.Size())
	}
}

func TestRecorder_StartFailureRollsBack(t *testing.T) {
	store := newStore(t)
	ok := &fakeSource{name: domain.SensorAccelerometer}
	bad := &fakeSource{name: domain.SensorGyroscope, startErr: errors.New("sensor busy")}
	r := NewRecorder(store, []ports.SensorSource{ok, bad}, log.NewNoopLogger())

	st, err := r.Start()
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if st.Recording() {
		t.Errorf("status after failed start = %+v", st)
	}
	if ok.stopped != 1 {
		t.Errorf("started source stopped %d times, want 1", ok.stopped)
	}
	if ok.emit(1) {
		t.Error("source still delivering after rollback")
	}
}

func TestRecorder_IgnoresReadingsAfterStop(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: domain.SensorAccelerometer}
	r := NewRecorder(store, []ports.SensorSource{src}, log.NewNoopLogger())
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	g := r.groups[0]
	r.Stop()

	// A late callback must not reopen a file.
	g.onBatch(make([]domain.Reading, domain.SamplesPerBatch))
	if names, _ := store.List(); len(names) != 0 {
		t.Errorf("files after late callback = %v", names)
	}
}
