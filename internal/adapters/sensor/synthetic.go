// Package sensor provides sensor sources for the device agent.
package sensor

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// ErrStarted is returned by Start while the source is already capturing.
var ErrStarted = errors.New("sensor: already started")

// Synthetic produces sine-wave readings at the nominal sample rate. It stands
// in for real capture hardware when running the device on a workstation.
type Synthetic struct {
	name   string
	period time.Duration
	amp    float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	sample int64
}

// NewSynthetic creates a source for the given sensor group. One batch of
// domain.SamplesPerBatch readings is delivered every period; zero means
// domain.BatchPeriod.
func NewSynthetic(name string, period time.Duration) *Synthetic {
	if period <= 0 {
		period = domain.BatchPeriod
	}
	amp := 9.81
	if name == domain.SensorGyroscope {
		amp = 1.5
	}
	return &Synthetic{name: name, period: period, amp: amp}
}

// Name returns the sensor group prefix.
func (s *Synthetic) Name() string { return s.name }

// Start begins delivering batches to onBatch until Stop or ctx is done.
func (s *Synthetic) Start(ctx context.Context, onBatch func([]domain.Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				onBatch(s.next())
			}
		}
	}()
	return nil
}

// Stop ends capture and waits for the delivery goroutine to exit.
func (s *Synthetic) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Synthetic) next() []domain.Reading {
	out := make([]domain.Reading, domain.SamplesPerBatch)
	for i := range out {
		t := float64(s.sample) / domain.SampleFrequency
		s.sample++
		out[i] = domain.Reading{
			X: float32(s.amp * math.Sin(2*math.Pi*t)),
			Y: float32(s.amp * math.Cos(2*math.Pi*t)),
			Z: float32(s.amp * math.Sin(math.Pi*t)),
		}
	}
	return out
}

var _ ports.SensorSource = (*Synthetic)(nil)
