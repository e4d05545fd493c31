package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

func TestSynthetic_DeliversBatches(t *testing.T) {
	s := NewSynthetic(domain.SensorAccelerometer, 5*time.Millisecond)
	if s.Name() != "acc" {
		t.Errorf("Name() = %q", s.Name())
	}

	got := make(chan int, 16)
	if err := s.Start(context.Background(), func(r []domain.Reading) { got <- len(r) }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background(), func([]domain.Reading) {}); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start() error = %v, want ErrStarted", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case n := <-got:
			if n != domain.SamplesPerBatch {
				t.Errorf("batch size = %d, want %d", n, domain.SamplesPerBatch)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no batch delivered")
		}
	}

	s.Stop()
	// drain anything delivered before Stop returned
	for len(got) > 0 {
		<-got
	}
	time.Sleep(20 * time.Millisecond)
	if len(got) != 0 {
		t.Error("batch delivered after Stop")
	}

	// restartable
	if err := s.Start(context.Background(), func([]domain.Reading) {}); err != nil {
		t.Errorf("Start() after Stop error = %v", err)
	}
	s.Stop()
	s.Stop()
}
