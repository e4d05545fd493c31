package app

import (
	"context"
	"sync"
)

// SlotState is the ownership state of a Slot.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotRunning
)

// String returns a human-readable representation of the state.
func (s SlotState) String() string {
	if s == SlotRunning {
		return "Running"
	}
	return "Idle"
}

// Slot owns at most one running task at a time.
type Slot struct {
	mu     sync.Mutex
	state  SlotState
	cancel context.CancelFunc
	done   chan struct{}
}

// State returns whether a task currently owns the slot.
func (s *Slot) State() SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TryRun starts fn in a new goroutine if the slot is idle.
// It returns false without running fn if another task owns the slot.
func (s *Slot) TryRun(ctx context.Context, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotRunning {
		return false
	}
	s.startLocked(ctx, fn)
	return true
}

// Replace cancels the task owning the slot, waits for it to return, then
// starts fn.
func (s *Slot) Replace(ctx context.Context, fn func(ctx context.Context)) {
	for {
		s.mu.Lock()
		if s.state == SlotIdle {
			s.startLocked(ctx, fn)
			s.mu.Unlock()
			return
		}
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		cancel()
		<-done
	}
}

// Cancel signals the running task to stop. It does not wait.
func (s *Slot) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the slot is idle.
func (s *Slot) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Slot) startLocked(ctx context.Context, fn func(ctx context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.state = SlotRunning
	s.cancel = cancel
	s.done = done

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.done == done {
				s.state = SlotIdle
				s.cancel = nil
				s.done = nil
			}
			s.mu.Unlock()
			close(done)
		}()
		fn(runCtx)
	}()
}
