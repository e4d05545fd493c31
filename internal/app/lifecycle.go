package app

import (
	"sync"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// canTransition reports whether a service may move from one state to another.
func canTransition(from, to State) bool {
	switch to {
	case StateStarting:
		return from == StateStopped || from == StateCrashed
	case StateRunning:
		return from == StateStarting
	case StateStopping:
		return from == StateStarting || from == StateRunning
	case StateStopped:
		return from == StateStopping
	case StateCrashed:
		return from == StateStarting || from == StateRunning || from == StateStopping
	}
	return false
}

// StateObserver is notified after every lifecycle transition.
type StateObserver interface {
	OnStateChange(service string, previous, current State, reason string)
}

// lifecycle holds the state of one service and the goroutines it owns.
type lifecycle struct {
	name     string
	logger   ports.Logger
	observer StateObserver

	mu    sync.RWMutex
	state State

	workers sync.WaitGroup
}

func newLifecycle(name string, logger ports.Logger) *lifecycle {
	return &lifecycle{name: name, logger: logger, state: StateStopped}
}

func (l *lifecycle) current() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// in reports whether the current state is one of states.
func (l *lifecycle) in(states ...State) bool {
	cur := l.current()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// transition moves to next. A refused transition leaves the state unchanged
// and returns ErrNotRunning from a resting state, ErrAlreadyRunning otherwise.
func (l *lifecycle) transition(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !canTransition(prev, next) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.OnStateChange(l.name, prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.String("service", l.name),
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason))
	return nil
}

// spawn runs fn on a goroutine tracked by wait.
func (l *lifecycle) spawn(fn func()) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		fn()
	}()
}

func (l *lifecycle) wait() {
	l.workers.Wait()
}
