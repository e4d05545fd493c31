package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// Component is a long-running part of a service.
// Run blocks until ctx is done or the component fails.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

type funcComponent struct {
	name string
	run  func(ctx context.Context) error
}

func (c funcComponent) Name() string                  { return c.name }
func (c funcComponent) Run(ctx context.Context) error { return c.run(ctx) }

// NewComponent wraps fn as a Component.
func NewComponent(name string, fn func(ctx context.Context) error) Component {
	return funcComponent{name: name, run: fn}
}

// Service runs a set of components under one lifecycle.
// Use NewService to create one, then Start to run it in the background.
type Service struct {
	mu         sync.Mutex
	name       string
	components []Component
	lifecycle  *lifecycle
	logger     ports.Logger
	timeout    time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithShutdownTimeout overrides ShutdownTimeout.
func WithShutdownTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithStateObserver registers an observer for lifecycle transitions.
func WithStateObserver(o StateObserver) ServiceOption {
	return func(s *Service) {
		s.lifecycle.observer = o
	}
}

// NewService creates a stopped service.
func NewService(name string, logger ports.Logger, components []Component, opts ...ServiceOption) *Service {
	s := &Service{
		name:       name,
		components: components,
		lifecycle:  newLifecycle(name, logger),
		logger:     logger,
		timeout:    ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs every component in its own goroutine and returns immediately.
// If any component fails, the others are cancelled and the service crashes.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.in(StateStopped, StateCrashed) {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.transition(StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.err = nil

	var (
		errOnce  sync.Once
		firstErr error
	)
	for _, c := range s.components {
		s.lifecycle.spawn(func() {
			s.logger.Debug("component starting", ports.String("component", c.Name()))
			err := c.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("component failed",
					ports.String("component", c.Name()),
					ports.Err(err))
				errOnce.Do(func() {
					firstErr = fmt.Errorf("%s: %w", c.Name(), err)
					cancel()
				})
				return
			}
			s.logger.Debug("component stopped", ports.String("component", c.Name()))
		})
	}

	if err := s.lifecycle.transition(StateRunning, "components started"); err != nil {
		cancel()
		return err
	}

	done := s.done
	go func() {
		s.lifecycle.wait()
		s.mu.Lock()
		s.err = firstErr
		s.mu.Unlock()
		if firstErr != nil {
			_ = s.lifecycle.transition(StateCrashed, firstErr.Error())
		}
		close(done)
	}()
	return nil
}

// Stop cancels all components and waits for them up to the shutdown timeout.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.in(StateStarting, StateRunning) {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.transition(StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(s.timeout):
		s.logger.Warn("shutdown timeout, forcing exit",
			ports.String("service", s.name),
			ports.Duration("timeout", s.timeout))
		_ = s.lifecycle.transition(StateCrashed, "shutdown timeout")
		return domain.ErrShutdownTimeout
	}

	if s.lifecycle.current() == StateStopping {
		_ = s.lifecycle.transition(StateStopped, "graceful shutdown")
	}
	return nil
}

// Done is closed once every component has returned.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Err returns the first component failure, if any, after Done is closed.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	return s.lifecycle.current()
}
