package settings

import (
	"context"
	"sync"

	"github.com/bft-labs/sensorrelay/internal/ports"
)

// MemoryStore implements ports.SettingsStore in memory.
//
// Each subscriber owns an unbounded queue so a slow consumer never blocks
// writers, and every subscriber observes changes in write order.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	subs   map[*subscriber]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Get returns the value of key and whether it is set.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set writes a value and notifies subscribers if it changed.
func (s *MemoryStore) Set(key, value string) error {
	s.apply(ports.Change{Key: key, Value: value})
	return nil
}

// Remove deletes key and notifies subscribers if it was set.
func (s *MemoryStore) Remove(key string) error {
	s.apply(ports.Change{Key: key, Removed: true})
	return nil
}

// Snapshot returns a copy of all values.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// apply records c and reports whether it changed the store.
func (s *MemoryStore) apply(c ports.Change) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.values[c.Key]
	if c.Removed {
		if !ok {
			return false
		}
		delete(s.values, c.Key)
	} else {
		if ok && old == c.Value {
			return false
		}
		s.values[c.Key] = c.Value
	}

	for sub := range s.subs {
		sub.push(c)
	}
	return true
}

// Subscribe returns an ordered stream of changes made after the call.
func (s *MemoryStore) Subscribe(ctx context.Context) <-chan ports.Change {
	sub := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan ports.Change),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(sub.out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
		}()
		sub.pump(ctx)
	}()

	return sub.out
}

type subscriber struct {
	mu     sync.Mutex
	queue  []ports.Change
	notify chan struct{}
	out    chan ports.Change
}

func (sub *subscriber) push(c ports.Change) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, c)
	sub.mu.Unlock()

	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *subscriber) pop() (ports.Change, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) == 0 {
		return ports.Change{}, false
	}
	c := sub.queue[0]
	sub.queue[0] = ports.Change{}
	sub.queue = sub.queue[1:]
	return c, true
}

func (sub *subscriber) pump(ctx context.Context) {
	for {
		c, ok := sub.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case sub.out <- c:
		}
	}
}

var _ ports.SettingsStore = (*MemoryStore)(nil)
