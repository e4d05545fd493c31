package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/bft-labs/sensorrelay/internal/adapters/fs"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// DefaultDebounceDelay is the delay between a file change and its reload.
const DefaultDebounceDelay = 100 * time.Millisecond

// FileStore is a settings store persisted to a JSON file. Changes written to
// the file by another process are picked up by Run, and by every local write,
// and published to subscribers like local writes.
//
// All file access, here and in WriteValue, holds an advisory lock on
// <path>.lock, so a read-modify-write never overwrites another writer's keys.
type FileStore struct {
	mem    *MemoryStore
	file   *fs.JSONFile
	lock   *flock.Flock
	logger ports.Logger

	debounceDelay time.Duration

	// ioMu guards lock and saved within the process.
	ioMu sync.Mutex
	// saved is the document as last read from or written to the file.
	saved map[string]string

	mu       sync.Mutex
	debounce *time.Timer
}

// NewFileStore loads path (if present) and returns a store backed by it.
func NewFileStore(path string, logger ports.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	s := &FileStore{
		mem:           NewMemoryStore(),
		file:          fs.NewJSONFile(path),
		lock:          flock.New(lockPath(path)),
		logger:        logger,
		debounceDelay: DefaultDebounceDelay,
		saved:         map[string]string{},
	}
	if err := s.locked(s.mergeLocked); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func lockPath(path string) string { return path + ".lock" }

// SetDebounceDelay overrides the reload debounce delay.
func (s *FileStore) SetDebounceDelay(d time.Duration) {
	if d > 0 {
		s.debounceDelay = d
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.file.Path() }

// Get returns the value of key and whether it is set.
func (s *FileStore) Get(key string) (string, bool) { return s.mem.Get(key) }

// Subscribe returns an ordered stream of changes made after the call.
func (s *FileStore) Subscribe(ctx context.Context) <-chan ports.Change {
	return s.mem.Subscribe(ctx)
}

// Set writes a value and persists the store.
func (s *FileStore) Set(key, value string) error {
	return s.update(ports.Change{Key: key, Value: value})
}

// Remove deletes key and persists the store.
func (s *FileStore) Remove(key string) error {
	return s.update(ports.Change{Key: key, Removed: true})
}

// update merges external edits, applies c and saves the result.
func (s *FileStore) update(c ports.Change) error {
	return s.locked(func() error {
		if err := s.mergeLocked(); err != nil {
			// A corrupt file is replaced by the next save.
			s.logger.Warn("settings file unreadable", ports.Err(err))
		}
		if !s.mem.apply(c) {
			return nil
		}
		snapshot := s.mem.Snapshot()
		if err := s.file.Save(snapshot); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		s.saved = snapshot
		return nil
	})
}

// locked runs fn holding both the in-process and the cross-process lock.
func (s *FileStore) locked(fn func() error) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("settings unlock failed", ports.Err(err))
		}
	}()
	return fn()
}

// mergeLocked reads the file and publishes every key that changed since it
// was last read or written.
func (s *FileStore) mergeLocked() error {
	values := map[string]string{}
	if _, err := s.file.Load(&values); err != nil {
		return err
	}
	for k := range s.saved {
		if _, ok := values[k]; !ok {
			s.mem.apply(ports.Change{Key: k, Removed: true})
		}
	}
	for k, v := range values {
		if old, ok := s.saved[k]; !ok || old != v {
			s.mem.apply(ports.Change{Key: k, Value: v})
		}
	}
	s.saved = values
	return nil
}

// Run watches the backing file until ctx is done.
func (s *FileStore) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.file.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer s.stopDebounce()

	base := filepath.Base(s.file.Path())
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", ports.Err(err))
		}
	}
}

func (s *FileStore) debounceReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.debounceDelay, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("settings reload failed", ports.Err(err))
		}
	})
}

func (s *FileStore) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
}

// Reload reads the backing file and publishes every key changed by another
// writer.
func (s *FileStore) Reload() error {
	return s.locked(s.mergeLocked)
}

// WriteValue sets one key directly in a settings file. It is how processes
// other than the store owner (such as a UI) publish intents.
func WriteValue(path, key, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer lock.Unlock()

	f := fs.NewJSONFile(path)
	values := map[string]string{}
	if _, err := f.Load(&values); err != nil {
		return err
	}
	values[key] = value
	return f.Save(values)
}

var _ ports.SettingsStore = (*FileStore)(nil)
