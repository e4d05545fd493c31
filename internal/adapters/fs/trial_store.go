package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// ErrInvalidName is returned for names that would escape the storage root.
var ErrInvalidName = errors.New("fs: invalid file name")

// TrialStore implements ports.TrialStore over a single directory.
type TrialStore struct {
	root string
}

// NewTrialStore creates the storage root if needed.
func NewTrialStore(root string) (*TrialStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create storage root: %w: %w", domain.ErrIO, err)
	}
	return &TrialStore{root: root}, nil
}

// Root returns the storage root directory.
func (s *TrialStore) Root() string {
	return s.root
}

// List returns regular files under the root, sorted by name.
func (s *TrialStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", s.root, domain.ErrIO, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open opens a stored file for reading.
func (s *TrialStore) Open(name string) (ports.TrialFile, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", name, domain.ErrIO, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w: %w", name, domain.ErrIO, err)
	}
	return &trialFile{File: f, size: st.Size()}, nil
}

// Create creates a new file. It fails if the file already exists.
func (s *TrialStore) Create(name string) (ports.TrialWriter, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w: %w", name, domain.ErrIO, err)
	}
	return f, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *TrialStore) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w: %w", name, domain.ErrIO, err)
	}
	return nil
}

func (s *TrialStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

type trialFile struct {
	*os.File
	size int64
}

func (f *trialFile) Size() int64 { return f.size }

var _ ports.TrialStore = (*TrialStore)(nil)
