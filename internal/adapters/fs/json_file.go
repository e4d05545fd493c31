package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFile persists a JSON document to a single file.
type JSONFile struct {
	path string
}

// NewJSONFile creates a JSONFile for the given path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Load decodes the file into v.
// Returns false and nil error if the file does not exist.
func (f *JSONFile) Load(v any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// Save persists v atomically by writing a temp file next to the target and
// renaming it. Each call stages through its own temp file, so concurrent
// writers never share one.
func (f *JSONFile) Save(v any) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Path returns the full path to the file.
func (f *JSONFile) Path() string {
	return f.path
}
