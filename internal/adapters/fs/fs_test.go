package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

func TestJSONFile_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	f := NewJSONFile(filepath.Join(dir, "nested", "settings.json"))

	var empty map[string]string
	ok, err := f.Load(&empty)
	if err != nil || ok {
		t.Fatalf("Load() on missing file = %v, %v, want false, nil", ok, err)
	}

	in := map[string]string{"hostIp": "192.168.1.10:12345", "isRecording": "false"}
	if err := f.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries after Save(), want only the target", len(entries))
	}

	var out map[string]string
	ok, err = f.Load(&out)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("Load() = %v, want %v", out, in)
	}
}

func TestJSONFile_ConcurrentSaves(t *testing.T) {
	f := NewJSONFile(filepath.Join(t.TempDir(), "settings.json"))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- f.Save(map[string]string{"writer": strconv.Itoa(i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Save() error = %v", err)
		}
	}

	var out map[string]string
	if ok, err := f.Load(&out); err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if _, ok := out["writer"]; !ok {
		t.Errorf("Load() = %v, want one writer's document", out)
	}
}

func TestJSONFile_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	if _, err := NewJSONFile(path).Load(&out); err == nil {
		t.Error("Load() expected error for corrupt file")
	}
}

func TestTrialStore_Lifecycle(t *testing.T) {
	s, err := NewTrialStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("NewTrialStore() error = %v", err)
	}

	w, err := s.Create("trial_acc_2024-6-20_16-24-44")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := w.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("def")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Create("trial_acc_2024-6-20_16-24-44"); !errors.Is(err, domain.ErrIO) {
		t.Errorf("Create() on existing file error = %v, want ErrIO", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"trial_acc_2024-6-20_16-24-44"}) {
		t.Errorf("List() = %v", names)
	}

	f, err := s.Open("trial_acc_2024-6-20_16-24-44")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if f.Size() != 6 {
		t.Errorf("Size() = %d, want 6", f.Size())
	}
	buf := make([]byte, 3)
	if _, err := f.ReadAt(buf, 3); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if string(buf) != "def" {
		t.Errorf("ReadAt() = %q, want def", buf)
	}
	f.Close()

	if err := s.Remove("trial_acc_2024-6-20_16-24-44"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove("trial_acc_2024-6-20_16-24-44"); err != nil {
		t.Errorf("Remove() of missing file error = %v, want nil", err)
	}
	if _, err := s.Open("trial_acc_2024-6-20_16-24-44"); !errors.Is(err, domain.ErrIO) {
		t.Errorf("Open() of missing file error = %v, want ErrIO", err)
	}
}

func TestTrialStore_RejectsEscapingNames(t *testing.T) {
	s, err := NewTrialStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "../x", "a/b"} {
		if _, err := s.Open(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Open(%q) error = %v, want ErrInvalidName", name, err)
		}
		if err := s.Remove(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Remove(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestTrialStore_ListSkipsDirsAndTemp(t *testing.T) {
	root := t.TempDir()
	s, err := NewTrialStore(root)
	if err != nil {
		t.Fatal(err)
	}
	os.Mkdir(filepath.Join(root, "sub"), 0o700)
	os.WriteFile(filepath.Join(root, "b.tmp"), nil, 0o600)
	os.WriteFile(filepath.Join(root, "trial_b"), nil, 0o600)
	os.WriteFile(filepath.Join(root, "trial_a"), nil, 0o600)

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"trial_a", "trial_b"}) {
		t.Errorf("List() = %v", names)
	}
}
