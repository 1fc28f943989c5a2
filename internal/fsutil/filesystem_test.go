package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_ReadWrite(t *testing.T) {
	m := NewMemoryFileSystem()

	if err := m.WriteFile("/etc/stick2wheel/tuning.json", []byte(`{}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := m.ReadFile("/etc/stick2wheel/../stick2wheel/tuning.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("unexpected contents %q", got)
	}

	// callers must not be able to mutate stored data
	got[0] = 'x'
	again, _ := m.ReadFile("/etc/stick2wheel/tuning.json")
	if string(again) != "{}" {
		t.Error("ReadFile returned shared storage")
	}

	f, err := m.Open("/etc/stick2wheel/tuning.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "{}" {
		t.Errorf("unexpected contents from Open %q", data)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.ReadFile("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile: expected ErrNotExist, got %v", err)
	}
	if _, err := m.Stat("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat: expected ErrNotExist, got %v", err)
	}
	if _, err := m.Open("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open: expected ErrNotExist, got %v", err)
	}
	if err := m.Remove("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Remove: expected ErrNotExist, got %v", err)
	}
	if m.Exists("/nope") {
		t.Error("Exists reported a missing file")
	}
}

func TestMemoryFileSystem_Nodes(t *testing.T) {
	m := NewMemoryFileSystem()

	if err := m.Mkfifo("/tmp/wheel", 0600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}
	info, err := m.Stat("/tmp/wheel")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		t.Errorf("expected a named pipe, got mode %v", info.Mode())
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected perm 0600, got %v", info.Mode().Perm())
	}
	if err := m.Mkfifo("/tmp/wheel", 0600); !errors.Is(err, fs.ErrExist) {
		t.Errorf("second Mkfifo: expected ErrExist, got %v", err)
	}

	m.AddNode("/dev/input/event3", fs.ModeDevice|fs.ModeCharDevice|0660)
	info, err = m.Stat("/dev/input/event3")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		t.Errorf("expected a character device, got mode %v", info.Mode())
	}

	if err := m.Remove("/tmp/wheel"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if m.Exists("/tmp/wheel") {
		t.Error("FIFO still present after Remove")
	}
}

func TestOSFileSystem_Mkfifo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipe")

	var fsys OSFileSystem
	if err := fsys.Mkfifo(path, 0600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}
	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Errorf("expected a named pipe, got mode %v", info.Mode())
	}
	if !fsys.Exists(path) {
		t.Error("Exists did not find the FIFO")
	}

	var pathErr *fs.PathError
	if err := fsys.Mkfifo(path, 0600); !errors.As(err, &pathErr) {
		t.Errorf("expected a PathError for an existing node, got %v", err)
	}
}

func TestOSFileSystem_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")

	var fsys OSFileSystem
	if err := fsys.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("unexpected contents %q", got)
	}
	if err := fsys.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
