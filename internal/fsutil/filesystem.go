// Package fsutil abstracts the filesystem calls of the pipeline stages so
// tests can run them against memory.
package fsutil

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing/fstest"

	"golang.org/x/sys/unix"
)

// FileSystem covers plain files for configuration and descriptors, and the
// special nodes (FIFOs and character devices) that carry event streams.
type FileSystem interface {
	Open(name string) (fs.File, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (fs.FileInfo, error)
	// Mkfifo creates a named pipe. An existing path yields fs.ErrExist.
	Mkfifo(name string, perm os.FileMode) error
	Remove(name string) error
	Exists(name string) bool
}

// OSFileSystem is the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (fs.File, error)     { return os.Open(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFileSystem) Remove(name string) error              { return os.Remove(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Mkfifo creates a FIFO with mknod(2). The process umask still applies.
func (OSFileSystem) Mkfifo(name string, perm os.FileMode) error {
	if err := unix.Mkfifo(name, uint32(perm.Perm())); err != nil {
		return &fs.PathError{Op: "mkfifo", Path: name, Err: err}
	}
	return nil
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem keeps files in an fstest.MapFS. Paths are cleaned and
// treated as absolute, and parent directories exist implicitly. Special nodes
// only carry a mode; opening one yields an empty stream.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files fstest.MapFS
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: fstest.MapFS{}}
}

// key maps an OS-style path to a MapFS name.
func key(name string) string {
	k := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if k == "" {
		return "."
	}
	return k
}

// AddNode registers a special node such as a character device.
func (m *MemoryFileSystem) AddNode(name string, mode os.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(name)] = &fstest.MapFile{Mode: mode}
}

// Stored files are replaced, never modified, so a file opened here stays
// valid after the lock is released.
func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.Open(key(name))
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.ReadFile(key(name))
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key(name)] = &fstest.MapFile{Data: slices.Clone(data), Mode: perm.Perm()}
	return nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files.Stat(key(name))
}

func (m *MemoryFileSystem) Mkfifo(name string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name)
	if _, err := m.files.Stat(k); err == nil {
		return &fs.PathError{Op: "mkfifo", Path: name, Err: fs.ErrExist}
	}
	m.files[k] = &fstest.MapFile{Mode: fs.ModeNamedPipe | perm.Perm()}
	return nil
}

func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name)
	if _, ok := m.files[k]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, k)
	return nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	_, err := m.Stat(name)
	return err == nil
}
