// Package fifo prepares the named pipes that connect pipeline stages.
package fifo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/banshee-data/stick2wheel/internal/fsutil"
)

// DefaultPerm is used for FIFOs created by the pipeline.
const DefaultPerm os.FileMode = 0o600

// ErrNotFIFO is returned when the path exists but is something else.
var ErrNotFIFO = errors.New("path exists and is not a FIFO")

// Ensure makes sure path is a FIFO, creating it when absent.
func Ensure(fsys fsutil.FileSystem, path string, perm os.FileMode) error {
	info, err := fsys.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("%s: %w (mode %v)", path, ErrNotFIFO, info.Mode())
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := fsys.Mkfifo(path, perm); err != nil {
			// lost a race with another stage creating the same pipe
			if errors.Is(err, fs.ErrExist) {
				return Ensure(fsys, path, perm)
			}
			return fmt.Errorf("create FIFO: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("stat %s: %w", path, err)
	}
}

// EnsureAll calls Ensure for each path and reports every failure.
func EnsureAll(fsys fsutil.FileSystem, perm os.FileMode, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := Ensure(fsys, p, perm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenPair opens both ends of the FIFO at path. The read end is opened
// non-blocking first so neither open waits for a peer, and so a pending read
// is interrupted when the file is closed.
func OpenPair(path string) (r, w *os.File, err error) {
	r, err = os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open FIFO for reading: %w", err)
	}
	w, err = os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("open FIFO for writing: %w", err)
	}
	return r, w, nil
}
