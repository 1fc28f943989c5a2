// Package source opens the byte streams the filter reads input events from:
// standard input, FIFOs and files, evdev device nodes and serial links.
package source

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
	"go.bug.st/serial"

	"github.com/banshee-data/stick2wheel/internal/fsutil"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
)

// Kind is the type of stream a source spec resolves to.
type Kind int

const (
	KindStdin Kind = iota
	KindSerial
	KindFile
	KindFIFO
	KindEvdev
)

func (k Kind) String() string {
	switch k {
	case KindStdin:
		return "stdin"
	case KindSerial:
		return "serial"
	case KindFile:
		return "file"
	case KindFIFO:
		return "fifo"
	case KindEvdev:
		return "evdev"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SerialPrefix marks a source spec as a serial port path.
const SerialPrefix = "serial:"

// ErrUnsupported is returned for paths that cannot carry an event stream.
var ErrUnsupported = errors.New("unsupported source")

// Port is an open event stream.
type Port interface {
	io.ReadCloser
}

// Spec is a parsed source description.
type Spec struct {
	Kind Kind
	Path string
}

func (s Spec) String() string {
	if s.Kind == KindStdin {
		return "stdin"
	}
	return s.Kind.String() + ":" + s.Path
}

// SerialOpener opens a serial port. It matches serial.Open so tests can swap
// in a fake.
type SerialOpener func(path string, mode *serial.Mode) (io.ReadCloser, error)

// EvdevOpener opens an evdev node, optionally grabbing it.
type EvdevOpener func(path string, grab bool) (Port, error)

// Options controls how Open resolves and opens a source.
type Options struct {
	Serial PortOptions
	// Grab takes exclusive access to evdev nodes so the desktop does not see
	// the raw stick.
	Grab bool

	FS    fsutil.FileSystem
	Stdin io.Reader

	OpenSerial SerialOpener
	OpenEvdev  EvdevOpener
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.OpenSerial == nil {
		o.OpenSerial = func(path string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(path, mode)
		}
	}
	if o.OpenEvdev == nil {
		o.OpenEvdev = OpenEvdev
	}
	return o
}

// Parse resolves a source spec. "-" and "" mean standard input, a
// "serial:" prefix selects a serial port, and any other value is a path whose
// file type decides between FIFO, regular file and evdev node.
func Parse(fsys fsutil.FileSystem, spec string) (Spec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "-" {
		return Spec{Kind: KindStdin}, nil
	}
	if path, ok := strings.CutPrefix(spec, SerialPrefix); ok {
		if path == "" {
			return Spec{}, fmt.Errorf("%w: serial source without a port path", ErrUnsupported)
		}
		return Spec{Kind: KindSerial, Path: path}, nil
	}

	info, err := fsys.Stat(spec)
	if err != nil {
		return Spec{}, fmt.Errorf("stat source: %w", err)
	}
	mode := info.Mode()
	switch {
	case mode&fs.ModeNamedPipe != 0:
		return Spec{Kind: KindFIFO, Path: spec}, nil
	case mode&fs.ModeCharDevice != 0:
		return Spec{Kind: KindEvdev, Path: spec}, nil
	case mode.IsRegular():
		return Spec{Kind: KindFile, Path: spec}, nil
	default:
		return Spec{}, fmt.Errorf("%w: %s has mode %v", ErrUnsupported, spec, mode)
	}
}

// Open parses spec and opens the stream it names.
func Open(spec string, opts Options) (Port, error) {
	opts = opts.withDefaults()
	s, err := Parse(opts.FS, spec)
	if err != nil {
		return nil, err
	}

	switch s.Kind {
	case KindStdin:
		return io.NopCloser(opts.Stdin), nil
	case KindSerial:
		mode, err := opts.Serial.SerialMode()
		if err != nil {
			return nil, fmt.Errorf("serial options: %w", err)
		}
		port, err := opts.OpenSerial(s.Path, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", s.Path, err)
		}
		monitoring.Logf("reading events from serial port %s at %d baud", s.Path, mode.BaudRate)
		return port, nil
	case KindFIFO, KindFile:
		f, err := opts.FS.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.Path, err)
		}
		return f, nil
	case KindEvdev:
		return opts.OpenEvdev(s.Path, opts.Grab)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, s)
	}
}

// evdevPort reads raw records straight from the device file.
type evdevPort struct {
	dev     *evdev.InputDevice
	grabbed bool
}

// OpenEvdev opens an evdev node and, when grab is set, takes exclusive access
// until Close.
func OpenEvdev(path string, grab bool) (Port, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open evdev device %s: %w", path, err)
	}
	p := &evdevPort{dev: dev}
	if grab {
		if err := dev.Grab(); err != nil {
			dev.File.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
		p.grabbed = true
	}
	monitoring.Logf("reading events from %s (%s), grabbed=%t", path, dev.Name, grab)
	return p, nil
}

func (p *evdevPort) Read(b []byte) (int, error) {
	return p.dev.File.Read(b)
}

func (p *evdevPort) Close() error {
	var errs []error
	if p.grabbed {
		if err := p.dev.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release: %w", err))
		}
		p.grabbed = false
	}
	if err := p.dev.File.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
