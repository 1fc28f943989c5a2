// Package pipeline runs the intercept, filter and virtual device stages
// together, joined by a FIFO or an in-process pipe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/stick2wheel/internal/fifo"
	"github.com/banshee-data/stick2wheel/internal/filter"
	"github.com/banshee-data/stick2wheel/internal/fsutil"
	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
	"github.com/banshee-data/stick2wheel/internal/source"
	"github.com/banshee-data/stick2wheel/internal/uinput"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// Config selects the pieces of one pipeline run.
type Config struct {
	// Device is a source spec: an event node, a file, "-" or "serial:PATH".
	Device string
	// FIFO, when set, joins the intercept and filter stages through a named
	// pipe created on demand. Otherwise they share an in-process pipe.
	FIFO string
	// Descriptor is the YAML description of the virtual device.
	Descriptor string
	// WheelAxes rewrites the descriptor so the output axis spans the wheel's
	// range and the stick axes are dropped.
	WheelAxes bool
	Grab      bool
	Params    wheel.Params
}

// Validate fails on missing required settings before anything is opened.
func (c Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device is not set"))
	}
	if c.Descriptor == "" {
		errs = append(errs, errors.New("descriptor is not set"))
	}
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("params: %w", err))
	}
	return errors.Join(errs...)
}

// Sink is the virtual device end of the pipeline.
type Sink interface {
	WriteEvents(evs ...evdev.InputEvent) error
	Close() error
}

// Deps are the side effects of a run. Zero fields get the real
// implementations.
type Deps struct {
	FS         fsutil.FileSystem
	OpenSource func(spec string, grab bool) (io.ReadCloser, error)
	OpenFIFO   func(path string) (io.ReadCloser, io.WriteCloser, error)
	CreateSink func(desc uinput.Descriptor) (Sink, error)
	// FilterOptions are passed to filter.New, for example a publisher.
	FilterOptions []filter.Option
	// OnFilter is called with the filter before any events flow, so callers
	// can attach admin routes to it.
	OnFilter func(*filter.Filter)
}

func (d Deps) withDefaults() Deps {
	if d.FS == nil {
		d.FS = fsutil.OSFileSystem{}
	}
	if d.OpenSource == nil {
		fsys := d.FS
		d.OpenSource = func(spec string, grab bool) (io.ReadCloser, error) {
			return source.Open(spec, source.Options{Grab: grab, FS: fsys})
		}
	}
	if d.OpenFIFO == nil {
		d.OpenFIFO = func(path string) (io.ReadCloser, io.WriteCloser, error) {
			return fifo.OpenPair(path)
		}
	}
	if d.CreateSink == nil {
		d.CreateSink = func(desc uinput.Descriptor) (Sink, error) {
			return uinput.Create(desc)
		}
	}
	return d
}

// closeOnce guards a closer that several stages may release.
type closeOnce struct {
	once sync.Once
	c    io.Closer
	err  error
}

func (o *closeOnce) Close() error {
	o.once.Do(func() { o.err = o.c.Close() })
	return o.err
}

// Run starts every stage and waits for them. The first stage to fail
// cancels the rest and its error is returned. A source that ends drains
// through the filter and the device and returns nil. A cancelled ctx closes
// every stream at once without draining and also returns nil.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	deps = deps.withDefaults()

	desc, err := uinput.LoadDescriptor(deps.FS, cfg.Descriptor)
	if err != nil {
		return err
	}
	if cfg.WheelAxes {
		desc = uinput.WheelDescriptor(desc, cfg.Params)
	}
	f, err := filter.New(cfg.Params, deps.FilterOptions...)
	if err != nil {
		return err
	}
	if deps.OnFilter != nil {
		deps.OnFilter(f)
	}

	var (
		linkR io.ReadCloser
		linkW io.WriteCloser
	)
	if cfg.FIFO != "" {
		if err := fifo.Ensure(deps.FS, cfg.FIFO, fifo.DefaultPerm); err != nil {
			return err
		}
		linkR, linkW, err = deps.OpenFIFO(cfg.FIFO)
		if err != nil {
			return err
		}
	} else {
		linkR, linkW = io.Pipe()
	}
	in := &closeOnce{c: linkR}
	link := &closeOnce{c: linkW}

	src, err := deps.OpenSource(cfg.Device, cfg.Grab)
	if err != nil {
		in.Close()
		link.Close()
		return fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	srcCloser := &closeOnce{c: src}

	sink, err := deps.CreateSink(desc)
	if err != nil {
		srcCloser.Close()
		in.Close()
		link.Close()
		return fmt.Errorf("create virtual device: %w", err)
	}
	monitoring.Logf("pipeline: %s -> filter -> %q", cfg.Device, desc.Name)

	outR, outW := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	// closing every stream unblocks whichever read is pending
	g.Go(func() error {
		<-gctx.Done()
		srcCloser.Close()
		link.Close()
		in.Close()
		outW.CloseWithError(gctx.Err())
		outR.Close()
		return nil
	})

	g.Go(func() error {
		defer link.Close()
		_, err := io.Copy(linkW, src)
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("intercept: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer outW.Close()
		err := f.Run(gctx, inputevent.NewReader(linkR), inputevent.NewWriter(outW))
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("filter: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := uinput.Sink(gctx, inputevent.NewReader(outR), sink)
		closeErr := sink.Close()
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("uinput: %w", err)
		}
		if closeErr != nil {
			return fmt.Errorf("uinput: close: %w", closeErr)
		}
		// the chain has drained, let the watcher go
		return errDrained
	})

	// cancellation from the caller is a normal stop
	err = g.Wait()
	if errors.Is(err, errDrained) {
		err = nil
	}
	st := f.Stats()
	monitoring.Logf("pipeline stopped: %d events in, %d reports (%d synthetic), %d decode errors",
		st.EventsIn, st.Reports, st.Synthetic, st.DecodeErrors)
	return err
}

var errDrained = errors.New("pipeline drained")
