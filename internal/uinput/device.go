package uinput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
)

// Device is a live virtual input device.
type Device struct {
	name string
	drv  Driver
	w    *inputevent.Writer

	mu     sync.Mutex
	closed bool
}

// Create opens DevicePath and registers a device described by desc.
func Create(desc Descriptor) (*Device, error) {
	drv, err := OpenDriver(DevicePath)
	if err != nil {
		return nil, err
	}
	dev, err := CreateWith(drv, desc)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return dev, nil
}

// CreateWith registers desc through drv. The caller keeps ownership of drv
// on error.
func CreateWith(drv Driver, desc Descriptor) (*Device, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	for _, typ := range desc.Events.Types() {
		if err := drv.SetEvBit(typ); err != nil {
			return nil, fmt.Errorf("enable %s: %w", inputevent.TypeName(typ), err)
		}
		if typ == evdev.EV_ABS {
			// axes are enabled below together with their ranges
			continue
		}
		for _, code := range desc.Events.Codes[typ] {
			if err := drv.SetCodeBit(typ, code); err != nil {
				return nil, fmt.Errorf("enable %s: %w", inputevent.CodeName(typ, code), err)
			}
		}
	}

	for _, code := range slices.Sorted(maps.Keys(desc.Events.Abs)) {
		if err := drv.SetCodeBit(evdev.EV_ABS, code); err != nil {
			return nil, fmt.Errorf("enable %s: %w", inputevent.CodeName(evdev.EV_ABS, code), err)
		}
		if err := drv.AbsSetup(code, desc.Events.Abs[code]); err != nil {
			return nil, fmt.Errorf("set up %s: %w", inputevent.CodeName(evdev.EV_ABS, code), err)
		}
	}

	for _, p := range desc.Properties {
		if err := drv.SetPropBit(p); err != nil {
			return nil, fmt.Errorf("set property %v: %w", p, err)
		}
	}

	id := inputID{
		Bustype: uint16(desc.Bustype),
		Vendor:  desc.Vendor,
		Product: desc.Product,
		Version: desc.Version,
	}
	if err := drv.DevSetup(desc.Name, id); err != nil {
		return nil, fmt.Errorf("device setup: %w", err)
	}
	if err := drv.DevCreate(); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	monitoring.Logf("created virtual device %q (%04x:%04x)", desc.Name, desc.Vendor, desc.Product)
	return &Device{name: desc.Name, drv: drv, w: inputevent.NewWriter(drv)}, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// WriteEvents injects evs into the device.
func (d *Device) WriteEvents(evs ...evdev.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return io.ErrClosedPipe
	}
	return d.w.WriteEvents(evs...)
}

// Close destroys the virtual device. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return errors.Join(d.drv.DevDestroy(), d.drv.Close())
}

// EventReader is the decoding side of an event stream.
type EventReader interface {
	ReadEvent() (evdev.InputEvent, error)
	Resync() (int, error)
}

// EventWriter accepts batches of events.
type EventWriter interface {
	WriteEvents(evs ...evdev.InputEvent) error
}

// maxBatch caps how many events are held back waiting for a sync.
const maxBatch = 64

// Sink copies events from r to w until r is exhausted or ctx is cancelled.
// Events are forwarded in batches ending at each EV_SYN so a device never
// sees half a report.
func Sink(ctx context.Context, r EventReader, w EventWriter) error {
	events := make(chan evdev.InputEvent)
	readErr := make(chan error, 1)

	go func() {
		defer close(events)
		for {
			ev, err := r.ReadEvent()
			if err != nil {
				if inputevent.EndOfStream(err) {
					return
				}
				if errors.Is(err, io.ErrUnexpectedEOF) {
					monitoring.Logf("error: %v", err)
					return
				}
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	batch := make([]evdev.InputEvent, 0, maxBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.WriteEvents(batch...)
		batch = batch[:0]
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return errors.Join(fmt.Errorf("read events: %w", err), flush())
		case ev, ok := <-events:
			if !ok {
				select {
				case err := <-readErr:
					return errors.Join(fmt.Errorf("read events: %w", err), flush())
				default:
				}
				return flush()
			}
			batch = append(batch, ev)
			if ev.Type == evdev.EV_SYN || len(batch) == maxBatch {
				if err := flush(); err != nil {
					return fmt.Errorf("write events: %w", err)
				}
			}
		}
	}
}
