// Package filter is the analogstick2wheel stage: it consumes a raw input event
// stream, replaces the analog stick with a steering wheel axis and passes every
// other event through untouched.
package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
	"github.com/banshee-data/stick2wheel/internal/timeutil"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// MaxConsecutiveReadErrors bounds how long Run keeps resyncing a stream that
// only produces errors.
const MaxConsecutiveReadErrors = 16

// EventReader is the decoding side of an input event stream.
type EventReader interface {
	ReadEvent() (evdev.InputEvent, error)
	Resync() (int, error)
}

// EventWriter is the encoding side of an input event stream.
type EventWriter interface {
	WriteEvents(evs ...evdev.InputEvent) error
}

// Publisher receives every wheel report the filter emits.
type Publisher interface {
	Publish(wheel.Report)
}

// Filter holds the wheel model state between events.
type Filter struct {
	params wheel.Params
	clock  timeutil.Clock
	pub    Publisher

	// emitMu keeps processing and writing of one report atomic with respect
	// to the idle ticker, so reports leave in sequence order.
	emitMu sync.Mutex

	mu         sync.RWMutex
	prev       wheel.Processed
	cur        wheel.Frame
	wheelAngle float64
	axisValue  int32
	lastReport time.Time
	paused     bool
	seq        uint64

	stats counters
}

type counters struct {
	eventsIn      atomic.Uint64
	passedThrough atomic.Uint64
	reports       atomic.Uint64
	synthetic     atomic.Uint64
	decodeErrors  atomic.Uint64
}

// Stats is a point-in-time copy of the filter counters.
type Stats struct {
	EventsIn      uint64 `json:"events_in"`
	PassedThrough uint64 `json:"passed_through"`
	Reports       uint64 `json:"reports"`
	Synthetic     uint64 `json:"synthetic_reports"`
	DecodeErrors  uint64 `json:"decode_errors"`
}

// Snapshot describes the current wheel.
type Snapshot struct {
	WheelAngle float64     `json:"wheel_angle"`
	AxisValue  int32       `json:"axis_value"`
	State      wheel.State `json:"state"`
	Paused     bool        `json:"paused"`
	LastReport time.Time   `json:"last_report"`
	Stats      Stats       `json:"stats"`
}

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c timeutil.Clock) Option {
	return func(f *Filter) {
		f.clock = c
	}
}

// WithPublisher sends every report to p.
func WithPublisher(p Publisher) Option {
	return func(f *Filter) {
		f.pub = p
	}
}

// New creates a Filter with a centred wheel.
func New(p wheel.Params, opts ...Option) (*Filter, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wheel parameters: %w", err)
	}
	f := &Filter{params: p, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(f)
	}
	f.lastReport = f.clock.Now()
	f.axisValue = wheel.Quantize(0, p)
	return f, nil
}

// Params returns the parameters the filter was built with.
func (f *Filter) Params() wheel.Params {
	return f.params
}

// HandleEvent feeds one input event through the model. It returns the events
// to forward downstream and, for a sync report, the wheel report produced.
func (f *Filter) HandleEvent(ev evdev.InputEvent) ([]evdev.InputEvent, *wheel.Report) {
	f.stats.eventsIn.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.paused {
		f.stats.passedThrough.Add(1)
		return []evdev.InputEvent{ev}, nil
	}

	switch {
	case inputevent.IsAbs(ev, f.params.InputX):
		f.cur.X = ev.Value
		return nil, nil
	case inputevent.IsAbs(ev, f.params.InputY):
		f.cur.Y = ev.Value
		return nil, nil
	case inputevent.IsReport(ev):
		now := f.clock.Now()
		out, report, processed := f.tickLocked(ev.Time, now)
		f.prev = processed
		f.lastReport = now
		if skew := now.Sub(inputevent.Time(ev)); skew > 0 {
			report.Skew = skew
		}
		f.stats.reports.Add(1)
		return out, &report
	default:
		f.stats.passedThrough.Add(1)
		return []evdev.InputEvent{ev}, nil
	}
}

// tickLocked steps the wheel from the current frame and builds the axis and
// sync events stamped with stamp. f.mu must be held.
func (f *Filter) tickLocked(stamp syscall.Timeval, now time.Time) ([]evdev.InputEvent, wheel.Report, wheel.Processed) {
	processed := wheel.Process(f.cur, f.params)
	dt := now.Sub(f.lastReport).Seconds()
	f.wheelAngle = wheel.Step(f.wheelAngle, processed, f.prev, dt, f.params)
	f.axisValue = wheel.Quantize(f.wheelAngle, f.params)

	out := []evdev.InputEvent{
		{Time: stamp, Type: evdev.EV_ABS, Code: f.params.OutputAxis, Value: f.axisValue},
		{Time: stamp, Type: evdev.EV_SYN, Code: evdev.SYN_REPORT, Value: 0},
	}

	f.seq++
	report := wheel.NewReport(inputevent.Time(out[0]), processed, f.wheelAngle, f.axisValue)
	report.Seq = f.seq
	return out, report, processed
}

// IdleTick synthesizes a report when the stick is released and the wheel has
// not settled at centre, so the wheel keeps easing back even when the device
// goes quiet. It returns nil when no report is due.
func (f *Filter) IdleTick() ([]evdev.InputEvent, *wheel.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.paused || math.Abs(f.wheelAngle) <= f.params.IdleAngle || f.prev.State != wheel.Freewheel {
		return nil, nil
	}
	now := f.clock.Now()
	if now.Sub(f.lastReport) <= f.params.MinReportGap {
		return nil, nil
	}

	out, report, _ := f.tickLocked(inputevent.Timeval(now), now)
	report.Synthetic = true
	f.lastReport = now
	f.stats.reports.Add(1)
	f.stats.synthetic.Add(1)
	return out, &report
}

// Run filters events from r to w until r is exhausted or ctx is cancelled.
// The idle ticker runs alongside and shares w.
func (f *Filter) Run(ctx context.Context, r EventReader, w EventWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.RunIdle(ctx, w); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("idle ticker stopped: %v", err)
		}
	}()

	events := make(chan evdev.InputEvent)
	readErr := make(chan error, 1)

	// the blocking read lives in its own goroutine so cancellation is not
	// held up by a quiet device
	go func() {
		defer close(events)
		consecutive := 0
		for {
			ev, err := r.ReadEvent()
			if err == nil {
				consecutive = 0
				select {
				case events <- ev:
					continue
				case <-ctx.Done():
					return
				}
			}
			if inputevent.EndOfStream(err) {
				return
			}
			f.stats.decodeErrors.Add(1)
			consecutive++
			monitoring.Logf("error: %v", err)
			if consecutive > MaxConsecutiveReadErrors {
				readErr <- fmt.Errorf("giving up after %d consecutive read errors: %w", consecutive, err)
				return
			}
			if _, rerr := r.Resync(); rerr != nil && inputevent.EndOfStream(rerr) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case ev, ok := <-events:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if err := f.emit(w, func() ([]evdev.InputEvent, *wheel.Report) { return f.HandleEvent(ev) }); err != nil {
				return err
			}
		}
	}
}

// RunIdle drives IdleTick from the clock until ctx is cancelled.
func (f *Filter) RunIdle(ctx context.Context, w EventWriter) error {
	ticker := f.clock.NewTicker(f.params.IdleTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := f.emit(w, f.IdleTick); err != nil {
				return err
			}
		}
	}
}

func (f *Filter) emit(w EventWriter, step func() ([]evdev.InputEvent, *wheel.Report)) error {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()

	out, report := step()
	if len(out) > 0 {
		if err := w.WriteEvents(out...); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
	}
	if report != nil {
		monitoring.Debugf("%s   skew is %s", report, report.Skew)
		if f.pub != nil {
			f.pub.Publish(*report)
		}
	}
	return nil
}

// Snapshot returns the current wheel state and counters.
func (f *Filter) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Snapshot{
		WheelAngle: f.wheelAngle,
		AxisValue:  f.axisValue,
		State:      f.prev.State,
		Paused:     f.paused,
		LastReport: f.lastReport,
		Stats:      f.Stats(),
	}
}

// Stats returns the event counters.
func (f *Filter) Stats() Stats {
	return Stats{
		EventsIn:      f.stats.eventsIn.Load(),
		PassedThrough: f.stats.passedThrough.Load(),
		Reports:       f.stats.reports.Load(),
		Synthetic:     f.stats.synthetic.Load(),
		DecodeErrors:  f.stats.decodeErrors.Load(),
	}
}
