// Package testutil holds helpers shared by the stream and admin route tests.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
)

// LocalRequest builds a request that passes tsweb's loopback check on the
// /debug/ routes.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// StickFrame returns the events of one stick sample on ABS_X/ABS_Y, closed by
// a sync report.
func StickFrame(t time.Time, x, y int32) []evdev.InputEvent {
	return []evdev.InputEvent{
		inputevent.New(t, evdev.EV_ABS, evdev.ABS_X, x),
		inputevent.New(t, evdev.EV_ABS, evdev.ABS_Y, y),
		inputevent.New(t, evdev.EV_SYN, evdev.SYN_REPORT, 0),
	}
}

// DecodeAll decodes whole records from b, ignoring a trailing partial one.
func DecodeAll(t testing.TB, b []byte) []evdev.InputEvent {
	t.Helper()
	r := inputevent.NewReader(bytes.NewReader(b))
	var evs []evdev.InputEvent
	for {
		ev, err := r.ReadEvent()
		if err != nil {
			return evs
		}
		evs = append(evs, ev)
	}
}

// EventRecorder is an event writer that keeps everything it is given.
type EventRecorder struct {
	mu  sync.Mutex
	evs []evdev.InputEvent
}

func (w *EventRecorder) WriteEvents(evs ...evdev.InputEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evs = append(w.evs, evs...)
	return nil
}

// Events returns a copy of the recorded events.
func (w *EventRecorder) Events() []evdev.InputEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]evdev.InputEvent(nil), w.evs...)
}
