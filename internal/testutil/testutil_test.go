package testutil

import (
	"net/http"
	"testing"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
)

func TestLocalRequest(t *testing.T) {
	req := LocalRequest(http.MethodPost, "/debug/wheel", nil)
	if req.Method != http.MethodPost || req.URL.Path != "/debug/wheel" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
}

func TestStickFrameRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 250000)
	frame := StickFrame(at, 100, -200)

	b := inputevent.Encode(frame...)
	// a trailing partial record is dropped
	b = append(b, 1, 2, 3)
	got := DecodeAll(t, b)
	if len(got) != 3 {
		t.Fatalf("decoded %d events, want 3", len(got))
	}
	if got[0].Code != evdev.ABS_X || got[0].Value != 100 || got[1].Value != -200 {
		t.Errorf("unexpected frame %+v", got)
	}
	if !inputevent.IsReport(got[2]) {
		t.Errorf("last event %+v is not a sync report", got[2])
	}
	if !inputevent.Time(got[0]).Equal(at) {
		t.Errorf("time = %v, want %v", inputevent.Time(got[0]), at)
	}
}

func TestEventRecorder(t *testing.T) {
	var w EventRecorder
	frame := StickFrame(time.Unix(0, 0), 1, 2)
	if err := w.WriteEvents(frame[:2]...); err != nil {
		t.Fatal(err)
	}
	_ = w.WriteEvents(frame[2])
	if got := w.Events(); len(got) != 3 {
		t.Errorf("recorded %d events, want 3", len(got))
	}
}
