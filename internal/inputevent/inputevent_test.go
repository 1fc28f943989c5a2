package inputevent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	evdev "github.com/gvalkov/golang-evdev"
)

func TestRoundTripStream(t *testing.T) {
	ts := time.Date(2025, time.March, 3, 12, 0, 0, 250000000, time.UTC)
	in := []evdev.InputEvent{
		New(ts, evdev.EV_ABS, evdev.ABS_X, -12000),
		New(ts, evdev.EV_ABS, evdev.ABS_Y, 31000),
		New(ts, evdev.EV_SYN, evdev.SYN_REPORT, 0),
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteEvents(in...); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if buf.Len() != len(in)*Size {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), len(in)*Size)
	}

	r := NewReader(&buf)
	var got []evdev.InputEvent
	for {
		ev, err := r.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadEvent: %v", err)
		}
		got = append(got, ev)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEvent_ShortRecord(t *testing.T) {
	full := Encode(New(time.Unix(1, 0), evdev.EV_KEY, evdev.KEY_A, 1))
	r := NewReader(bytes.NewReader(full[:Size-3]))
	_, err := r.ReadEvent()
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ErrShortRead should wrap io.ErrUnexpectedEOF")
	}
}

func TestResync_DiscardsUpToLimit(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, ResyncLimit+10)
	src := bytes.NewReader(data)
	r := NewReader(src)
	n, err := r.Resync()
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if n != ResyncLimit {
		t.Errorf("discarded %d bytes, want %d", n, ResyncLimit)
	}
	if src.Len() != 10 {
		t.Errorf("%d bytes left, want 10", src.Len())
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestWriteEvents_ShortWrite(t *testing.T) {
	err := NewWriter(shortWriter{}).WriteEvents(New(time.Unix(0, 0), evdev.EV_SYN, evdev.SYN_REPORT, 0))
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
}

func TestBufferedWriterFlushesEachCall(t *testing.T) {
	var buf bytes.Buffer
	w := NewBufferedWriter(&buf)
	if err := w.WriteEvents(New(time.Unix(5, 0), evdev.EV_SYN, evdev.SYN_REPORT, 0)); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if buf.Len() != Size {
		t.Errorf("destination holds %d bytes after write, want %d", buf.Len(), Size)
	}
}

func TestTimeConversion(t *testing.T) {
	ts := time.Unix(1750719826, 467123000)
	ev := New(ts, evdev.EV_SYN, evdev.SYN_REPORT, 0)
	if got := Time(ev); !got.Equal(ts) {
		t.Errorf("Time() = %v, want %v", got, ts)
	}
}

func TestPredicates(t *testing.T) {
	now := time.Unix(0, 0)
	tests := []struct {
		name   string
		ev     evdev.InputEvent
		report bool
		absX   bool
	}{
		{"report", New(now, evdev.EV_SYN, evdev.SYN_REPORT, 0), true, false},
		{"dropped", New(now, evdev.EV_SYN, evdev.SYN_DROPPED, 0), false, false},
		{"abs x", New(now, evdev.EV_ABS, evdev.ABS_X, 10), false, true},
		{"abs rx", New(now, evdev.EV_ABS, evdev.ABS_RX, 10), false, false},
		{"key", New(now, evdev.EV_KEY, evdev.KEY_A, 1), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReport(tt.ev); got != tt.report {
				t.Errorf("IsReport = %v, want %v", got, tt.report)
			}
			if got := IsAbs(tt.ev, evdev.ABS_X); got != tt.absX {
				t.Errorf("IsAbs(ABS_X) = %v, want %v", got, tt.absX)
			}
		})
	}
}

func TestEndOfStream(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{io.ErrClosedPipe, true},
		{os.ErrClosed, true},
		{fmt.Errorf("read fifo: %w", os.ErrClosed), true},
		{ErrShortRead, false},
		{errors.New("device unplugged"), false},
	}
	for _, tt := range tests {
		if got := EndOfStream(tt.err); got != tt.want {
			t.Errorf("EndOfStream(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestEncodeNativeOrder(t *testing.T) {
	b := Encode(New(time.Unix(0, 0), evdev.EV_ABS, evdev.ABS_RX, 0x01020304))
	if len(b) != Size {
		t.Fatalf("encoded %d bytes, want %d", len(b), Size)
	}
	tail := b[Size-8:]
	if got := binary.NativeEndian.Uint16(tail[0:2]); got != evdev.EV_ABS {
		t.Errorf("type = %d, want %d", got, evdev.EV_ABS)
	}
	if got := binary.NativeEndian.Uint16(tail[2:4]); got != evdev.ABS_RX {
		t.Errorf("code = %d, want %d", got, evdev.ABS_RX)
	}
	if got := int32(binary.NativeEndian.Uint32(tail[4:8])); got != 0x01020304 {
		t.Errorf("value = %#x, want 0x01020304", got)
	}
}
