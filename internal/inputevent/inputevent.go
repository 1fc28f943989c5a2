// Package inputevent reads and writes raw Linux input_event records.
//
// The byte layout is the kernel's struct input_event in native byte order: a
// timeval followed by type, code and value. The record size follows the
// platform's syscall.Timeval, 24 bytes on 64-bit Linux and 16 bytes where the
// timeval halves are 32 bits wide.
package inputevent

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
)

// ResyncLimit is the number of bytes discarded by Reader.Resync.
const ResyncLimit = 256

var (
	// ErrShortRead is returned when the stream ends in the middle of a record.
	ErrShortRead = fmt.Errorf("short input_event record: %w", io.ErrUnexpectedEOF)
	// ErrWriteFailed is returned when a destination accepts fewer bytes than
	// were encoded.
	ErrWriteFailed = errors.New("failed to write input events")
)

// Size is the encoded size of one record on this platform.
var Size = binary.Size(evdev.InputEvent{})

// Reader decodes records from a byte stream.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, Size)}
}

// ReadEvent reads exactly one record. A clean end of stream returns io.EOF.
func (r *Reader) ReadEvent() (evdev.InputEvent, error) {
	var ev evdev.InputEvent
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ev, ErrShortRead
		}
		return ev, err
	}
	if err := binary.Read(bytes.NewReader(r.buf), binary.NativeEndian, &ev); err != nil {
		return ev, fmt.Errorf("decode input_event: %w", err)
	}
	return ev, nil
}

// EndOfStream reports whether err from ReadEvent means the stream is over,
// either ended by the writer or closed underneath the reader.
func EndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

// Resync discards up to ResyncLimit pending bytes so a reader that lost
// alignment has a chance of landing on a record boundary again.
func (r *Reader) Resync() (int, error) {
	buf := make([]byte, ResyncLimit)
	return r.r.Read(buf)
}

type flusher interface {
	Flush() error
}

// Writer encodes records onto a byte stream. Each WriteEvents call results in
// a single Write on the destination.
type Writer struct {
	w   io.Writer
	buf bytes.Buffer
}

// NewWriter returns a Writer producing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewBufferedWriter wraps w in a bufio.Writer that is flushed after every
// WriteEvents call, matching the unbuffered behaviour the consumers expect.
func NewBufferedWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 16*Size)}
}

// WriteEvents encodes and writes evs.
func (w *Writer) WriteEvents(evs ...evdev.InputEvent) error {
	if len(evs) == 0 {
		return nil
	}
	w.buf.Reset()
	for i := range evs {
		if err := binary.Write(&w.buf, binary.NativeEndian, &evs[i]); err != nil {
			return fmt.Errorf("encode input_event: %w", err)
		}
	}
	n, err := w.w.Write(w.buf.Bytes())
	if err != nil {
		return err
	}
	if n != w.buf.Len() {
		return ErrWriteFailed
	}
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Encode returns the wire bytes of evs.
func Encode(evs ...evdev.InputEvent) []byte {
	var buf bytes.Buffer
	for i := range evs {
		// writes to a bytes.Buffer of fixed-size values cannot fail
		_ = binary.Write(&buf, binary.NativeEndian, &evs[i])
	}
	return buf.Bytes()
}

// New builds an event stamped with t.
func New(t time.Time, typ, code uint16, value int32) evdev.InputEvent {
	return evdev.InputEvent{Time: Timeval(t), Type: typ, Code: code, Value: value}
}

// Timeval converts t to the kernel's microsecond timeval.
func Timeval(t time.Time) syscall.Timeval {
	return syscall.NsecToTimeval(t.UnixNano())
}

// Time returns the event timestamp.
func Time(ev evdev.InputEvent) time.Time {
	return time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*int64(time.Microsecond))
}

// IsReport reports whether ev is EV_SYN/SYN_REPORT.
func IsReport(ev evdev.InputEvent) bool {
	return ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_REPORT
}

// IsAbs reports whether ev is an absolute axis event for code.
func IsAbs(ev evdev.InputEvent, code uint16) bool {
	return ev.Type == evdev.EV_ABS && ev.Code == code
}
