// Command intercept copies raw input events from a device to stdout.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/source"
	"github.com/banshee-data/stick2wheel/internal/version"
)

var (
	device      = flag.String("d", "", "Event source: /dev/input/eventN, a file or FIFO, '-' for stdin, or serial:PATH")
	grab        = flag.Bool("g", false, "Grab the device so no other client receives its events")
	list        = flag.Bool("list", false, "List input devices and exit")
	verbose     = flag.Bool("v", false, "Also print decoded events to stderr")
	baud        = flag.Int("baud", source.DefaultBaudRate, "Baud rate for serial sources")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	log.SetOutput(os.Stderr)
	flag.Parse()

	switch {
	case *showVersion:
		fmt.Fprintln(os.Stderr, version.String("intercept"))
		return
	case *list:
		devs, err := source.ListDevices()
		if err != nil {
			log.Fatal(err)
		}
		for _, d := range devs {
			fmt.Println(d)
		}
		return
	case *device == "":
		log.Fatal("a device is required (-d)")
	}

	port, err := source.Open(*device, source.Options{
		Grab:   *grab,
		Serial: source.PortOptions{BaudRate: *baud},
	})
	if err != nil {
		log.Fatalf("failed to open %s: %v", *device, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	defer stop()
	go func() {
		<-ctx.Done()
		// unblocks the pending read and releases a grab
		port.Close()
	}()

	var r io.Reader = port
	if *verbose {
		r = io.TeeReader(port, &eventLogger{})
	}
	// stdout is written per read so downstream stages see events as they happen
	_, err = io.Copy(os.Stdout, r)
	port.Close()
	if err != nil && ctx.Err() == nil && !errors.Is(err, os.ErrClosed) {
		log.Fatalf("intercept: %v", err)
	}
}

// eventLogger decodes whatever passes through it and logs one line per event.
type eventLogger struct {
	pending []byte
}

func (l *eventLogger) Write(b []byte) (int, error) {
	l.pending = append(l.pending, b...)
	for len(l.pending) >= inputevent.Size {
		r := inputevent.NewReader(bytes.NewReader(l.pending[:inputevent.Size]))
		if ev, err := r.ReadEvent(); err == nil {
			log.Print(inputevent.Format(ev))
		}
		l.pending = l.pending[inputevent.Size:]
	}
	return len(b), nil
}
