// Command uinput creates a virtual input device from a YAML descriptor and
// feeds it the raw events read on stdin. With -p it prints the descriptor of
// an existing device instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/stick2wheel/internal/config"
	"github.com/banshee-data/stick2wheel/internal/fsutil"
	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/uinput"
	"github.com/banshee-data/stick2wheel/internal/version"
)

var (
	create      = flag.String("c", "", "Create a device from this YAML descriptor and feed it from stdin")
	printDesc   = flag.Bool("p", false, "Print the YAML descriptor of the device given with -d")
	device      = flag.String("d", "", "Device to describe with -p")
	wheelAxes   = flag.Bool("wheel", false, "Rewrite the descriptor's axes for the wheel output")
	tuning      = flag.String("tuning", "", "Tuning file used with -wheel")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	log.SetOutput(os.Stderr)
	flag.Parse()

	switch {
	case *showVersion:
		fmt.Fprintln(os.Stderr, version.String("uinput"))
	case *printDesc:
		if *device == "" {
			log.Fatal("-p needs a device (-d)")
		}
		if err := describe(*device); err != nil {
			log.Fatal(err)
		}
	case *create != "":
		if err := run(*create); err != nil {
			log.Fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func describe(path string) error {
	desc, err := uinput.Describe(path)
	if err != nil {
		return err
	}
	if *wheelAxes {
		if desc, err = wheelDescriptor(desc); err != nil {
			return err
		}
	}
	b, err := desc.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

func wheelDescriptor(desc uinput.Descriptor) (uinput.Descriptor, error) {
	params, err := config.LoadParams(*tuning)
	if err != nil {
		return desc, fmt.Errorf("failed to load tuning: %w", err)
	}
	return uinput.WheelDescriptor(desc, params), nil
}

func run(path string) error {
	desc, err := uinput.LoadDescriptor(fsutil.OSFileSystem{}, path)
	if err != nil {
		return err
	}
	if *wheelAxes {
		if desc, err = wheelDescriptor(desc); err != nil {
			return err
		}
	}
	dev, err := uinput.Create(desc)
	if err != nil {
		return fmt.Errorf("create %q: %w", desc.Name, err)
	}
	defer dev.Close()
	log.Printf("created virtual device %q", dev.Name())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := uinput.Sink(ctx, inputevent.NewReader(os.Stdin), dev); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
