// Command stick2wheel reads raw input events on stdin, turns the analog stick
// into a steering wheel axis and writes the result to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/stick2wheel/internal/config"
	"github.com/banshee-data/stick2wheel/internal/db"
	"github.com/banshee-data/stick2wheel/internal/filter"
	"github.com/banshee-data/stick2wheel/internal/inputevent"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
	"github.com/banshee-data/stick2wheel/internal/telemetry"
	"github.com/banshee-data/stick2wheel/internal/version"
)

var (
	debug       = flag.Bool("debug", false, "Log every wheel report to stderr")
	tuning      = flag.String("tuning", "", "Path to a JSON tuning file (default: built-in parameters)")
	dbPath      = flag.String("db-path", "", "Record the session into this SQLite database")
	admin       = flag.String("admin", "", "Listen address for the /debug/ admin routes, e.g. localhost:8088")
	deviceLabel = flag.String("device-label", "stdin", "Device name stored with a recorded session")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const defaultDBPath = "stick2wheel.db"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Fprintln(os.Stderr, version.String("stick2wheel"))
		return
	}
	monitoring.SetDebug(*debug)

	params, err := config.LoadParams(*tuning)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}

	hub := telemetry.NewHub()
	f, err := filter.New(params, filter.WithPublisher(hub))
	if err != nil {
		log.Fatalf("failed to create filter: %v", err)
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	filterCtx, filterDone := context.WithCancel(gctx)

	g.Go(func() error {
		defer filterDone()
		// the hub outlives the filter only long enough for subscribers to drain
		defer hub.Close()
		w := inputevent.NewWriter(os.Stdout)
		err := f.Run(gctx, inputevent.NewReader(os.Stdin), w)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if database != nil {
		g.Go(func() error {
			// Record ends once the hub closes its subscription
			return recordSession(context.WithoutCancel(gctx), database, hub, *deviceLabel, params)
		})
	}

	if *admin != "" {
		g.Go(func() error {
			return serveAdmin(filterCtx, *admin, hub, f, database)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("stick2wheel: %v", err)
	}
	st := f.Stats()
	log.Printf("done: %d events in, %d passed through, %d reports (%d synthetic), %d decode errors",
		st.EventsIn, st.PassedThrough, st.Reports, st.Synthetic, st.DecodeErrors)
}

// recordSession logs a failed recording instead of returning it, so a full
// disk never stops the wheel.
func recordSession(ctx context.Context, database *db.DB, src db.Source, device string, params any) error {
	if err := db.Record(ctx, database, src, device, params); err != nil {
		log.Printf("recording stopped: %v", err)
	}
	return nil
}

func serveAdmin(ctx context.Context, addr string, hub *telemetry.Hub, f *filter.Filter, database *db.DB) error {
	mux := http.NewServeMux()
	hub.AttachAdminRoutes(mux, f)
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}
	server := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		log.Printf("admin routes on http://%s/debug/", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("admin server: %w", err)
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("admin server force close error: %v", err)
		}
	}
	return nil
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db-path", defaultDBPath, "Path to the SQLite database")
	fs.Usage = func() { db.PrintMigrateHelp(os.Stderr) }
	fs.Parse(args)

	if err := db.RunMigrateCommand(fs.Args(), *path, os.Stdout); err != nil {
		if errors.Is(err, db.ErrUsage) {
			log.Print(err)
			os.Exit(2)
		}
		log.Fatalf("migrate: %v", err)
	}
}
