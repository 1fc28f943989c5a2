// Command wheelpipe runs the whole chain in one process: it reads the
// controller, turns the stick into a wheel and feeds a virtual device.
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

	"github.com/banshee-data/stick2wheel/internal/config"
	"github.com/banshee-data/stick2wheel/internal/db"
	"github.com/banshee-data/stick2wheel/internal/filter"
	"github.com/banshee-data/stick2wheel/internal/monitoring"
	"github.com/banshee-data/stick2wheel/internal/pipeline"
	"github.com/banshee-data/stick2wheel/internal/telemetry"
	"github.com/banshee-data/stick2wheel/internal/version"
)

var (
	device      = flag.String("device", "", "Controller event node, file, '-' or serial:PATH (required)")
	fifoPath    = flag.String("fifo", "", "Join the reader and the filter through this FIFO, created if absent")
	descriptor  = flag.String("descriptor", "", "YAML descriptor of the virtual device (required)")
	grab        = flag.Bool("grab", true, "Grab the controller so the desktop does not see the raw stick")
	wheelAxes   = flag.Bool("wheel-axes", true, "Give the virtual device the wheel's axis range")
	tuning      = flag.String("tuning", "", "Path to a JSON tuning file")
	dbPath      = flag.String("db-path", "", "Record the session into this SQLite database")
	admin       = flag.String("admin", "", "Listen address for the /debug/ admin routes")
	debug       = flag.Bool("debug", false, "Log every wheel report")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	log.SetOutput(os.Stderr)
	flag.Parse()
	if *showVersion {
		fmt.Fprintln(os.Stderr, version.String("wheelpipe"))
		return
	}
	monitoring.SetDebug(*debug)

	params, err := config.LoadParams(*tuning)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}
	cfg := pipeline.Config{
		Device:     *device,
		FIFO:       *fifoPath,
		Descriptor: *descriptor,
		WheelAxes:  *wheelAxes,
		Grab:       *grab,
		Params:     params,
	}
	if err := cfg.Validate(); err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := telemetry.NewHub()
	var database *db.DB
	recorded := make(chan error, 1)
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		go func() {
			recorded <- db.Record(context.Background(), database, hub, *device, params)
		}()
	} else {
		close(recorded)
	}

	var server *http.Server
	deps := pipeline.Deps{
		FilterOptions: []filter.Option{filter.WithPublisher(hub)},
		OnFilter: func(f *filter.Filter) {
			if *admin == "" {
				return
			}
			mux := http.NewServeMux()
			hub.AttachAdminRoutes(mux, f)
			if database != nil {
				if err := database.AttachAdminRoutes(mux); err != nil {
					log.Printf("database admin routes unavailable: %v", err)
				}
			}
			server = &http.Server{Addr: *admin, Handler: mux}
			go func() {
				log.Printf("admin routes on http://%s/debug/", *admin)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("admin server: %v", err)
				}
			}()
		},
	}

	runErr := pipeline.Run(ctx, cfg, deps)
	hub.Close()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("admin server shutdown error: %v", err)
		}
		cancel()
	}
	if err := <-recorded; err != nil {
		log.Printf("recording failed: %v", err)
	}
	if runErr != nil {
		log.Fatalf("wheelpipe: %v", runErr)
	}
}
