// Command session-report summarises a recorded session and renders its
// charts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/stick2wheel/internal/db"
	"github.com/banshee-data/stick2wheel/internal/report"
	"github.com/banshee-data/stick2wheel/internal/security"
)

var (
	dbPath    = flag.String("db-path", "stick2wheel.db", "Path to the SQLite database")
	sessionID = flag.String("session", "", "Session ID (default: most recent)")
	list      = flag.Bool("list", false, "List sessions and exit")
	htmlOut   = flag.String("html", "", "Write an interactive HTML chart to this file")
	pngDir    = flag.String("png-dir", "", "Write a PNG plot into this directory")
	asJSON    = flag.Bool("json", false, "Print the summary as JSON")
)

func main() {
	flag.Parse()

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *list {
		if err := listSessions(database); err != nil {
			log.Fatal(err)
		}
		return
	}

	s, err := pickSession(database, *sessionID)
	if err != nil {
		log.Fatal(err)
	}
	reports, err := database.Reports(s.ID)
	if err != nil {
		log.Fatalf("failed to load reports: %v", err)
	}
	summary := report.Summarize(reports)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Session db.Session     `json:"session"`
			Summary report.Summary `json:"summary"`
		}{s, summary}); err != nil {
			log.Fatal(err)
		}
	} else {
		fmt.Printf("session:       %s\ndevice:        %s\nstarted:       %s\n",
			s.ID, s.Device, s.StartedAt.Local().Format(time.DateTime))
		if err := summary.WriteText(os.Stdout); err != nil {
			log.Fatal(err)
		}
	}

	title := fmt.Sprintf("%s %s", s.Device, s.StartedAt.Local().Format(time.DateTime))
	if *htmlOut != "" {
		if err := security.WithinDir(*htmlOut, "."); err != nil {
			log.Fatalf("refusing to write %s: %v", *htmlOut, err)
		}
		f, err := os.Create(*htmlOut)
		if err != nil {
			log.Fatal(err)
		}
		if err := report.RenderHTML(f, title, reports); err != nil {
			f.Close()
			log.Fatal(err)
		}
		if err := f.Close(); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", *htmlOut)
	}
	if *pngDir != "" {
		path, err := report.RenderPNG(*pngDir, "session-"+s.ID, reports)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
	}
}

func pickSession(database *db.DB, id string) (db.Session, error) {
	if id != "" {
		return database.Session(id)
	}
	sessions, err := database.Sessions()
	if err != nil {
		return db.Session{}, err
	}
	if len(sessions) == 0 {
		return db.Session{}, fmt.Errorf("no sessions recorded in %s", *dbPath)
	}
	return sessions[0], nil
}

func listSessions(database *db.DB) error {
	sessions, err := database.Sessions()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tDEVICE\tSTARTED\tDURATION\tREPORTS")
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Device,
			s.StartedAt.Local().Format(time.DateTime), s.Duration(now).Round(time.Second), s.Reports)
	}
	return tw.Flush()
}
