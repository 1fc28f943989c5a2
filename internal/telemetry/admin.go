package telemetry

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stick2wheel/internal/filter"
	"github.com/banshee-data/stick2wheel/internal/httputil"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// Controller is the running filter as seen from the admin pages.
type Controller interface {
	Command(name string) error
	Snapshot() filter.Snapshot
}

// AttachAdminRoutes mounts the live tail, the wheel status and the command
// console on the tsweb debug pages at /debug/.
func (h *Hub) AttachAdminRoutes(mux *http.ServeMux, ctl Controller) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a control command to the wheel filter", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, filter.AllowedCommands); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := ctl.Command(command); err != nil {
			if errors.Is(err, filter.ErrUnknownCommand) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to apply command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Applied command %q", command))
	})

	debug.HandleFunc("wheel", "current wheel state and counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, struct {
			filter.Snapshot
			Subscribers int    `json:"subscribers"`
			Dropped     uint64 `json:"dropped"`
		}{ctl.Snapshot(), h.Subscribers(), h.Dropped()})
	})

	// Server-Sent Events, one JSON report per event.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.AllowMethod(w, r, http.MethodGet) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := h.Subscribe()
		defer h.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case report, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(report)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
