package gnss

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/position.report/internal/httputil"
	"github.com/banshee-data/position.report/internal/serialmux"
)

var errNotStreaming = errors.New("gnss receiver is not streaming")

//go:embed templates/*
var consoleFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(consoleFS, "templates/console.html.tmpl"))

func (r *Receiver) currentMux() serialmux.SerialMuxInterface {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil
	}
	return r.stream.mux
}

// SendCommand frames command and writes it to the receiver. It fails while
// the port is closed between duty cycles.
func (r *Receiver) SendCommand(command string) (string, error) {
	mux := r.currentMux()
	if mux == nil {
		return "", errNotStreaming
	}
	sentence := serialmux.FrameSentence(command)
	return sentence, mux.SendCommand(sentence)
}

// AttachAdminRoutes registers receiver diagnostics under /debug/.
func (r *Receiver) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("gnss", "GNSS receiver status", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSONOK(w, r.Status())
	})

	debug.HandleFunc("gnss-console", "Send sentences to the receiver and tail its output", func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		if err := consoleTemplate.Execute(&buf, r.Status()); err != nil {
			httputil.InternalServerError(w, "failed to render console")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	})

	debug.HandleSilentFunc("gnss-console.js", func(w http.ResponseWriter, req *http.Request) {
		js, err := consoleFS.ReadFile("templates/console.js")
		if err != nil {
			httputil.InternalServerError(w, "failed to open console.js")
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(js)
	})

	debug.HandleSilentFunc("gnss-send", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := strings.TrimSpace(req.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		sentence, err := r.SendCommand(command)
		if errors.Is(err, errNotStreaming) {
			httputil.Conflict(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": sentence})
	})

	// Server-Sent Events stream of raw sentences. It ends when the port
	// closes at the end of the active window.
	debug.HandleSilentFunc("gnss-tail", func(w http.ResponseWriter, req *http.Request) {
		sm := r.currentMux()
		if sm == nil {
			httputil.Conflict(w, errNotStreaming.Error())
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")

		id, lines := sm.Subscribe()
		defer sm.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					fmt.Fprint(w, "event: closed\ndata: port closed\n\n")
					flusher.Flush()
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-req.Context().Done():
				return
			}
		}
	})
}
