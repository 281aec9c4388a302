// Package api serves the tracker's HTTP interface: the latest position,
// stored samples and accuracy statistics, and tracker control.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/httputil"
	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/units"
	"github.com/banshee-data/position.report/internal/version"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Tracker is the subset of *location.Tracker the API drives.
type Tracker interface {
	Start() error
	Stop()
	EnterBackground()
	Configure(location.TrackerConfig) error
	Config() location.TrackerConfig
	LastSample() (location.Sample, bool)
	Status() location.Status
}

type Server struct {
	tracker Tracker
	db      *db.DB
	units   string

	// DevicePath is the receiver's port, flagged in /api/gnss/devices.
	DevicePath string

	// ConfigChanged, when set, is called after a successful PUT of the
	// tracker config so the caller can persist it.
	ConfigChanged func(location.TrackerConfig)

	// MaxSleepInterval, when positive, rejects tracker configs whose sleep
	// interval would outlive the keepalive token.
	MaxSleepInterval time.Duration
}

// NewServer returns a server. store may be nil, in which case the history
// endpoints answer 503.
func NewServer(tracker Tracker, store *db.DB, defaultUnits string) *Server {
	if !units.IsValid(defaultUnits) {
		defaultUnits = units.Meters
	}
	return &Server{tracker: tracker, db: store, units: defaultUnits}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/location", s.showLocation)
	mux.HandleFunc("/api/location/samples", s.listSamples)
	mux.HandleFunc("/api/location/stats", s.showAccuracyStats)
	mux.HandleFunc("/api/tracker", s.showTracker)
	mux.HandleFunc("/api/tracker/start", s.startTracker)
	mux.HandleFunc("/api/tracker/stop", s.stopTracker)
	mux.HandleFunc("/api/tracker/background", s.backgroundTracker)
	mux.HandleFunc("/api/tracker/config", s.handleTrackerConfig)
	mux.HandleFunc("/api/gnss/devices", s.listDevices)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

// SampleAPI is a sample as served, with the accuracy radius in the
// requested units and the timestamp in the requested timezone.
type SampleAPI struct {
	ID                 int64     `json:"id,omitempty"`
	SessionID          string    `json:"session_id,omitempty"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Units              string    `json:"units"`
	Timestamp          time.Time `json:"timestamp"`
}

// displayOptions are the ?units= and ?tz= query parameters.
type displayOptions struct {
	units string
	loc   *time.Location
}

func (s *Server) displayOptions(r *http.Request) (displayOptions, error) {
	opts := displayOptions{units: s.units, loc: time.UTC}
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			return opts, fmt.Errorf("invalid 'units' parameter, must be one of: %s", units.GetValidUnitsString())
		}
		opts.units = u
	}
	if tz := r.URL.Query().Get("tz"); tz != "" {
		loc, err := units.LoadTimezone(tz)
		if err != nil {
			return opts, fmt.Errorf("invalid 'tz' parameter: %s", tz)
		}
		opts.loc = loc
	}
	return opts, nil
}

func (o displayOptions) sample(id int64, session string, smp location.Sample) SampleAPI {
	return SampleAPI{
		ID:                 id,
		SessionID:          session,
		Latitude:           smp.Latitude,
		Longitude:          smp.Longitude,
		HorizontalAccuracy: units.ConvertDistance(smp.HorizontalAccuracy, o.units),
		Units:              o.units,
		Timestamp:          smp.Timestamp.In(o.loc),
	}
}

func (s *Server) showLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	opts, err := s.displayOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	smp, ok := s.tracker.LastSample()
	if !ok {
		httputil.NotFound(w, "no location yet")
		return
	}
	httputil.WriteJSONOK(w, opts.sample(0, "", smp))
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "sample storage disabled")
		return
	}
	opts, err := s.displayOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	q := db.SampleQuery{SessionID: r.URL.Query().Get("session")}
	if v := r.URL.Query().Get("since"); v != "" {
		if q.Since, err = time.Parse(time.RFC3339, v); err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter, want RFC 3339")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
	}

	rows, err := s.db.RecentSamples(r.Context(), q)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve samples: %v", err))
		return
	}
	out := make([]SampleAPI, len(rows))
	for i, row := range rows {
		out[i] = opts.sample(row.ID, row.SessionID, row.Sample)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showAccuracyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "sample storage disabled")
		return
	}
	opts, err := s.displayOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'hours' parameter")
			return
		}
		hours = parsed
	}

	st, err := s.db.AccuracyStats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute stats: %v", err))
		return
	}
	for _, v := range []*float64{&st.Mean, &st.StdDev, &st.Min, &st.P50, &st.P95, &st.Max} {
		*v = units.ConvertDistance(*v, opts.units)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"hours": hours,
		"units": opts.units,
		"stats": st,
	})
}

func (s *Server) showTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.tracker.Status())
}

func (s *Server) startTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	err := s.tracker.Start()
	switch {
	case errors.Is(err, location.ErrServicesDisabled):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, location.ErrPermissionDenied), errors.Is(err, location.ErrPermissionRestricted):
		httputil.WriteJSONError(w, http.StatusForbidden, err.Error())
	case err != nil:
		httputil.InternalServerError(w, err.Error())
	default:
		httputil.WriteJSONOK(w, s.tracker.Status())
	}
}

func (s *Server) stopTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.tracker.Stop()
	httputil.WriteJSONOK(w, s.tracker.Status())
}

func (s *Server) backgroundTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.tracker.EnterBackground()
	httputil.WriteJSONOK(w, s.tracker.Status())
}

func (s *Server) handleTrackerConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.tracker.Config())

	case http.MethodPut:
		var cfg location.TrackerConfig
		if err := httputil.DecodeJSON(w, r, &cfg); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if s.MaxSleepInterval > 0 && cfg.SleepInterval() > s.MaxSleepInterval {
			httputil.BadRequest(w, fmt.Sprintf("sleep_interval_seconds must not exceed the keepalive token lifetime of %v", s.MaxSleepInterval))
			return
		}
		if err := s.tracker.Configure(cfg); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if s.ConfigChanged != nil {
			s.ConfigChanged(cfg)
		}
		httputil.WriteJSONOK(w, s.tracker.Config())

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":      s.units,
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"storage":    s.db != nil,
	})
}
