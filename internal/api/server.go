// Package api exposes the REST surface over the alert store, the vessel
// snapshots, and the replay engine: listing and triaging alerts, exporting
// them, inspecting vessels and their stored tracks, and driving historical
// file replays.
package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais/replay"
	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/httputil"
	"github.com/banshee-data/vessel.report/internal/units"
	"github.com/banshee-data/vessel.report/internal/version"
)

// ANSI tints for the request log; status codes are colored by class so
// failures stand out when scanning a terminal.
const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[1;32m"
	ansiRed    = "\033[1;31m"
)

type Server struct {
	db     *db.DB
	replay *replay.Manager
	units  string
}

// NewServer builds the API over the store and replay manager. displayUnits
// selects the unit SOG values are reported in; empty means knots.
func NewServer(db *db.DB, replay *replay.Manager, displayUnits string) *Server {
	if displayUnits == "" {
		displayUnits = units.KN
	}
	return &Server{
		db:     db,
		replay: replay,
		units:  displayUnits,
	}
}

// convertSOG returns sog in the server's display units. The store keeps
// speeds in knots; nil stays nil.
func (s *Server) convertSOG(sog *float64) *float64 {
	if sog == nil || s.units == units.KN {
		return sog
	}
	converted := units.ConvertSpeed(*sog, s.units)
	return &converted
}

// statusTint picks the color for a status code class; informational codes
// stay uncolored.
func statusTint(code int) string {
	switch {
	case code >= 400:
		return ansiRed
	case code >= 300:
		return ansiYellow
	case code >= 200:
		return ansiGreen
	}
	return ""
}

// statusRecorder remembers the status a handler writes so the request log
// can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush passes through so streaming handlers keep working behind the recorder.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingMiddleware emits one line per request: tinted status, method,
// request URI, and elapsed milliseconds.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("[%s%d%s] %s %s%s%s %.1fms",
			statusTint(rec.status), rec.status, ansiReset,
			r.Method, ansiCyan, r.RequestURI, ansiReset,
			float64(time.Since(start).Microseconds())/1e3)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/alerts/stats", s.showAlertStats)
	mux.HandleFunc("/api/alerts/export", s.exportAlerts)
	mux.HandleFunc("/api/alerts/{id}", s.showAlert)
	mux.HandleFunc("/api/alerts/{id}/status", s.updateAlertStatus)
	mux.HandleFunc("/api/vessels", s.listVessels)
	mux.HandleFunc("/api/vessels/{mmsi}", s.showVessel)
	mux.HandleFunc("/api/vessels/{mmsi}/track", s.showVesselTrack)
	mux.HandleFunc("/api/replay/start", s.startReplay)
	mux.HandleFunc("/api/replay/stop", s.stopReplay)
	mux.HandleFunc("/api/replay/status", s.showReplayStatus)
	mux.HandleFunc("/api/charts/alerts", s.showAlertsChart)
	mux.HandleFunc("/api/metrics", s.showMetrics)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// showConfig reports the display settings applied to API responses.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]any{
		"units": s.units,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	dbErr := s.db.Ping()
	database := map[string]any{"connected": dbErr == nil}
	if dbErr != nil {
		database["error"] = dbErr.Error()
	}

	status := "ok"
	if dbErr != nil {
		status = "degraded"
	}

	rs := s.replay.Status()
	httputil.WriteJSONOK(w, map[string]any{
		"status":   status,
		"database": database,
		"replay": map[string]any{
			"running":   rs.Running,
			"processed": rs.Processed,
		},
	})
}

func (s *Server) showMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	vessels, err := s.db.VesselCount()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count vessels: %v", err))
		return
	}
	alerts, err := s.db.CountAlerts(db.AlertFilter{})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count alerts: %v", err))
		return
	}
	byStatus, err := s.db.AlertCountsByStatus(db.AlertFilter{})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count alerts by status: %v", err))
		return
	}
	positions, err := s.db.PositionCount()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count positions: %v", err))
		return
	}
	cooldowns, err := s.db.CooldownCount()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count cooldowns: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"vessels":   map[string]any{"total": vessels},
		"alerts":    map[string]any{"total": alerts, "by_status": byStatus},
		"positions": map[string]any{"total": positions},
		"cooldowns": map[string]any{"total": cooldowns},
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
