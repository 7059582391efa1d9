package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/httputil"
)

// alertFilterFromQuery parses the shared alert filter parameters. The list,
// stats, and export handlers all accept the same set.
func alertFilterFromQuery(q url.Values) (db.AlertFilter, error) {
	f := db.AlertFilter{
		MMSI:   q.Get("mmsi"),
		Type:   q.Get("alert_type"),
		Status: q.Get("status"),
	}

	if v := q.Get("min_severity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return f, fmt.Errorf("invalid 'min_severity' parameter (want 0-100)")
		}
		f.MinSeverity = n
	}
	if v := q.Get("max_severity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return f, fmt.Errorf("invalid 'max_severity' parameter (want 0-100)")
		}
		f.MaxSeverity = n
	}
	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid 'start_time' parameter (want RFC 3339)")
		}
		f.Since = t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid 'end_time' parameter (want RFC 3339)")
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid 'limit' parameter")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid 'offset' parameter")
		}
		f.Offset = n
	}
	return f, nil
}

func alertIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid alert id")
	}
	return id, nil
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	f, err := alertFilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	alerts, err := s.db.ListAlerts(f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list alerts: %v", err))
		return
	}
	if alerts == nil {
		alerts = []ais.Alert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

func (s *Server) showAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := alertIDFromPath(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	alert, err := s.db.GetAlert(id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "alert not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alert: %v", err))
		return
	}
	httputil.WriteJSONOK(w, alert)
}

type alertStatusUpdate struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

func (s *Server) updateAlertStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := alertIDFromPath(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var update alertStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}

	// Missing alerts 404 before a bad status 400s.
	if _, err := s.db.GetAlert(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(w, "alert not found")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alert: %v", err))
		return
	}

	if !ais.StatusValid(update.Status) {
		httputil.BadRequest(w, "invalid status; must be one of: new, reviewed, resolved, false_positive")
		return
	}

	if err := s.db.UpdateAlertStatus(id, update.Status, update.Notes); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to update alert: %v", err))
		return
	}

	alert, err := s.db.GetAlert(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alert: %v", err))
		return
	}
	httputil.WriteJSONOK(w, alert)
}

func (s *Server) showAlertStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	f, err := alertFilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	severities, err := s.db.AlertSeverities(f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alert severities: %v", err))
		return
	}
	byType, err := s.db.AlertCountsByType(f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count alerts by type: %v", err))
		return
	}

	average := 0.0
	if len(severities) > 0 {
		average = math.Round(stat.Mean(severities, nil)*100) / 100
	}

	var high, medium, low int
	for _, sev := range severities {
		switch {
		case sev >= 70:
			high++
		case sev >= 30:
			medium++
		default:
			low++
		}
	}

	httputil.WriteJSONOK(w, map[string]any{
		"total":            len(severities),
		"by_type":          byType,
		"average_severity": average,
		"by_severity_range": map[string]int{
			"high":   high,
			"medium": medium,
			"low":    low,
		},
	})
}

func (s *Server) exportAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	f, err := alertFilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	var buf bytes.Buffer
	var contentType, filename string
	switch format {
	case "csv":
		contentType, filename = "text/csv", "alerts_export.csv"
		err = s.db.ExportAlertsCSV(&buf, f)
	case "json":
		contentType, filename = "application/json", "alerts_export.json"
		err = s.db.ExportAlertsJSON(&buf, f)
	default:
		httputil.BadRequest(w, "invalid 'format' parameter (want csv or json)")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to export alerts: %v", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(buf.Bytes())
}
