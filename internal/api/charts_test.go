package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
)

func TestShowAlertsChart(t *testing.T) {
	s, database := setupTestServer(t)

	seedAlert(t, database, "367000111", ais.RuleTeleport, 100, apiT0)
	seedAlert(t, database, "367000222", ais.RuleTurnRate, 50, apiT0.Add(30*time.Minute))

	start := apiT0.Format(time.RFC3339)
	end := apiT0.Add(2 * time.Hour).Format(time.RFC3339)
	w := doRequest(t, s, http.MethodGet, "/api/charts/alerts?start_time="+start+"&end_time="+end+"&interval=1h", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", got)
	}
	body := w.Body.String()
	for _, want := range []string{"Alerts Over Time", "Alert Severity"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestShowAlertsChartDefaultsEmpty(t *testing.T) {
	s, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/charts/alerts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestShowAlertsChartBadParams(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, target := range []string{
		"/api/charts/alerts?start_time=yesterday",
		"/api/charts/alerts?end_time=lastweek",
		"/api/charts/alerts?interval=bogus",
		"/api/charts/alerts?interval=-1h",
		"/api/charts/alerts?start_time=2024-03-02T00:00:00Z&end_time=2024-03-01T00:00:00Z",
		"/api/charts/alerts?start_time=2020-01-01T00:00:00Z&end_time=2024-01-01T00:00:00Z&interval=1m",
	} {
		if w := doRequest(t, s, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, w.Code)
		}
	}
}
