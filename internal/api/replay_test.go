package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais/replay"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/units"
)

func writeReplayCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.csv")
	content := "mmsi,timestamp,lat,lon,sog,cog,heading\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}
	return path
}

// gatedStore blocks every point transaction on release so tests can hold a
// session mid-run.
type gatedStore struct {
	inner   replay.Store
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(inner replay.Store) *gatedStore {
	return &gatedStore{
		inner:   inner,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) BeginPointTx() (replay.PointTx, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.inner.BeginPointTx()
}

func waitEntered(t *testing.T, g *gatedStore) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the session to reach the store")
	}
}

func waitReplayDone(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.replay.Wait(ctx); err != nil {
		t.Fatalf("replay did not finish: %v", err)
	}
}

func TestStartReplayValidation(t *testing.T) {
	s, _ := setupTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad JSON", `{`, http.StatusBadRequest},
		{"missing path", `{"path":""}`, http.StatusBadRequest},
		{"speedup too slow", `{"path":"x.csv","speedup":0.01}`, http.StatusBadRequest},
		{"batch size too large", `{"path":"x.csv","batch_size":20000}`, http.StatusBadRequest},
		{"negative batch size", `{"path":"x.csv","batch_size":-1}`, http.StatusBadRequest},
		{"missing file", `{"path":"/no/such/replay.csv"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		w := doRequest(t, s, http.MethodPost, "/api/replay/start", strings.NewReader(c.body))
		if w.Code != c.code {
			t.Errorf("%s: expected status %d, got %d: %s", c.name, c.code, w.Code, w.Body.String())
		}
	}

	w := doRequest(t, s, http.MethodPost, "/api/replay/start", strings.NewReader(`{"path":"/no/such/replay.csv"}`))
	if !strings.Contains(w.Body.String(), "file not found") {
		t.Errorf("404 body = %s", w.Body.String())
	}

	dir := t.TempDir()
	w = doRequest(t, s, http.MethodPost, "/api/replay/start", strings.NewReader(fmt.Sprintf(`{"path":%q}`, dir)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("directory path: expected status 400, got %d", w.Code)
	}
}

func TestStartReplayRunsFile(t *testing.T) {
	s, _ := setupTestServer(t)

	path := writeReplayCSV(t,
		"367000111,2024-03-01T12:00:00Z,48.5000,-123.2000,10.0,45.0,44.0",
		"367000111,2024-03-01T12:00:10Z,48.5005,-123.2000,10.0,45.0,44.0",
		"367000111,2024-03-01T12:00:20Z,48.5010,-123.2000,10.0,45.0,44.0",
	)

	w := doRequest(t, s, http.MethodPost, "/api/replay/start",
		strings.NewReader(fmt.Sprintf(`{"path":%q,"speedup":600}`, path)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Status    string  `json:"status"`
		RunID     string  `json:"run_id"`
		Path      string  `json:"path"`
		Speedup   float64 `json:"speedup"`
		Streaming bool    `json:"streaming"`
		BatchSize int     `json:"batch_size"`
	}
	decodeJSON(t, w, &resp)
	if resp.Status != "started" {
		t.Errorf("status = %q, want started", resp.Status)
	}
	if !strings.HasPrefix(resp.RunID, "run-") {
		t.Errorf("run_id = %q", resp.RunID)
	}
	if resp.Path != path {
		t.Errorf("path = %q, want %q", resp.Path, path)
	}
	if resp.Speedup != 600 {
		t.Errorf("speedup = %v, want 600", resp.Speedup)
	}
	if resp.Streaming {
		t.Error("streaming = true for a tiny file")
	}
	if resp.BatchSize != 100 {
		t.Errorf("batch_size = %d, want default 100", resp.BatchSize)
	}

	waitReplayDone(t, s)

	var st replay.Status
	w = doRequest(t, s, http.MethodGet, "/api/replay/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	decodeJSON(t, w, &st)
	if st.Running {
		t.Error("running = true after completion")
	}
	if st.Processed != 3 || st.Errors != 0 || st.Skipped != 0 {
		t.Errorf("counters = %d/%d/%d, want 3/0/0", st.Processed, st.Errors, st.Skipped)
	}
	if st.LastTimestamp == nil || *st.LastTimestamp != "2024-03-01T12:00:20Z" {
		t.Errorf("last_timestamp = %v", st.LastTimestamp)
	}
}

func TestReplayConflictAndStop(t *testing.T) {
	database := openTestDB(t)
	gs := newGatedStore(replay.DBStore{DB: database})
	mgr := replay.NewManager(replay.Options{
		Store: gs,
		Clock: timeutil.NewMockClock(apiT0),
	})
	s := NewServer(database, mgr, units.KN)

	path := writeReplayCSV(t,
		"367000111,2024-03-01T12:00:00Z,48.5000,-123.2000,10.0,45.0,44.0",
		"367000111,2024-03-01T12:00:10Z,48.5005,-123.2000,10.0,45.0,44.0",
	)
	body := fmt.Sprintf(`{"path":%q}`, path)

	w := doRequest(t, s, http.MethodPost, "/api/replay/start", strings.NewReader(body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	waitEntered(t, gs)

	w = doRequest(t, s, http.MethodPost, "/api/replay/start", strings.NewReader(body))
	if w.Code != http.StatusConflict {
		t.Errorf("second start: expected status 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "replay already running") {
		t.Errorf("409 body = %s", w.Body.String())
	}

	w = doRequest(t, s, http.MethodPost, "/api/replay/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stopping") {
		t.Errorf("stop body = %s", w.Body.String())
	}

	var st replay.Status
	w = doRequest(t, s, http.MethodGet, "/api/replay/status", nil)
	decodeJSON(t, w, &st)
	if !st.Running || !st.StopRequested {
		t.Errorf("mid-stop status = %+v", st)
	}

	close(gs.release)
	waitReplayDone(t, s)

	w = doRequest(t, s, http.MethodGet, "/api/replay/status", nil)
	decodeJSON(t, w, &st)
	if st.Running || st.StopRequested {
		t.Errorf("final status flags = %+v", st)
	}
	if st.Processed != 1 {
		t.Errorf("processed = %d, want 1 (stop lands before the second point)", st.Processed)
	}
}
