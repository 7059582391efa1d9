package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/banshee-data/vessel.report/internal/ais/replay"
	"github.com/banshee-data/vessel.report/internal/httputil"
)

// MaxReplayBatchSize caps the per-batch broadcast size a start request may ask
// for.
const MaxReplayBatchSize = 10000

type replayStartRequest struct {
	Path         string  `json:"path"`
	Speedup      float64 `json:"speedup"`
	UseStreaming *bool   `json:"use_streaming"`
	BatchSize    int     `json:"batch_size"`
}

func (s *Server) startReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body replayStartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if body.Path == "" {
		httputil.BadRequest(w, "missing 'path'")
		return
	}
	if body.Speedup != 0 && body.Speedup < replay.MinSpeedup {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'speedup' (want >= %v)", replay.MinSpeedup))
		return
	}
	if body.BatchSize < 0 || body.BatchSize > MaxReplayBatchSize {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'batch_size' (want 1-%d)", MaxReplayBatchSize))
		return
	}

	useStreaming := true
	if body.UseStreaming != nil {
		useStreaming = *body.UseStreaming
	}

	st, err := s.replay.Start(replay.StartRequest{
		Path:         body.Path,
		Speedup:      body.Speedup,
		UseStreaming: useStreaming,
		BatchSize:    body.BatchSize,
	})
	if errors.Is(err, replay.ErrAlreadyRunning) {
		httputil.Conflict(w, "replay already running")
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		httputil.NotFound(w, fmt.Sprintf("file not found: %s", body.Path))
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"status":     "started",
		"run_id":     st.RunID,
		"path":       st.Path,
		"speedup":    st.Speedup,
		"streaming":  st.Streaming,
		"batch_size": st.BatchSize,
	})
}

func (s *Server) stopReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.replay.Stop()
	httputil.WriteJSONOK(w, map[string]string{"status": "stopping"})
}

func (s *Server) showReplayStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.replay.Status())
}
