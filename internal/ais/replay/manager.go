// Package replay drives recorded AIS position files through the detection
// pipeline at a configurable multiple of event time.
//
// A Manager runs at most one Session at a time. Each session owns its own
// track windows; alert cooldown state lives in the store, so it is shared
// with everything else writing through that store. Points are processed in
// their own transactions so a bad point rolls back alone, and alerts plus
// progress ticks fan out through the broadcast hub in batches.
package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/vessel.report/internal/ais/pipeline"
	"github.com/banshee-data/vessel.report/internal/broadcast"
	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/security"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// ErrAlreadyRunning is returned by Start while a session is active.
var ErrAlreadyRunning = errors.New("replay already running")

// errStopped aborts the replay loop when the operator requests a stop.
var errStopped = errors.New("replay stop requested")

// DefaultSpeedup is used when a start request leaves the speedup unset.
const DefaultSpeedup = 100.0

// MinSpeedup is the pacing floor; slower requests are clamped up to it.
const MinSpeedup = 0.1

// PointTx is the store scope of one processed point. Pipeline writes for the
// point go through it and become durable on Commit.
type PointTx interface {
	pipeline.Store
	Commit() error
	Rollback() error
}

// Store hands out one transaction per processed point.
type Store interface {
	BeginPointTx() (PointTx, error)
}

// DBStore adapts *db.DB to Store.
type DBStore struct {
	DB *db.DB
}

func (s DBStore) BeginPointTx() (PointTx, error) {
	return s.DB.BeginPointTx()
}

// MemoryStore adapts pipeline.MemoryStore to Store for db-less runs. Its
// transactions are no-ops; writes land immediately.
type MemoryStore struct {
	Mem *pipeline.MemoryStore
}

func (s MemoryStore) BeginPointTx() (PointTx, error) {
	return memTx{s.Mem}, nil
}

type memTx struct {
	*pipeline.MemoryStore
}

func (memTx) Commit() error   { return nil }
func (memTx) Rollback() error { return nil }

// Status is a point-in-time snapshot of the replay state. After a session
// ends it keeps reporting that session's final counters.
type Status struct {
	Running       bool    `json:"running"`
	Processed     int     `json:"processed"`
	Errors        int     `json:"errors"`
	Skipped       int     `json:"skipped"`
	LastTimestamp *string `json:"last_timestamp"`
	StopRequested bool    `json:"stop_requested"`
	RunID         string  `json:"run_id,omitempty"`
	Path          string  `json:"path,omitempty"`
	Speedup       float64 `json:"speedup,omitempty"`
	Streaming     bool    `json:"streaming,omitempty"`
	BatchSize     int     `json:"batch_size,omitempty"`
}

// StartRequest carries the operator's replay parameters. Zero Speedup and
// BatchSize mean the defaults (100x, config batch size).
type StartRequest struct {
	Path         string
	Speedup      float64
	UseStreaming bool
	BatchSize    int
}

// Options configures a Manager.
type Options struct {
	// Store opens the per-point transactions replays write through.
	Store Store

	// Hub receives alert, tick and error events. Nil gets a fresh hub.
	Hub *broadcast.Hub

	// Clock paces the replay. Nil means the real clock.
	Clock timeutil.Clock

	// Detection tunes rule thresholds and the replay batch defaults.
	// Nil means hardcoded defaults.
	Detection *config.DetectionConfig

	// DataDir restricts replay inputs to one directory tree when set.
	// Relative request paths resolve against it.
	DataDir string

	// RecordPositions copies every processed point into position history.
	RecordPositions bool
}

// Manager gates replay sessions behind a single-run flag and keeps the most
// recent session around for status queries.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager. opts.Store must be set.
func NewManager(opts Options) *Manager {
	if opts.Hub == nil {
		opts.Hub = broadcast.NewHub()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Detection == nil {
		opts.Detection = config.EmptyDetectionConfig()
	}
	return &Manager{opts: opts}
}

// Hub returns the event hub sessions publish through.
func (m *Manager) Hub() *broadcast.Hub { return m.opts.Hub }

// Start validates the input file and launches a session goroutine. It
// returns ErrAlreadyRunning while a session is active and an error wrapping
// fs.ErrNotExist when the file is missing.
func (m *Manager) Start(req StartRequest) (Status, error) {
	path, err := m.resolvePath(req.Path)
	if err != nil {
		return Status{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Status{}, fmt.Errorf("replay input %s: %w", req.Path, err)
	}
	if info.IsDir() {
		return Status{}, fmt.Errorf("replay input %s: is a directory", req.Path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Running() {
		return Status{}, ErrAlreadyRunning
	}
	s := newSession(m.opts, req, path, info.Size())
	m.current = s
	st := s.snapshot()
	go s.run()
	return st, nil
}

// resolvePath applies the DataDir restriction: relative paths resolve
// against it, and nothing may escape it.
func (m *Manager) resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("replay input path is empty")
	}
	if m.opts.DataDir == "" {
		return path, nil
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.opts.DataDir, resolved)
	}
	if err := security.ValidatePathWithinDirectory(resolved, m.opts.DataDir); err != nil {
		return "", fmt.Errorf("replay input %s: %w", path, err)
	}
	return resolved, nil
}

// Stop requests a cooperative stop of the running session, if any, and
// returns the resulting status. The in-flight point finishes; pending alerts
// and a final tick are still flushed.
func (m *Manager) Stop() Status {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return Status{}
	}
	cur.requestStop()
	return cur.snapshot()
}

// Status reports the current session's state, or the final state of the last
// one. The zero Status means no replay has been started.
func (m *Manager) Status() Status {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return Status{}
	}
	return cur.snapshot()
}

// Wait blocks until the current session finishes or ctx expires. It returns
// immediately when nothing was ever started.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return nil
	}
	select {
	case <-cur.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops any running session and waits for it to wind down.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Stop()
	return m.Wait(ctx)
}
