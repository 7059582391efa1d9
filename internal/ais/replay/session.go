package replay

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/ais/loader"
	"github.com/banshee-data/vessel.report/internal/ais/pipeline"
	"github.com/banshee-data/vessel.report/internal/broadcast"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// Session is one replay run. The run goroutine is the sole writer to its
// track windows and pending alert buffer; the counters behind mu are shared
// with status readers.
type Session struct {
	id        string
	path      string
	speedup   float64
	pace      float64 // speedup clamped to MinSpeedup
	batchSize int
	chunkSize int
	streaming bool
	sizeMB    float64

	store Store
	hub   *broadcast.Hub
	clock timeutil.Clock
	pipe  *pipeline.Pipeline

	// Run-goroutine private state.
	prevTS  time.Time
	pending []ais.Alert
	seen    int

	mu            sync.Mutex
	running       bool
	stopRequested bool
	processed     int
	errCount      int
	skipped       int
	lastTS        time.Time

	done chan struct{}
}

func newSession(opts Options, req StartRequest, path string, size int64) *Session {
	speedup := req.Speedup
	if speedup <= 0 {
		speedup = DefaultSpeedup
	}
	batch := req.BatchSize
	if batch <= 0 {
		batch = opts.Detection.GetDefaultBatchSize()
	}
	sizeMB := float64(size) / (1 << 20)

	return &Session{
		id:        "run-" + uuid.NewString()[:8],
		path:      path,
		speedup:   speedup,
		pace:      math.Max(speedup, MinSpeedup),
		batchSize: batch,
		chunkSize: opts.Detection.GetChunkSize(),
		streaming: req.UseStreaming && sizeMB > opts.Detection.GetStreamingThresholdMB(),
		sizeMB:    sizeMB,
		store:     opts.Store,
		hub:       opts.Hub,
		clock:     opts.Clock,
		pipe: pipeline.New(pipeline.Config{
			Detection:       opts.Detection,
			RecordPositions: opts.RecordPositions,
		}),
		running: true,
		done:    make(chan struct{}),
	}
}

func (s *Session) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.stopRequested = false
		s.mu.Unlock()
		close(s.done)
	}()

	start := s.clock.Now()
	mode := "materialized"
	if s.streaming {
		mode = "streaming"
	}
	opsf("session %s: replaying %s (%.1f MB, %s, speedup=%.1fx, batch_size=%d)",
		s.id, s.path, s.sizeMB, mode, s.speedup, s.batchSize)

	var err error
	if s.streaming {
		err = s.runStreaming()
	} else {
		err = s.runMaterialized()
	}
	if err != nil {
		opsf("session %s: failed: %v", s.id, err)
		s.hub.PublishError(fmt.Sprintf("replay failed: %v", err))
		return
	}

	st := s.snapshot()
	opsf("session %s: finished in %s: %d processed, %d failed, %d rows skipped",
		s.id, s.clock.Since(start).Round(time.Millisecond), st.Processed, st.Errors, st.Skipped)
}

func (s *Session) runMaterialized() error {
	pts, skipped, err := loader.Load(s.path)
	if err != nil {
		return err
	}
	s.setSkipped(skipped)
	if len(pts) == 0 {
		opsf("session %s: no points to replay", s.id)
		return nil
	}
	if err := s.processPoints(pts); err != nil && !errors.Is(err, errStopped) {
		return err
	}
	s.finish()
	return nil
}

func (s *Session) runStreaming() error {
	_, skipped, err := loader.Stream(s.path, s.chunkSize, s.processPoints)
	s.setSkipped(skipped)
	if err != nil && !errors.Is(err, errStopped) {
		return err
	}
	s.finish()
	return nil
}

// processPoints is the replay loop body; in streaming mode it runs once per
// chunk. The stop flag is polled before each point, ahead of the pacing
// sleep. It returns errStopped on a requested stop and a fatal error when
// the store goes away; per-point failures are counted and skipped.
func (s *Session) processPoints(pts []ais.Point) error {
	for i := range pts {
		if s.stopRequestedNow() {
			opsf("session %s: stopped by request after %d points", s.id, s.processedNow())
			return errStopped
		}
		s.paceTo(pts[i].Timestamp)
		if err := s.processOne(pts[i]); err != nil {
			return err
		}
	}
	return nil
}

// paceTo sleeps the event-time gap to ts scaled down by the speedup. The gap
// spans chunk boundaries the same as points within one chunk.
func (s *Session) paceTo(ts time.Time) {
	if !s.prevTS.IsZero() {
		if delta := ts.Sub(s.prevTS); delta > 0 {
			s.clock.Sleep(time.Duration(float64(delta) / s.pace))
		}
	}
	s.prevTS = ts
}

func (s *Session) processOne(p ais.Point) error {
	s.seen++
	tx, err := s.store.BeginPointTx()
	if err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	alerts, err := s.pipe.ProcessPoint(tx, p)
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		tx.Rollback()
		s.countFailure()
		opsf("session %s: point %d (MMSI %s): %v", s.id, s.seen, p.MMSI, err)
		return nil
	}
	s.recordProcessed(p, alerts)
	return nil
}

func (s *Session) recordProcessed(p ais.Point, alerts []ais.Alert) {
	s.pending = append(s.pending, alerts...)

	s.mu.Lock()
	s.processed++
	s.lastTS = p.Timestamp
	n := s.processed
	s.mu.Unlock()

	if n%s.batchSize == 0 {
		s.flush(n)
		diagf("session %s: processed %d points", s.id, n)
	}
}

// flush publishes pending alerts in point order, then the progress tick.
func (s *Session) flush(processed int) {
	for i := range s.pending {
		s.hub.PublishAlert(&s.pending[i])
	}
	s.pending = s.pending[:0]
	s.hub.PublishTick(processed)
}

// finish flushes whatever a stop or end-of-stream left unpublished. Fatal
// errors skip it: pending alerts are discarded after the error broadcast.
func (s *Session) finish() {
	s.flush(s.processedNow())
}

func (s *Session) countFailure() {
	s.mu.Lock()
	s.errCount++
	s.mu.Unlock()
}

func (s *Session) setSkipped(n int) {
	s.mu.Lock()
	s.skipped = n
	s.mu.Unlock()
}

func (s *Session) processedNow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

func (s *Session) stopRequestedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

func (s *Session) requestStop() {
	s.mu.Lock()
	if s.running {
		s.stopRequested = true
	}
	s.mu.Unlock()
}

// Running reports whether the run goroutine is still active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:       s.running,
		Processed:     s.processed,
		Errors:        s.errCount,
		Skipped:       s.skipped,
		StopRequested: s.stopRequested,
		RunID:         s.id,
		Path:          s.path,
		Speedup:       s.speedup,
		Streaming:     s.streaming,
		BatchSize:     s.batchSize,
	}
	if !s.lastTS.IsZero() {
		ts := s.lastTS.UTC().Format(time.RFC3339Nano)
		st.LastTimestamp = &ts
	}
	return st
}
