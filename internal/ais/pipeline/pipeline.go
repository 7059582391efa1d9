// Package pipeline drives AIS position reports through detection: each point
// updates the vessel's track window and latest snapshot, is compared against
// its predecessor by the rule registry, and surviving alerts are deduplicated
// by cooldown, slimmed, and persisted.
//
// One Pipeline belongs to one replay session and assumes a single caller
// goroutine. The Store it writes through may be a transaction, letting the
// caller make each point atomic.
package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/ais/rules"
	"github.com/banshee-data/vessel.report/internal/config"
)

// Store is the persistence surface the pipeline writes through. Both *db.DB
// and *db.Tx satisfy it; MemoryStore provides a database-free variant.
type Store interface {
	UpsertVesselLatest(p ais.Point) error
	InsertPosition(p ais.Point) error
	AllowAlert(mmsi, ruleType string, ts time.Time, cooldown time.Duration) (bool, error)
	InsertAlert(a *ais.Alert) error
	RaiseVesselAlertSeverity(mmsi string, severity int) error
}

// Config holds the construction options for a pipeline.
type Config struct {
	// Detection supplies rule thresholds. Nil falls back to the built-in
	// defaults through the config accessors.
	Detection *config.DetectionConfig

	// WindowSize is the per-vessel track window. Zero means
	// ais.DefaultTrackWindowSize.
	WindowSize int

	// Rules overrides the rule registry. Nil means rules.Registry().
	// The slice order is the evaluation and emission order.
	Rules []rules.Rule

	// RecordPositions enables appending every processed point to the
	// position history table.
	RecordPositions bool
}

// Pipeline is the per-session detection engine.
type Pipeline struct {
	detection       *config.DetectionConfig
	tracks          *ais.TrackStore
	rules           []rules.Rule
	cooldown        time.Duration
	recordPositions bool
}

// New builds a pipeline with its own empty track store.
func New(cfg Config) *Pipeline {
	det := cfg.Detection
	if det == nil {
		det = config.EmptyDetectionConfig()
	}
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = ais.DefaultTrackWindowSize
	}
	ruleSet := cfg.Rules
	if ruleSet == nil {
		ruleSet = rules.Registry()
	}
	return &Pipeline{
		detection:       det,
		tracks:          ais.NewTrackStore(windowSize),
		rules:           ruleSet,
		cooldown:        time.Duration(det.GetAlertCooldownSec()) * time.Second,
		recordPositions: cfg.RecordPositions,
	}
}

// Tracks exposes the session track store for status reporting.
func (pl *Pipeline) Tracks() *ais.TrackStore { return pl.tracks }

// ProcessPoint runs one position report through the pipeline and returns the
// alerts it produced, in rule order. A store error aborts the point; the
// caller is expected to roll back whatever transaction wraps the call, so no
// partial alert list is returned alongside an error.
func (pl *Pipeline) ProcessPoint(store Store, p ais.Point) ([]ais.Alert, error) {
	window, inserted := pl.tracks.Push(p)

	if err := store.UpsertVesselLatest(p); err != nil {
		return nil, fmt.Errorf("failed to upsert vessel %s: %w", p.MMSI, err)
	}
	if pl.recordPositions {
		if err := store.InsertPosition(p); err != nil {
			return nil, fmt.Errorf("failed to record position for %s: %w", p.MMSI, err)
		}
	}

	if !inserted {
		tracef("point for MMSI %s at %s not after track tail, rules skipped", p.MMSI, p.Timestamp.Format(time.RFC3339))
		return nil, nil
	}
	p1, p2, ok := window.Last2()
	if !ok {
		tracef("MMSI %s has %d tracked point(s), rules need two", p.MMSI, len(window.Points))
		return nil, nil
	}

	var alerts []ais.Alert
	for _, rule := range pl.rules {
		alert := evalRule(rule, p1, p2, pl.detection)
		if alert == nil {
			continue
		}

		allowed, err := store.AllowAlert(alert.MMSI, string(alert.Type), alert.Timestamp, pl.cooldown)
		if err != nil {
			return nil, fmt.Errorf("cooldown check for %s/%s failed: %w", alert.MMSI, alert.Type, err)
		}
		if !allowed {
			diagf("alert %s for MMSI %s suppressed by cooldown", alert.Type, alert.MMSI)
			continue
		}

		alert.Evidence = slimEvidence(alert.Evidence, p1, p2)
		if err := store.InsertAlert(alert); err != nil {
			return nil, fmt.Errorf("failed to persist %s alert for %s: %w", alert.Type, alert.MMSI, err)
		}
		if err := store.RaiseVesselAlertSeverity(alert.MMSI, alert.Severity); err != nil {
			return nil, fmt.Errorf("failed to raise severity for %s: %w", alert.MMSI, err)
		}

		opsf("alert %s for MMSI %s (severity %d): %s", alert.Type, alert.MMSI, alert.Severity, alert.Summary)
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

// evalRule contains a rule's evaluation so a panic in one rule cannot take
// down the point or the rules after it.
func evalRule(rule rules.Rule, p1, p2 ais.Point, det *config.DetectionConfig) (alert *ais.Alert) {
	defer func() {
		if r := recover(); r != nil {
			opsf("rule %s panicked for MMSI %s: %v", rule.Type, p2.MMSI, r)
			alert = nil
		}
	}()
	return rule.Eval(p1, p2, det)
}

// evidenceExtras are the rule-specific fields carried through slimming when a
// rule emits them.
var evidenceExtras = []string{"reason", "sog_diff", "implied_speed", "heading_delta", "cog_delta"}

// slimEvidence reduces a rule's evidence to the fixed persisted schema: the
// shared kinematic scalars plus the two driving points' coordinates and
// timestamps. Fields a rule did not produce are stored as nulls so every
// alert's evidence has the same shape.
func slimEvidence(ev map[string]any, p1, p2 ais.Point) map[string]any {
	slim := map[string]any{
		"dt_sec":                ev["dt_sec"],
		"distance_m":            ev["distance_m"],
		"implied_speed_kn":      ev["implied_speed_kn"],
		"turn_rate_deg_per_sec": ev["turn_rate_deg_s"],
		"accel_knots_per_sec":   ev["accel_knots_per_sec"],
		"tier":                  ev["tier"],
		"p1_lat":                p1.Lat,
		"p1_lon":                p1.Lon,
		"p1_timestamp":          p1.Timestamp.Format(time.RFC3339Nano),
		"p2_lat":                p2.Lat,
		"p2_lon":                p2.Lon,
		"p2_timestamp":          p2.Timestamp.Format(time.RFC3339Nano),
		"p2_sog":                optFloat(p2.SOG),
		"p2_cog":                optFloat(p2.COG),
		"p2_heading":            optFloat(p2.Heading),
	}
	for _, key := range evidenceExtras {
		if v, ok := ev[key]; ok {
			slim[key] = v
		}
	}
	return slim
}

func optFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
