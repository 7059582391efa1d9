package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/ais/rules"
	"github.com/banshee-data/vessel.report/internal/config"
)

var testT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func point(offsetSec float64, lat, lon float64) ais.Point {
	return ais.Point{
		MMSI:      "367001234",
		Timestamp: testT0.Add(time.Duration(offsetSec * float64(time.Second))),
		Lat:       lat,
		Lon:       lon,
	}
}

func newTestPipeline() *Pipeline {
	return New(Config{Detection: config.EmptyDetectionConfig()})
}

func mustProcess(t *testing.T, pl *Pipeline, store Store, p ais.Point) []ais.Alert {
	t.Helper()
	alerts, err := pl.ProcessPoint(store, p)
	if err != nil {
		t.Fatalf("ProcessPoint failed: %v", err)
	}
	return alerts
}

// TestProcessPointFirstPointNoAlerts verifies a lone point only updates state
func TestProcessPointFirstPointNoAlerts(t *testing.T) {
	pl := newTestPipeline()
	store := NewMemoryStore()

	p := point(0, 40.0, -74.0)
	p.SOG = floatPtr(8.5)
	alerts := mustProcess(t, pl, store, p)
	if len(alerts) != 0 {
		t.Fatalf("Expected no alerts for first point, got %d", len(alerts))
	}

	v, ok := store.VesselLatest("367001234")
	if !ok {
		t.Fatal("Expected vessel snapshot after first point")
	}
	if !v.Timestamp.Equal(p.Timestamp) || v.Lat != 40.0 {
		t.Errorf("Unexpected snapshot: %+v", v)
	}
	if v.LastAlertSeverity != 0 {
		t.Errorf("Expected initial severity 0, got %d", v.LastAlertSeverity)
	}
}

// TestProcessPointTeleportShortGap runs the impossible-jump pair end to end
func TestProcessPointTeleportShortGap(t *testing.T) {
	pl := newTestPipeline()
	store := NewMemoryStore()

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	alerts := mustProcess(t, pl, store, point(60, 41.0, -74.0))

	if len(alerts) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != ais.RuleTeleport || a.Severity != 100 {
		t.Errorf("Expected TELEPORT severity 100, got %s severity %d", a.Type, a.Severity)
	}
	if !a.Timestamp.Equal(testT0.Add(60 * time.Second)) {
		t.Errorf("Expected alert at p2's timestamp, got %v", a.Timestamp)
	}

	// Evidence is slimmed to the fixed schema
	ev := a.Evidence
	if ev["tier"] != "short" {
		t.Errorf("Expected tier short, got %v", ev["tier"])
	}
	if ev["dt_sec"] != 60.0 {
		t.Errorf("Expected dt_sec 60, got %v", ev["dt_sec"])
	}
	dist, ok := ev["distance_m"].(float64)
	if !ok || dist < 111100 || dist > 111300 {
		t.Errorf("Expected distance ~111195 m, got %v", ev["distance_m"])
	}
	if ev["p1_timestamp"] != "2024-03-01T12:00:00Z" {
		t.Errorf("Unexpected p1_timestamp: %v", ev["p1_timestamp"])
	}
	if ev["p2_lat"] != 41.0 {
		t.Errorf("Expected p2_lat 41, got %v", ev["p2_lat"])
	}
	if ev["turn_rate_deg_per_sec"] != nil {
		t.Errorf("Expected null turn rate for a teleport alert, got %v", ev["turn_rate_deg_per_sec"])
	}
	if ev["p2_sog"] != nil {
		t.Errorf("Expected null p2_sog, got %v", ev["p2_sog"])
	}

	// Persisted and reflected in vessel severity
	stored := store.Alerts()
	if len(stored) != 1 || stored[0].ID == 0 {
		t.Fatalf("Expected 1 persisted alert with id, got %+v", stored)
	}
	v, _ := store.VesselLatest("367001234")
	if v.LastAlertSeverity != 100 {
		t.Errorf("Expected vessel severity 100, got %d", v.LastAlertSeverity)
	}
}

// TestProcessPointCooldownSuppression verifies repeated hits inside the
// window persist only once
func TestProcessPointCooldownSuppression(t *testing.T) {
	pl := newTestPipeline()
	store := NewMemoryStore()

	// Three consecutive one-degree jumps, 60 s apart: every pair triggers
	// the teleport rule, but only the first survives the 300 s cooldown.
	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	first := mustProcess(t, pl, store, point(60, 41.0, -74.0))
	second := mustProcess(t, pl, store, point(120, 42.0, -74.0))
	third := mustProcess(t, pl, store, point(180, 43.0, -74.0))

	if len(first) != 1 || len(second) != 0 || len(third) != 0 {
		t.Errorf("Expected alerts [1 0 0], got [%d %d %d]", len(first), len(second), len(third))
	}
	if got := len(store.Alerts()); got != 1 {
		t.Errorf("Expected 1 persisted alert, got %d", got)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 cooldown entry, got %d", store.Len())
	}
}

// TestProcessPointCooldownExpiry verifies the window reopens in event time
func TestProcessPointCooldownExpiry(t *testing.T) {
	pl := newTestPipeline()
	store := NewMemoryStore()

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	first := mustProcess(t, pl, store, point(60, 41.0, -74.0))
	// 340 s after the first alert: outside the 300 s window
	second := mustProcess(t, pl, store, point(400, 42.0, -74.0))
	// 60 s after the second alert: suppressed again
	third := mustProcess(t, pl, store, point(460, 43.0, -74.0))

	if len(first) != 1 || len(second) != 1 || len(third) != 0 {
		t.Errorf("Expected alerts [1 1 0], got [%d %d %d]", len(first), len(second), len(third))
	}
	if got := len(store.Alerts()); got != 2 {
		t.Errorf("Expected 2 persisted alerts, got %d", got)
	}
}

// TestProcessPointOutOfOrderSkipsRules verifies stale points update the
// snapshot but never reach the rules
func TestProcessPointOutOfOrderSkipsRules(t *testing.T) {
	pl := newTestPipeline()
	store := NewMemoryStore()

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	mustProcess(t, pl, store, point(60, 40.001, -74.0))

	// A teleport-sized jump, but timestamped before the track tail
	stale := point(30, 41.0, -74.0)
	alerts := mustProcess(t, pl, store, stale)
	if len(alerts) != 0 {
		t.Fatalf("Expected no alerts for out-of-order point, got %d", len(alerts))
	}

	// The latest snapshot still reflects the last processed point
	v, _ := store.VesselLatest("367001234")
	if !v.Timestamp.Equal(stale.Timestamp) {
		t.Errorf("Expected snapshot at stale point's timestamp, got %v", v.Timestamp)
	}
}

// TestProcessPointRulePanicIsolated verifies one broken rule cannot stop the
// rest of the registry
func TestProcessPointRulePanicIsolated(t *testing.T) {
	boom := rules.Rule{
		Type: ais.RuleType("BOOM"),
		Eval: func(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
			panic("rule bug")
		},
	}
	pl := New(Config{
		Detection: config.EmptyDetectionConfig(),
		Rules:     append([]rules.Rule{boom}, rules.Registry()...),
	})
	store := NewMemoryStore()

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	alerts := mustProcess(t, pl, store, point(60, 41.0, -74.0))

	if len(alerts) != 1 || alerts[0].Type != ais.RuleTeleport {
		t.Fatalf("Expected the teleport alert despite the panicking rule, got %+v", alerts)
	}
}

type failingStore struct {
	*MemoryStore
	failInsert bool
}

func (f *failingStore) InsertAlert(a *ais.Alert) error {
	if f.failInsert {
		return errors.New("disk full")
	}
	return f.MemoryStore.InsertAlert(a)
}

// TestProcessPointPersistenceErrorAborts verifies store failures surface to
// the caller
func TestProcessPointPersistenceErrorAborts(t *testing.T) {
	pl := newTestPipeline()
	store := &failingStore{MemoryStore: NewMemoryStore(), failInsert: true}

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	alerts, err := pl.ProcessPoint(store, point(60, 41.0, -74.0))
	if err == nil {
		t.Fatal("Expected persistence error")
	}
	if alerts != nil {
		t.Errorf("Expected nil alerts on error, got %+v", alerts)
	}
}

// TestProcessPointRecordsPositions verifies the optional history sink
func TestProcessPointRecordsPositions(t *testing.T) {
	withHistory := New(Config{Detection: config.EmptyDetectionConfig(), RecordPositions: true})
	store := NewMemoryStore()
	mustProcess(t, withHistory, store, point(0, 40.0, -74.0))
	mustProcess(t, withHistory, store, point(60, 40.001, -74.0))
	if store.PositionCount() != 2 {
		t.Errorf("Expected 2 recorded positions, got %d", store.PositionCount())
	}

	withoutHistory := newTestPipeline()
	bare := NewMemoryStore()
	mustProcess(t, withoutHistory, bare, point(0, 40.0, -74.0))
	if bare.PositionCount() != 0 {
		t.Errorf("Expected no recorded positions, got %d", bare.PositionCount())
	}
}

// TestProcessPointSeverityMonotone verifies the vessel severity is the max
// over all alert severities
func TestProcessPointSeverityMonotone(t *testing.T) {
	high := rules.Rule{
		Type: ais.RuleTeleport,
		Eval: func(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
			return &ais.Alert{Timestamp: p2.Timestamp, MMSI: p2.MMSI, Type: ais.RuleTeleport, Severity: 90, Summary: "high"}
		},
	}
	low := rules.Rule{
		Type: ais.RuleTurnRate,
		Eval: func(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
			return &ais.Alert{Timestamp: p2.Timestamp, MMSI: p2.MMSI, Type: ais.RuleTurnRate, Severity: 40, Summary: "low"}
		},
	}
	pl := New(Config{Detection: config.EmptyDetectionConfig(), Rules: []rules.Rule{high, low}})
	store := NewMemoryStore()

	mustProcess(t, pl, store, point(0, 40.0, -74.0))
	alerts := mustProcess(t, pl, store, point(60, 40.001, -74.0))
	if len(alerts) != 2 {
		t.Fatalf("Expected both alerts, got %d", len(alerts))
	}
	if alerts[0].Severity != 90 || alerts[1].Severity != 40 {
		t.Errorf("Expected rule-order emission [90 40], got [%d %d]", alerts[0].Severity, alerts[1].Severity)
	}

	v, _ := store.VesselLatest("367001234")
	if v.LastAlertSeverity != 90 {
		t.Errorf("Expected severity to stay at max 90, got %d", v.LastAlertSeverity)
	}
}

// TestSlimEvidence pins the persisted evidence schema
func TestSlimEvidence(t *testing.T) {
	p1 := point(0, 40.0, -74.0)
	p2 := point(10, 40.5, -74.5)
	p2.SOG = floatPtr(12.0)
	p2.COG = floatPtr(90.0)

	ev := map[string]any{
		"dt_sec":          10.0,
		"turn_rate_deg_s": 4.5,
		"speed_kn":        12.0, // not part of the slim schema
		"heading_delta":   45.0, // whitelisted extra
		"internal_debug":  "dropped",
	}

	got := slimEvidence(ev, p1, p2)
	want := map[string]any{
		"dt_sec":                10.0,
		"distance_m":            nil,
		"implied_speed_kn":      nil,
		"turn_rate_deg_per_sec": 4.5,
		"accel_knots_per_sec":   nil,
		"tier":                  nil,
		"p1_lat":                40.0,
		"p1_lon":                -74.0,
		"p1_timestamp":          "2024-03-01T12:00:00Z",
		"p2_lat":                40.5,
		"p2_lon":                -74.5,
		"p2_timestamp":          "2024-03-01T12:00:10Z",
		"p2_sog":                12.0,
		"p2_cog":                90.0,
		"p2_heading":            nil,
		"heading_delta":         45.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("slimmed evidence mismatch (-want +got):\n%s", diff)
	}
}

func floatPtr(f float64) *float64 { return &f }
