package ais

import (
	"math"
	"testing"
	"time"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		expected               float64
		tolerance              float64
	}{
		{"identical points", 40.0, -74.0, 40.0, -74.0, 0.0, 0.001},
		{"one degree latitude", 40.0, -74.0, 41.0, -74.0, 111194.9, 1.0},
		{"one degree longitude at equator", 0.0, 10.0, 0.0, 11.0, 111194.9, 1.0},
		{"one degree longitude at 60N", 60.0, 10.0, 60.0, 11.0, 55597.5, 10.0},
		{"across the antimeridian", 0.0, 179.5, 0.0, -179.5, 111194.9, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("HaversineMeters() = %f, want %f (±%f)", got, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestHeadingDeltaDeg(t *testing.T) {
	tests := []struct {
		name     string
		h1, h2   float64
		expected float64
	}{
		{"no change", 90.0, 90.0, 0.0},
		{"simple difference", 45.0, 90.0, 45.0},
		{"wrap clockwise", 350.0, 10.0, 20.0},
		{"wrap counterclockwise", 10.0, 350.0, 20.0},
		{"opposite bearings", 0.0, 180.0, 180.0},
		{"just under wrap", 0.0, 359.0, 1.0},
		{"quarter turn", 270.0, 0.0, 90.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeadingDeltaDeg(tt.h1, tt.h2)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("HeadingDeltaDeg(%f, %f) = %f, want %f", tt.h1, tt.h2, got, tt.expected)
			}
			// The delta is symmetric.
			back := HeadingDeltaDeg(tt.h2, tt.h1)
			if math.Abs(back-got) > 1e-9 {
				t.Errorf("HeadingDeltaDeg not symmetric: %f vs %f", got, back)
			}
		})
	}
}

func TestImpliedSpeedKnots(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p1 := Point{MMSI: "367001234", Timestamp: t0, Lat: 40.0, Lon: -74.0}
	p2 := Point{MMSI: "367001234", Timestamp: t0.Add(60 * time.Second), Lat: 41.0, Lon: -74.0}

	sp, ok := ImpliedSpeedKnots(p1, p2)
	if !ok {
		t.Fatal("implied speed should be defined for positive dt")
	}
	// 111195 m in 60 s is roughly 3602 knots.
	if math.Abs(sp-3602.4) > 1.0 {
		t.Errorf("implied speed = %f kn, want ~3602.4 kn", sp)
	}

	// Zero and negative time deltas are undefined.
	if _, ok := ImpliedSpeedKnots(p1, p1); ok {
		t.Error("implied speed should be undefined for dt = 0")
	}
	if _, ok := ImpliedSpeedKnots(p2, p1); ok {
		t.Error("implied speed should be undefined for dt < 0")
	}

	// A stationary vessel implies zero speed.
	p3 := p1
	p3.Timestamp = t0.Add(10 * time.Second)
	sp, ok = ImpliedSpeedKnots(p1, p3)
	if !ok || sp != 0 {
		t.Errorf("stationary implied speed = %f, ok=%v, want 0, true", sp, ok)
	}
}

func TestHeadingValid(t *testing.T) {
	h := 90.0
	na := HeadingNotAvailable

	if (Point{}).HeadingValid() {
		t.Error("nil heading should not be valid")
	}
	if (Point{Heading: &na}).HeadingValid() {
		t.Error("511 sentinel heading should not be valid")
	}
	if !(Point{Heading: &h}).HeadingValid() {
		t.Error("90 degree heading should be valid")
	}
}
