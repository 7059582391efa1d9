package rules

import (
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

// Teleport is the tier-1 implausible-displacement rule. The implied speed
// between the two points is compared against a threshold that depends on the
// reporting gap: class-A vessels underway report every few seconds, but a
// vessel at anchor may legitimately be silent for half an hour, so a single
// threshold either saturates on long gaps or misses real jumps in short ones.
//
//	gap <= short boundary:   short threshold (60 kn)
//	gap <= medium boundary:  medium threshold (100 kn)
//	gap <= long boundary:    fires only past twice the medium threshold,
//	                         fixed low severity (likely a data gap)
//	longer:                  never fires
func Teleport(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 {
		return nil
	}

	var threshold float64
	var tier string
	switch {
	case dt <= float64(cfg.GetTeleportDtShortMaxSec()):
		threshold = cfg.GetTeleportSpeedKnotsShort()
		tier = "short"
	case dt <= float64(cfg.GetTeleportDtMediumMaxSec()):
		threshold = cfg.GetTeleportSpeedKnotsMedium()
		tier = "medium"
	case dt <= float64(cfg.GetTeleportDtLongMaxSec()):
		sp, ok := ais.ImpliedSpeedKnots(p1, p2)
		if !ok {
			return nil
		}
		if sp > cfg.GetTeleportSpeedKnotsMedium()*2 {
			d := ais.HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
			return &ais.Alert{
				Timestamp: p2.Timestamp,
				MMSI:      p2.MMSI,
				Type:      ais.RuleTeleport,
				Severity:  30, // low confidence across a long gap
				Summary:   fmt.Sprintf("Large gap (%.1f min) with high speed %.1f kn", dt/60, sp),
				Evidence: map[string]any{
					"dt_sec":           dt,
					"distance_m":       d,
					"implied_speed_kn": sp,
					"tier":             "long_gap",
				},
			}
		}
		return nil
	default:
		// Likely a legitimate reporting gap.
		return nil
	}

	sp, ok := ais.ImpliedSpeedKnots(p1, p2)
	if !ok {
		return nil
	}
	if sp <= threshold {
		return nil
	}

	d := ais.HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
	severity := min(100, int(100*(sp-threshold)/threshold))
	return &ais.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ais.RuleTeleport,
		Severity:  severity,
		Summary:   fmt.Sprintf("Implied speed %.1f kn exceeds threshold (%s gap)", sp, tier),
		Evidence: map[string]any{
			"dt_sec":           dt,
			"distance_m":       d,
			"implied_speed_kn": sp,
			"tier":             tier,
		},
	}
}

// TeleportT2 flags jumps in the suspicious band strictly below the tier-1
// teleport thresholds: 40-60 kn over a short gap, 60-100 kn over a medium
// one. Severity scales linearly across the band into [20, 60].
func TeleportT2(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 {
		return nil
	}
	if dt > float64(cfg.GetTeleportDtMediumMaxSec()) {
		return nil
	}

	sp, ok := ais.ImpliedSpeedKnots(p1, p2)
	if !ok {
		return nil
	}

	var low, high float64
	var bandName string
	if dt <= float64(cfg.GetTeleportDtShortMaxSec()) {
		low = cfg.GetTeleportSuspiciousMinKnots()
		high = cfg.GetTeleportSpeedKnotsShort()
		bandName = "short"
	} else {
		low = cfg.GetTeleportSpeedKnotsShort()
		high = cfg.GetTeleportSpeedKnotsMedium()
		bandName = "medium"
	}

	// Outside the band, or extreme enough for tier 1.
	if sp <= low || sp >= high {
		return nil
	}

	d := ais.HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
	frac := (sp - low) / math.Max(1.0, high-low)
	severity := 20 + int(40*frac)
	return &ais.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ais.RuleTeleportT2,
		Severity:  severity,
		Summary:   fmt.Sprintf("Suspicious jump %.1f kn over %.0fs (Tier-2 teleport)", sp, dt),
		Evidence: map[string]any{
			"dt_sec":           dt,
			"distance_m":       d,
			"implied_speed_kn": sp,
			"tier":             "suspicious",
			"band":             bandName,
			"band_low_kn":      low,
			"band_high_kn":     high,
		},
	}
}
