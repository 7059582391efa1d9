package rules

import (
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

// PositionInvalid runs the position sanity checks, in order:
//
//  1. lat/lon outside the valid ranges
//  2. at or within a millidegree of (0, 0), the null-island sentinel many
//     transponders emit when they have no fix
//  3. coordinates frozen for over a minute while SOG says the vessel moves
//  4. an extreme jump (>1000 km and >1000 kn implied) as a last guardrail
//
// Like every rule, it skips out-of-order pairs: the p2-only checks will run
// once a properly ordered successor arrives.
func PositionInvalid(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	if p2.Timestamp.Sub(p1.Timestamp) <= 0 {
		return nil
	}

	if p2.Lat < -90 || p2.Lat > 90 || p2.Lon < -180 || p2.Lon > 180 {
		return &ais.Alert{
			Timestamp: p2.Timestamp,
			MMSI:      p2.MMSI,
			Type:      ais.RulePositionInvalid,
			Severity:  100,
			Summary:   fmt.Sprintf("Position out of bounds: lat=%v, lon=%v", p2.Lat, p2.Lon),
			Evidence:  map[string]any{"lat": p2.Lat, "lon": p2.Lon, "mmsi": p2.MMSI},
		}
	}

	if math.Abs(p2.Lat) < 0.001 && math.Abs(p2.Lon) < 0.001 {
		return &ais.Alert{
			Timestamp: p2.Timestamp,
			MMSI:      p2.MMSI,
			Type:      ais.RulePositionInvalid,
			Severity:  100,
			Summary:   "Position at or near (0, 0)",
			Evidence:  map[string]any{"lat": p2.Lat, "lon": p2.Lon, "mmsi": p2.MMSI},
		}
	}

	if p1.SamePosition(p2) {
		dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
		if dt > 60 && p2.SOG != nil && *p2.SOG > 1.0 {
			return &ais.Alert{
				Timestamp: p2.Timestamp,
				MMSI:      p2.MMSI,
				Type:      ais.RulePositionInvalid,
				Severity:  70,
				Summary:   fmt.Sprintf("Position unchanged for %.0fs while SOG=%.1f kn", dt, *p2.SOG),
				Evidence:  map[string]any{"dt_sec": dt, "sog": *p2.SOG, "lat": p2.Lat, "lon": p2.Lon},
			}
		}
	}

	d := ais.HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
	if d >= cfg.GetPositionOutlierDistanceKm()*1000 {
		dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
		if sp, ok := ais.ImpliedSpeedKnots(p1, p2); ok && sp > 1000 {
			return &ais.Alert{
				Timestamp: p2.Timestamp,
				MMSI:      p2.MMSI,
				Type:      ais.RulePositionInvalid,
				Severity:  90,
				Summary:   fmt.Sprintf("Extreme position jump: %.1f km in %.0fs", d/1000, dt),
				Evidence:  map[string]any{"distance_m": d, "dt_sec": dt, "implied_speed_kn": sp},
			}
		}
	}

	return nil
}
