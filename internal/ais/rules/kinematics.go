package rules

import (
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

// accelWindowSec bounds the interval over which acceleration is meaningful;
// past five minutes a speed change says nothing about the sensor.
const accelWindowSec = 300.0

// headingCOGWindowSec bounds the heading/COG consistency check to short
// intervals where a wild swing cannot be an honest maneuver.
const headingCOGWindowSec = 10.0

// headingCOGMinSpeedKnots is the floor below which course scatter is normal.
const headingCOGMinSpeedKnots = 15.0

// Acceleration detects impossible speed changes inside a short interval.
// Two sub-checks, first hit wins:
//
//  1. if p2 reports SOG, the gap between implied speed and reported SOG
//  2. else, with SOG on both points, the rate of change of reported SOG
func Acceleration(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 || dt > accelWindowSec {
		return nil
	}

	impliedSp, ok := ais.ImpliedSpeedKnots(p1, p2)
	if !ok {
		return nil
	}

	if p2.SOG != nil {
		thr := cfg.GetSogImpliedSpeedDiffThresholdKnots()
		diff := math.Abs(impliedSp - *p2.SOG)
		if diff > thr {
			severity := min(100, int(100*diff/thr))
			return &ais.Alert{
				Timestamp: p2.Timestamp,
				MMSI:      p2.MMSI,
				Type:      ais.RuleAcceleration,
				Severity:  severity,
				Summary:   fmt.Sprintf("SOG mismatch: reported %.1f kn vs implied %.1f kn", *p2.SOG, impliedSp),
				Evidence: map[string]any{
					"sog_reported":     *p2.SOG,
					"implied_speed_kn": impliedSp,
					"difference_kn":    diff,
					"dt_sec":           dt,
				},
			}
		}
	}

	if p1.SOG != nil && p2.SOG != nil {
		maxAccel := cfg.GetMaxAccelKnotsPerSec()
		accel := math.Abs(*p2.SOG-*p1.SOG) / dt
		if accel > maxAccel {
			severity := min(100, int(100*accel/maxAccel))
			return &ais.Alert{
				Timestamp: p2.Timestamp,
				MMSI:      p2.MMSI,
				Type:      ais.RuleAcceleration,
				Severity:  severity,
				Summary:   fmt.Sprintf("Impossible acceleration: %.2f kn/s", accel),
				Evidence: map[string]any{
					"accel_knots_per_sec": accel,
					"sog1":                *p1.SOG,
					"sog2":                *p2.SOG,
					"dt_sec":              dt,
				},
			}
		}
	}

	return nil
}

// HeadingCOGConsistency detects wild course swings over very short intervals
// at speed. Unlike the turn-rate rules it takes the larger of the heading and
// COG deltas: either sensor jumping is a data problem at 15+ knots.
func HeadingCOGConsistency(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 || dt > headingCOGWindowSec {
		return nil
	}

	sog, ok := speedOverGround(p1, p2)
	if !ok || sog < headingCOGMinSpeedKnots {
		return nil
	}

	var angleChange float64
	angleType := ""
	haveAngle := false

	if p1.HeadingValid() && p2.HeadingValid() {
		angleChange = ais.HeadingDeltaDeg(*p1.Heading, *p2.Heading)
		angleType = "heading"
		haveAngle = true
	}
	if p1.COG != nil && p2.COG != nil {
		cogChange := ais.HeadingDeltaDeg(*p1.COG, *p2.COG)
		if !haveAngle || cogChange > angleChange {
			angleChange = cogChange
			angleType = "COG"
			haveAngle = true
		}
	}
	if !haveAngle {
		return nil
	}

	thr := cfg.GetMaxTurnRateHighSpeedDegPerSec()
	rate := angleChange / dt
	if rate <= thr {
		return nil
	}

	severity := min(100, int(100*(rate-thr)/thr))
	return &ais.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ais.RuleHeadingCOG,
		Severity:  severity,
		Summary:   fmt.Sprintf("Wild %s change: %.2f deg/s at %.1f kn", angleType, rate, sog),
		Evidence: map[string]any{
			"turn_rate_deg_s":  rate,
			"speed_kn":         sog,
			"angle_type":       angleType,
			"angle_change_deg": angleChange,
			"dt_sec":           dt,
		},
	}
}
