package rules

import (
	"fmt"
	"math"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

// TurnRate is the tier-1 impossible-turn rule. The angular signal comes from
// selectAngle; the threshold and severity cap depend on speed, because at low
// speed COG and heading are dominated by sensor noise:
//
//	speed < low floor (3 kn):          skip entirely
//	low floor <= speed < floor (10 kn): threshold x1.5, severity capped at 50
//	otherwise:                          full threshold and cap
func TurnRate(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 {
		return nil
	}
	if dt < cfg.GetTurnRateDtMinSec() {
		return nil
	}

	angleChange, angleType, ok := selectAngle(p1, p2)
	if !ok {
		return nil
	}

	sog, ok := speedOverGround(p1, p2)
	if !ok {
		return nil
	}

	var maxRate float64
	var severityCap int
	var tier string
	switch {
	case sog < cfg.GetMinSpeedForTurnCheckLowKnots():
		return nil
	case sog < cfg.GetMinSpeedForTurnCheckKnots():
		maxRate = cfg.GetMaxTurnRateDegPerSec() * 1.5
		severityCap = 50
		tier = "low_speed"
	default:
		maxRate = cfg.GetMaxTurnRateDegPerSec()
		severityCap = 100
		tier = "normal"
	}

	rate := angleChange / dt
	if rate <= maxRate {
		return nil
	}

	severity := min(severityCap, int(float64(severityCap)*(rate-maxRate)/maxRate))
	return &ais.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ais.RuleTurnRate,
		Severity:  severity,
		Summary:   fmt.Sprintf("Turn rate %.2f deg/s at %.1f kn (%s)", rate, sog, angleType),
		Evidence: map[string]any{
			"dt_sec":          dt,
			"delta_angle_deg": angleChange,
			"turn_rate_deg_s": rate,
			"speed_kn":        sog,
			"angle_type":      angleType,
			"tier":            tier,
		},
	}
}

// TurnRateT2 flags moderate turns strictly inside the band between the
// suspicious minimum (1 deg/s) and the tier-1 threshold (3 deg/s), for
// vessels moving at least at the low-speed floor. Severity lands in [15, 50].
func TurnRateT2(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 || dt < cfg.GetTurnRateDtMinSec() {
		return nil
	}

	angleChange, angleType, ok := selectAngle(p1, p2)
	if !ok {
		return nil
	}

	sog, ok := speedOverGround(p1, p2)
	if !ok || sog < cfg.GetMinSpeedForTurnCheckLowKnots() {
		return nil
	}

	suspiciousMin := cfg.GetTurnRateSuspiciousMinDegPerSec()
	tier1Threshold := cfg.GetMaxTurnRateDegPerSec()

	rate := angleChange / dt
	if rate <= suspiciousMin || rate >= tier1Threshold {
		return nil
	}

	frac := (rate - suspiciousMin) / math.Max(0.5, tier1Threshold-suspiciousMin)
	severity := 15 + int(35*frac)
	return &ais.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ais.RuleTurnRateT2,
		Severity:  severity,
		Summary:   fmt.Sprintf("Moderate suspicious turn %.2f deg/s at %.1f kn (Tier-2)", rate, sog),
		Evidence: map[string]any{
			"dt_sec":          dt,
			"delta_angle_deg": angleChange,
			"turn_rate_deg_s": rate,
			"speed_kn":        sog,
			"angle_type":      angleType,
			"tier":            "suspicious",
			"band_low_deg_s":  suspiciousMin,
			"band_high_deg_s": tier1Threshold,
		},
	}
}
