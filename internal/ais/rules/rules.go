// Package rules implements the detection rules that turn consecutive AIS
// position reports into data-integrity alerts. Every rule is a pure function
// of (p1, p2, config): p1 is the second-newest point in the vessel's track
// window and p2 the newly arrived one. A rule returns nil when it has nothing
// to say.
//
// Rules come in two tiers: tier 1 fires on physically impossible motion, tier
// 2 on a suspicious band just below the tier-1 threshold (higher volume,
// lower severity).
package rules

import (
	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

// Func is the uniform evaluation contract shared by every detection rule.
type Func func(p1, p2 ais.Point, cfg *config.DetectionConfig) *ais.Alert

// Rule pairs a rule type tag with its evaluation function.
type Rule struct {
	Type ais.RuleType
	Eval Func
}

// Registry returns the detection rules in their fixed evaluation order.
// The order is part of the pipeline contract: alerts for one point are
// persisted and broadcast in this order. Adding a rule is appending here.
func Registry() []Rule {
	return []Rule{
		{ais.RuleTeleport, Teleport},
		{ais.RuleTeleportT2, TeleportT2},
		{ais.RuleTurnRate, TurnRate},
		{ais.RuleTurnRateT2, TurnRateT2},
		{ais.RulePositionInvalid, PositionInvalid},
		{ais.RuleAcceleration, Acceleration},
		{ais.RuleHeadingCOG, HeadingCOGConsistency},
	}
}

// selectAngle picks the angular signal for the turn-rate rules. AIS heading
// sensors frequently report stuck values, so COG is preferred unless the
// heading is actually moving (or COG is the stuck one). Returns the angular
// change in degrees and which signal produced it ("heading" or "COG").
func selectAngle(p1, p2 ais.Point) (deltaDeg float64, angleType string, ok bool) {
	headingValid := p1.HeadingValid() && p2.HeadingValid()
	cogAvailable := p1.COG != nil && p2.COG != nil

	switch {
	case headingValid && cogAvailable:
		headingChange := ais.HeadingDeltaDeg(*p1.Heading, *p2.Heading)
		cogChange := ais.HeadingDeltaDeg(*p1.COG, *p2.COG)
		if headingChange > 0.1 || cogChange < 0.1 {
			return headingChange, "heading", true
		}
		return cogChange, "COG", true
	case headingValid:
		return ais.HeadingDeltaDeg(*p1.Heading, *p2.Heading), "heading", true
	case cogAvailable:
		return ais.HeadingDeltaDeg(*p1.COG, *p2.COG), "COG", true
	default:
		return 0, "", false
	}
}

// speedOverGround returns p2's reported SOG, falling back to the implied
// speed between the points when SOG is absent.
func speedOverGround(p1, p2 ais.Point) (float64, bool) {
	if p2.SOG != nil {
		return *p2.SOG, true
	}
	return ais.ImpliedSpeedKnots(p1, p2)
}
