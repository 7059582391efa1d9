// Package ais holds the core data model for AIS position reports and the
// data-integrity alerts derived from them, plus the geo primitives the
// detection rules are built on.
package ais

import "time"

// HeadingNotAvailable is the AIS sentinel for a missing true heading.
const HeadingNotAvailable = 511.0

//
// 0) Position reports
//

// Point is one decoded AIS position report. Optional kinematic fields are nil
// when the source record omitted them or they failed range validation at load
// time; they are never stored as out-of-range numbers.
type Point struct {
	MMSI      string
	Timestamp time.Time // UTC
	Lat       float64   // [-90, 90]
	Lon       float64   // [-180, 180]
	SOG       *float64  // knots, >= 0
	COG       *float64  // degrees [0, 360]
	Heading   *float64  // degrees [0, 360]; 511 = not available
}

// HeadingValid reports whether the point carries a usable true heading
// (present and not the 511 sentinel).
func (p Point) HeadingValid() bool {
	return p.Heading != nil && *p.Heading != HeadingNotAvailable
}

// SamePosition reports exact coordinate equality with q.
func (p Point) SamePosition(q Point) bool {
	return p.Lat == q.Lat && p.Lon == q.Lon
}

//
// 1) Alerts
//

// RuleType tags which detection rule produced an alert. The values are stable
// wire/database strings.
type RuleType string

const (
	RuleTeleport        RuleType = "TELEPORT"
	RuleTeleportT2      RuleType = "TELEPORT_T2"
	RuleTurnRate        RuleType = "TURN_RATE"
	RuleTurnRateT2      RuleType = "TURN_RATE_T2"
	RulePositionInvalid RuleType = "POSITION_INVALID"
	RuleAcceleration    RuleType = "ACCELERATION"
	RuleHeadingCOG      RuleType = "HEADING_COG_CONSISTENCY"
)

// Alert review states.
const (
	StatusNew           = "new"
	StatusReviewed      = "reviewed"
	StatusResolved      = "resolved"
	StatusFalsePositive = "false_positive"
)

// ValidStatuses lists the accepted alert review states.
var ValidStatuses = []string{StatusNew, StatusReviewed, StatusResolved, StatusFalsePositive}

// StatusValid checks a review state against ValidStatuses.
func StatusValid(s string) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Alert is one data-integrity finding for a vessel. Timestamp is the second
// (newer) driving point's timestamp. Evidence carries the slimmed
// rule-specific record persisted alongside the alert.
type Alert struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	MMSI      string         `json:"mmsi"`
	Type      RuleType       `json:"type"`
	Severity  int            `json:"severity"` // [0, 100]
	Summary   string         `json:"summary"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Status    string         `json:"status,omitempty"` // new | reviewed | resolved | false_positive
	Notes     *string        `json:"notes,omitempty"`
}

//
// 2) Per-vessel snapshots
//

// VesselLatest is the last-seen snapshot for one MMSI. LastAlertSeverity is
// the running max of severities ever emitted for the vessel; it never decays.
type VesselLatest struct {
	MMSI              string    `json:"mmsi"`
	Timestamp         time.Time `json:"timestamp"`
	Lat               float64   `json:"lat"`
	Lon               float64   `json:"lon"`
	SOG               *float64  `json:"sog,omitempty"`
	COG               *float64  `json:"cog,omitempty"`
	Heading           *float64  `json:"heading,omitempty"`
	LastAlertSeverity int       `json:"last_alert_severity"`
}
