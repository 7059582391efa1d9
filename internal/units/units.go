// Package units provides shared constants and validation for marine speed units
package units

import (
	"slices"
	"strings"
)

// MetersPerSecondToKnots is the exact conversion factor used by the detection
// rules. AIS reports speed over ground in knots; the geo math yields meters
// per second.
const MetersPerSecondToKnots = 1.9438444924406

// NauticalMileMeters is the length of one nautical mile in meters.
const NauticalMileMeters = 1852.0

// Unit constants
const (
	KN   = "kn"
	MPS  = "mps"
	KMPH = "kmph"
	MPH  = "mph"
)

// ValidUnits lists every unit the API accepts for display conversion.
var ValidUnits = []string{KN, MPS, KMPH, MPH}

// IsValid reports whether unit is one of ValidUnits.
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// GetValidUnitsString returns the accepted units as a comma-separated list
// for error messages.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// MpsToKnots converts meters per second to knots.
func MpsToKnots(mps float64) float64 {
	return mps * MetersPerSecondToKnots
}

// KnotsToMps converts knots to meters per second.
func KnotsToMps(kn float64) float64 {
	return kn / MetersPerSecondToKnots
}

// ConvertSpeed converts a speed from knots to the target units
// AIS reports and the database store speeds in knots
func ConvertSpeed(speedKnots float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return KnotsToMps(speedKnots)
	case KMPH:
		return KnotsToMps(speedKnots) * 3.6 // m/s to km/h
	case MPH:
		return KnotsToMps(speedKnots) * 2.23694 // m/s to mph
	case KN:
		return speedKnots // no conversion needed
	default:
		return speedKnots // default to knots if unknown unit
	}
}
