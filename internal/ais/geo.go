package ais

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/units"
)

// EarthRadiusMeters is the mean sphere radius used by the haversine distance.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance in meters between two
// coordinates on a sphere of EarthRadiusMeters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := (lat2 - lat1) * math.Pi / 180
	dl := (lon2 - lon1) * math.Pi / 180
	sinPhi := math.Sin(dphi / 2)
	sinL := math.Sin(dl / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinL*sinL
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// HeadingDeltaDeg returns the smallest angular difference between two bearings
// in degrees, in [0, 180].
func HeadingDeltaDeg(h1, h2 float64) float64 {
	d := math.Abs(math.Mod(h2-h1, 360.0))
	return math.Min(d, 360.0-d)
}

// ImpliedSpeedKnots is the speed in knots implied by the displacement between
// p1 and p2 over their time delta. ok is false when the delta is not positive,
// in which case the implied speed is undefined.
func ImpliedSpeedKnots(p1, p2 Point) (float64, bool) {
	dt := p2.Timestamp.Sub(p1.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	d := HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
	return units.MpsToKnots(d / dt), true
}
