// Package geo provides coordinate validation and great-circle distance
// calculation for delivery pricing.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned when a point is outside valid
// longitude/latitude ranges or is unset.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// IsUnset reports whether the point is the zero value. Addresses without a
// resolved geocode store (0,0), which is never a real location in this
// domain.
func IsUnset(p orb.Point) bool {
	return p.Lon() == 0 && p.Lat() == 0
}

// Validate checks that the point carries a usable real-world coordinate.
func Validate(p orb.Point) error {
	if IsUnset(p) {
		return ErrInvalidCoordinate
	}
	if p.Lon() < -180 || p.Lon() > 180 || p.Lat() < -90 || p.Lat() > 90 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceKm returns the Haversine great-circle distance between two
// points in kilometres. It is symmetric and returns 0 for identical
// points. Both points must pass Validate.
func DistanceKm(a, b orb.Point) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	dLat := toRadians(b.Lat() - a.Lat())
	dLon := toRadians(b.Lon() - a.Lon())
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRadians(a.Lat()))*math.Cos(toRadians(b.Lat()))*sinLon*sinLon
	// Floating error can push h fractionally outside [0,1] for
	// near-antipodal points, which would make Sqrt(1-h) NaN.
	h = math.Min(math.Max(h, 0), 1)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h)), nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
