// Package geo classifies location pings against circular geofences.
package geo

import "math"

const (
	// EarthRadius is the mean sphere radius used for great-circle distances, in meters.
	EarthRadius = 6371000.0
	// DefaultRadius applies to objects without a configured geofence radius, in meters.
	DefaultRadius = 100.0
)

// Distance returns the haversine great-circle distance in meters between two points given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// WithinGeofence reports whether distance lies inside radius. The boundary counts as inside.
func WithinGeofence(distance, radius float64) bool {
	return distance <= radius
}

// RadiusOr returns radius, or fallback when radius is not positive.
func RadiusOr(radius, fallback float64) float64 {
	if radius > 0 {
		return radius
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultRadius
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
