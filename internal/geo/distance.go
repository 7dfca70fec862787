// Package geo provides great-circle distance computation and human-readable
// distance formatting for the proximity engine. Everything here is pure and
// deterministic; distance computation never fails, it degrades to the
// Unknown sentinel.
package geo

import (
	"fmt"
	"math"

	"trainwatch/internal/types"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Unknown is the sentinel distance returned when either endpoint is missing
// or out of range. Callers must treat Unknown as "unknown, assume safe";
// it compares greater than every real threshold.
var Unknown = math.Inf(1)

// IsUnknown reports whether km is the Unknown sentinel.
func IsUnknown(km float64) bool {
	return math.IsInf(km, 1)
}

// Distance computes the great-circle distance between two points in
// kilometers using the haversine formula. Inputs are degrees. If either
// point is missing or outside the WGS 84 domain, Distance returns Unknown
// rather than failing.
func Distance(a, b types.GeoPoint) float64 {
	if !a.InRange() || !b.InRange() {
		return Unknown
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// FormatDistance renders a distance for alert text: meters below 1 km,
// two-decimal kilometers below 10 km, rounded kilometers otherwise.
func FormatDistance(km float64) string {
	switch {
	case IsUnknown(km):
		return "unknown"
	case km < 1:
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	case km < 10:
		return fmt.Sprintf("%.2f km", km)
	default:
		return fmt.Sprintf("%d km", int(math.Round(km)))
	}
}
