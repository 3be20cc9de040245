// Package geo implements the spherical-earth geometry used to enrich sites:
// great-circle distance, destination points for coordinate obfuscation,
// point-in-polygon containment and nearest-neighbour search.
package geo

import (
	"math"

	"github.com/couchcryptid/site-registry/internal/domain"
)

// EarthRadiusKm is the mean earth radius used by every calculation here.
const EarthRadiusKm = 6371.0

// HaversineDistanceKm returns the great-circle distance between a and b.
func HaversineDistanceKm(a, b domain.Coordinate) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, h)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// NearestOf returns the candidate closest to p along with its index and
// distance. Ties keep the earliest candidate. An empty slice yields
// domain.ErrEmptyInput.
func NearestOf[T any](p domain.Coordinate, candidates []T, locate func(T) domain.Coordinate) (T, int, float64, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, -1, 0, domain.ErrEmptyInput
	}

	best := 0
	bestDist := HaversineDistanceKm(p, locate(candidates[0]))
	for i := 1; i < len(candidates); i++ {
		d := HaversineDistanceKm(p, locate(candidates[i]))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return candidates[best], best, bestDist, nil
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
