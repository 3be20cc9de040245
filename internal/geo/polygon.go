package geo

import (
	"math"

	"github.com/couchcryptid/site-registry/internal/domain"
)

// edgeEpsilon is the tolerance, in squared degrees, for treating a point as
// lying on a polygon edge.
const edgeEpsilon = 1e-12

// PointInPolygon reports whether p lies inside the simple polygon described by
// ring. The ring may be open or closed (last vertex equal to the first).
// Points on an edge or vertex count as inside. Rings with fewer than three
// vertices contain nothing.
//
// Coordinates are treated as planar (lng as x, lat as y), which is accurate
// for geofences that do not straddle the antimeridian or a pole.
func PointInPolygon(p domain.Coordinate, ring []domain.Coordinate) bool {
	ring = openRing(ring)
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[j], ring[i]
		if onSegment(p, a, b) {
			return true
		}
		// Even-odd rule: count edges crossing the horizontal ray to +x.
		if (b.Lat > p.Lat) != (a.Lat > p.Lat) {
			xCross := (a.Lng-b.Lng)*(p.Lat-b.Lat)/(a.Lat-b.Lat) + b.Lng
			if p.Lng < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// Contains reports whether the airqloud's boundary contains p.
func Contains(aq domain.AirQloud, p domain.Coordinate) bool {
	return PointInPolygon(p, aq.Boundary)
}

// ContainingAirQlouds returns the ids of every airqloud whose boundary
// contains p, in input order. The result is non-nil.
func ContainingAirQlouds(p domain.Coordinate, airqlouds []domain.AirQloud) []string {
	ids := make([]string, 0)
	for _, aq := range airqlouds {
		if Contains(aq, p) {
			ids = append(ids, aq.ID)
		}
	}
	return ids
}

func openRing(ring []domain.Coordinate) []domain.Coordinate {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

func onSegment(p, a, b domain.Coordinate) bool {
	cross := (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
	lenSq := (b.Lng-a.Lng)*(b.Lng-a.Lng) + (b.Lat-a.Lat)*(b.Lat-a.Lat)
	if lenSq == 0 {
		return (p.Lng-a.Lng)*(p.Lng-a.Lng)+(p.Lat-a.Lat)*(p.Lat-a.Lat) <= edgeEpsilon
	}
	// Squared perpendicular distance from p to the line through a and b.
	if cross*cross/lenSq > edgeEpsilon {
		return false
	}
	return p.Lng >= math.Min(a.Lng, b.Lng)-edgeEpsilon && p.Lng <= math.Max(a.Lng, b.Lng)+edgeEpsilon &&
		p.Lat >= math.Min(a.Lat, b.Lat)-edgeEpsilon && p.Lat <= math.Max(a.Lat, b.Lat)+edgeEpsilon
}
