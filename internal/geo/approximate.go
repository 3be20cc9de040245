package geo

import (
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/site-registry/internal/domain"
)

// randomBearing draws a bearing uniformly from [0, 2π). Tests replace it.
var randomBearing = func() float64 {
	return rand.Float64() * 2 * math.Pi
}

// Approximate displaces c by distanceKm along bearing (radians clockwise from
// true north) on a spherical earth. A nil bearing is drawn at random; the one
// used is returned so callers can persist it and re-derive the same point.
func Approximate(c domain.Coordinate, distanceKm float64, bearing *float64) (domain.ApproximateCoordinate, error) {
	if err := c.Validate(); err != nil {
		return domain.ApproximateCoordinate{}, err
	}
	if !(distanceKm > 0) || math.IsInf(distanceKm, 0) {
		return domain.ApproximateCoordinate{}, &domain.InvalidInputError{
			Field:  "approximate_distance_in_km",
			Reason: "must be greater than zero",
		}
	}

	var theta float64
	if bearing != nil {
		theta = normalizeBearing(*bearing)
	} else {
		theta = randomBearing()
	}

	return domain.ApproximateCoordinate{
		Coordinate:     Destination(c, distanceKm, theta),
		BearingRadians: theta,
		DistanceKm:     distanceKm,
	}, nil
}

// Destination returns the point distanceKm away from c along bearing.
func Destination(c domain.Coordinate, distanceKm, bearing float64) domain.Coordinate {
	delta := distanceKm / EarthRadiusKm
	phi1 := toRadians(c.Lat)
	lambda1 := toRadians(c.Lng)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(bearing)
	phi2 := math.Asin(math.Max(-1, math.Min(1, sinPhi2)))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(bearing)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)

	return domain.Coordinate{
		Lat: toDegrees(phi2),
		Lng: normalizeLongitude(toDegrees(lambda2)),
	}
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 2*math.Pi)
	if b < 0 {
		b += 2 * math.Pi
	}
	return b
}

// normalizeLongitude wraps a longitude into [-180, 180].
func normalizeLongitude(lng float64) float64 {
	lng = math.Mod(lng+540, 360) - 180
	if lng == -180 {
		return 180
	}
	return lng
}
