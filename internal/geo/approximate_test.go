package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestApproximate_DueNorth(t *testing.T) {
	origin := domain.Coordinate{Lat: 0.3476, Lng: 32.5825}

	got, err := Approximate(origin, 1.5, ptr(0))
	require.NoError(t, err)

	assert.Greater(t, got.Lat, origin.Lat, "bearing 0 moves north")
	assert.InDelta(t, origin.Lng, got.Lng, 1e-9, "bearing 0 keeps longitude")
	assert.InDelta(t, origin.Lat+toDegrees(1.5/EarthRadiusKm), got.Lat, 1e-9)
	assert.InDelta(t, 1.5, HaversineDistanceKm(origin, got.Coordinate), 0.01)
	assert.Equal(t, 0.0, got.BearingRadians)
	assert.Equal(t, 1.5, got.DistanceKm)
}

func TestApproximate_DistancePreservedForAnyBearing(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for i := 0; i < 500; i++ {
		origin := domain.Coordinate{
			Lat: rng.Float64()*178 - 89,
			Lng: rng.Float64()*360 - 180,
		}
		distance := 0.01 + rng.Float64()*50
		bearing := rng.Float64() * 2 * math.Pi

		got, err := Approximate(origin, distance, &bearing)
		require.NoError(t, err)
		require.NoError(t, got.Validate())
		assert.InDelta(t, distance, HaversineDistanceKm(origin, got.Coordinate), 1e-6,
			"origin=%v distance=%v bearing=%v", origin, distance, bearing)
	}
}

func TestApproximate_DeterministicForFixedBearing(t *testing.T) {
	origin := domain.Coordinate{Lat: -1.2921, Lng: 36.8219}

	a, err := Approximate(origin, 0.5, ptr(2.1))
	require.NoError(t, err)
	b, err := Approximate(origin, 0.5, ptr(2.1))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestApproximate_RandomBearingIsReturned(t *testing.T) {
	orig := randomBearing
	t.Cleanup(func() { randomBearing = orig })
	randomBearing = func() float64 { return math.Pi / 2 }

	origin := domain.Coordinate{Lat: 0, Lng: 0}
	got, err := Approximate(origin, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, math.Pi/2, got.BearingRadians)
	assert.InDelta(t, 0, got.Lat, 1e-9, "due east on the equator stays on the equator")
	assert.Greater(t, got.Lng, 0.0)

	again, err := Approximate(origin, 1, &got.BearingRadians)
	require.NoError(t, err)
	assert.Equal(t, got, again, "persisted bearing re-derives the same point")
}

func TestApproximate_DefaultRandomBearingInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		got, err := Approximate(domain.Coordinate{Lat: 10, Lng: 10}, 1, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.BearingRadians, 0.0)
		assert.Less(t, got.BearingRadians, 2*math.Pi)
	}
}

func TestApproximate_NormalizesBearing(t *testing.T) {
	got, err := Approximate(domain.Coordinate{Lat: 5, Lng: 5}, 1, ptr(-math.Pi/2))
	require.NoError(t, err)
	assert.InDelta(t, 3*math.Pi/2, got.BearingRadians, 1e-12)
	assert.Less(t, got.Lng, 5.0, "bearing of -π/2 points west")
}

func TestApproximate_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		coord    domain.Coordinate
		distance float64
	}{
		{"zero distance", domain.Coordinate{Lat: 1, Lng: 1}, 0},
		{"negative distance", domain.Coordinate{Lat: 1, Lng: 1}, -2},
		{"NaN distance", domain.Coordinate{Lat: 1, Lng: 1}, math.NaN()},
		{"latitude out of range", domain.Coordinate{Lat: 91, Lng: 1}, 1},
		{"longitude out of range", domain.Coordinate{Lat: 1, Lng: 181}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Approximate(tt.coord, tt.distance, ptr(0))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestDestination_WrapsAntimeridian(t *testing.T) {
	got := Destination(domain.Coordinate{Lat: 0, Lng: 179.999}, 10, math.Pi/2)
	assert.Less(t, got.Lng, 0.0)
	assert.GreaterOrEqual(t, got.Lng, -180.0)
}
