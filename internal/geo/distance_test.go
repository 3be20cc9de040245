package geo

import (
	"testing"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistanceKm(t *testing.T) {
	kampala := domain.Coordinate{Lat: 0.3476, Lng: 32.5825}
	entebbe := domain.Coordinate{Lat: 0.0512, Lng: 32.4637}

	assert.Equal(t, 0.0, HaversineDistanceKm(kampala, kampala))
	assert.InDelta(t, 111.195, HaversineDistanceKm(domain.Coordinate{}, domain.Coordinate{Lat: 1}), 0.001)
	assert.Equal(t, HaversineDistanceKm(kampala, entebbe), HaversineDistanceKm(entebbe, kampala))
	assert.Greater(t, HaversineDistanceKm(kampala, entebbe), 30.0)
	assert.Less(t, HaversineDistanceKm(kampala, entebbe), 40.0)
}

func TestHaversineDistanceKm_Antipodal(t *testing.T) {
	d := HaversineDistanceKm(domain.Coordinate{Lat: 0, Lng: 0}, domain.Coordinate{Lat: 0, Lng: 180})
	assert.InDelta(t, 20015.09, d, 0.01)
}

type station struct {
	code string
	at   domain.Coordinate
}

func stationLocation(s station) domain.Coordinate { return s.at }

func TestNearestOf(t *testing.T) {
	candidates := []station{
		{"far", domain.Coordinate{Lat: 3, Lng: 3}},
		{"near", domain.Coordinate{Lat: 0.1, Lng: 0.1}},
		{"mid", domain.Coordinate{Lat: 1, Lng: 1}},
	}

	got, idx, dist, err := NearestOf(domain.Coordinate{}, candidates, stationLocation)
	require.NoError(t, err)
	assert.Equal(t, "near", got.code)
	assert.Equal(t, 1, idx)
	assert.InDelta(t, HaversineDistanceKm(domain.Coordinate{}, candidates[1].at), dist, 1e-12)
}

func TestNearestOf_TieKeepsFirst(t *testing.T) {
	candidates := []station{
		{"east", domain.Coordinate{Lat: 0, Lng: 1}},
		{"west", domain.Coordinate{Lat: 0, Lng: -1}},
	}

	got, idx, _, err := NearestOf(domain.Coordinate{}, candidates, stationLocation)
	require.NoError(t, err)
	assert.Equal(t, "east", got.code)
	assert.Equal(t, 0, idx)
}

func TestNearestOf_Empty(t *testing.T) {
	_, idx, _, err := NearestOf(domain.Coordinate{}, []station{}, stationLocation)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Equal(t, -1, idx)
}
