package domain

import (
	"math"
	"strconv"
	"time"
)

// Coordinate represents a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Validate checks that the coordinate lies within the valid latitude and
// longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return &InvalidInputError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return &InvalidInputError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	return nil
}

// LatLongKey is the natural dedup key for a coordinate, e.g. "0.3476_32.5825".
func LatLongKey(c Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "_" + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// ApproximateCoordinate is the public-facing displaced coordinate together with
// the bearing and distance used to derive it.
type ApproximateCoordinate struct {
	Coordinate
	BearingRadians float64 `json:"bearing_in_radians"`
	DistanceKm     float64 `json:"approximate_distance_in_km"`
}

// Address holds the structured reverse-geocoded location of a site. Several
// fields are synonyms filled from the same geocoder component.
type Address struct {
	Country       string `json:"country,omitempty"`
	Region        string `json:"region,omitempty"`
	District      string `json:"district,omitempty"`
	County        string `json:"county,omitempty"`
	City          string `json:"city,omitempty"`
	Town          string `json:"town,omitempty"`
	Street        string `json:"street,omitempty"`
	Parish        string `json:"parish,omitempty"`
	SubCounty     string `json:"sub_county,omitempty"`
	Village       string `json:"village,omitempty"`
	Division      string `json:"division,omitempty"`
	FormattedName string `json:"formatted_name,omitempty"`
	PlaceID       string `json:"google_place_id,omitempty"`
}

// AddressResult is a normalized reverse-geocoding response.
type AddressResult struct {
	Address
	Tags []string
}

// WeatherStation is an entry of the external weather-station directory.
type WeatherStation struct {
	ID             int        `json:"id"`
	Code           string     `json:"code"`
	Location       Coordinate `json:"location"`
	Elevation      float64    `json:"elevation"`
	CountryCode    string     `json:"countrycode,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	TimezoneOffset string     `json:"timezoneoffset,omitempty"`
	Name           string     `json:"name,omitempty"`
	Type           string     `json:"type,omitempty"`
}

// StationRef is the subset of a weather station stored on a site record.
type StationRef struct {
	ID       int        `json:"id"`
	Code     string     `json:"code"`
	Location Coordinate `json:"location"`
	Timezone string     `json:"timezone,omitempty"`
}

// Ref strips the station down to the fields exposed on site records.
func (w WeatherStation) Ref() StationRef {
	return StationRef{ID: w.ID, Code: w.Code, Location: w.Location, Timezone: w.Timezone}
}

// AirQloud is a named geofence. Boundary is an ordered ring of vertices; the
// closing vertex may or may not repeat the first.
type AirQloud struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Boundary []Coordinate `json:"boundary"`
}

// Site is a fully enriched monitoring-site record.
type Site struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	GeneratedName string                `json:"generated_name"`
	Network       string                `json:"network,omitempty"`
	Description   string                `json:"description,omitempty"`
	Location      Coordinate            `json:"location"`
	Approximate   ApproximateCoordinate `json:"approximate_location"`
	LatLong       string                `json:"lat_long"`
	Address

	Tags           []string    `json:"site_tags,omitempty"`
	Altitude       *float64    `json:"altitude,omitempty"`
	NearestStation *StationRef `json:"nearest_tahmo_station,omitempty"`
	AirQlouds      []string    `json:"airqlouds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is the caller input for registering a new site.
type Submission struct {
	Name                  string   `json:"name,omitempty"`
	Lat                   float64  `json:"latitude"`
	Lng                   float64  `json:"longitude"`
	ApproximateDistanceKm float64  `json:"approximate_distance_in_km,omitempty"`
	Bearing               *float64 `json:"bearing,omitempty"`
	Network               string   `json:"network,omitempty"`
	Description           string   `json:"description,omitempty"`
	Tags                  []string `json:"site_tags,omitempty"`
	AirQlouds             []string `json:"airqlouds,omitempty"`
}

// Coordinate returns the submitted true coordinate.
func (s Submission) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// SiteFilter selects sites by equality on the non-empty fields.
type SiteFilter struct {
	ID            string
	GeneratedName string
	LatLong       string
}

// Matches reports whether the site satisfies every non-empty filter field.
func (f SiteFilter) Matches(s Site) bool {
	if f.ID != "" && f.ID != s.ID {
		return false
	}
	if f.GeneratedName != "" && f.GeneratedName != s.GeneratedName {
		return false
	}
	if f.LatLong != "" && f.LatLong != s.LatLong {
		return false
	}
	return true
}

// NearbySite is a site annotated with its distance from a query point.
type NearbySite struct {
	Site
	DistanceKm float64 `json:"distance"`
}

// Metadata is the merged output of the enrichment sources. Nil pointers and
// AirQloudsResolved == false mean the source degraded and the field is absent.
type Metadata struct {
	Address           Address
	Tags              []string
	Altitude          *float64
	NearestStation    *StationRef
	AirQlouds         []string
	AirQloudsResolved bool
}

// Event actions published to the event bus.
const (
	ActionCreate = "create"
)

// SiteEvent is published to the event bus after a site is persisted.
type SiteEvent struct {
	Action     string    `json:"action"`
	Tenant     string    `json:"tenant"`
	Site       Site      `json:"site"`
	OccurredAt time.Time `json:"occurred_at"`
}
