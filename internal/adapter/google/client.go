package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
	"googlemaps.github.io/maps"
)

const (
	sourceGeocoder  = "google geocoder"
	sourceElevation = "google elevation"
)

// Client implements domain.Geocoder and domain.ElevationSource using the
// Google Maps Platform web services.
type Client struct {
	maps   *maps.Client
	logger *slog.Logger
}

// NewClient creates a Google Maps client. Extra options are applied after the
// API key and HTTP client, so tests can point it at a local server with
// maps.WithBaseURL.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, opts ...maps.ClientOption) (*Client, error) {
	base := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	mc, err := maps.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &Client{maps: mc, logger: logger}, nil
}

// ReverseGeocode converts coordinates to a structured address using the first
// geocoding result.
func (c *Client) ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.AddressResult, error) {
	results, err := c.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: coord.Lat, Lng: coord.Lng},
	})
	if err != nil {
		if isZeroResults(err) {
			return domain.AddressResult{}, &domain.UpstreamError{Source: sourceGeocoder, NotFound: true}
		}
		c.logger.Warn("reverse geocode failed", "lat", coord.Lat, "lng", coord.Lng, "error", err)
		return domain.AddressResult{}, &domain.UpstreamError{Source: sourceGeocoder, Err: err}
	}
	if len(results) == 0 {
		return domain.AddressResult{}, &domain.UpstreamError{Source: sourceGeocoder, NotFound: true}
	}
	return AddressFromResult(results[0]), nil
}

// Elevation returns the ground elevation in meters at coord.
func (c *Client) Elevation(ctx context.Context, coord domain.Coordinate) (float64, error) {
	results, err := c.maps.Elevation(ctx, &maps.ElevationRequest{
		Locations: []maps.LatLng{{Lat: coord.Lat, Lng: coord.Lng}},
	})
	if err != nil {
		if isZeroResults(err) {
			return 0, &domain.UpstreamError{Source: sourceElevation, NotFound: true}
		}
		return 0, &domain.UpstreamError{Source: sourceElevation, Err: err}
	}
	if len(results) == 0 {
		return 0, &domain.UpstreamError{Source: sourceElevation, NotFound: true}
	}
	return results[0].Elevation, nil
}

func isZeroResults(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return strings.Contains(err.Error(), "ZERO_RESULTS")
}
