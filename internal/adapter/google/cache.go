package google

import (
	"context"
	"fmt"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed on the
// coordinate rounded to six decimal places. Errors are never cached.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.AddressResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	cache, err := lru.New[string, domain.AddressResult](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.AddressResult, error) {
	key := cacheKey(coord)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("geocode", "hit").Inc()
		return result, nil
	}
	c.metrics.CacheLookups.WithLabelValues("geocode", "miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, coord)
	if err != nil {
		return result, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// CachedElevation wraps an ElevationSource with an in-memory LRU cache.
type CachedElevation struct {
	inner   domain.ElevationSource
	cache   *lru.Cache[string, float64]
	metrics *observability.Metrics
}

// NewCachedElevation creates a cache decorator around an elevation source.
func NewCachedElevation(inner domain.ElevationSource, maxEntries int, metrics *observability.Metrics) (*CachedElevation, error) {
	cache, err := lru.New[string, float64](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create elevation cache: %w", err)
	}
	return &CachedElevation{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedElevation) Elevation(ctx context.Context, coord domain.Coordinate) (float64, error) {
	key := cacheKey(coord)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("elevation", "hit").Inc()
		return v, nil
	}
	c.metrics.CacheLookups.WithLabelValues("elevation", "miss").Inc()

	v, err := c.inner.Elevation(ctx, coord)
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func cacheKey(c domain.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}
