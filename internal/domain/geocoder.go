package domain

import "context"

// Geocoder resolves coordinates to a structured address.
type Geocoder interface {
	// ReverseGeocode converts coordinates to address details. It returns an
	// *UpstreamError with NotFound set when the provider has no result.
	ReverseGeocode(ctx context.Context, c Coordinate) (AddressResult, error)
}

// ElevationSource looks up the ground elevation at a coordinate.
type ElevationSource interface {
	Elevation(ctx context.Context, c Coordinate) (float64, error)
}

// StationDirectory lists the known weather stations.
type StationDirectory interface {
	Stations(ctx context.Context) ([]WeatherStation, error)
}

// AirQloudSource lists a tenant's airqloud boundaries.
type AirQloudSource interface {
	AirQlouds(ctx context.Context, tenant string) ([]AirQloud, error)
}

// SiteStore persists a tenant's site collection.
type SiteStore interface {
	List(ctx context.Context, tenant string, filter SiteFilter) ([]Site, error)
	// Register inserts a new site. Duplicate unique fields yield *ConflictError.
	Register(ctx context.Context, tenant string, site Site) (Site, error)
	// Modify replaces the site matched by filter and returns the stored record.
	Modify(ctx context.Context, tenant string, filter SiteFilter, update Site) (Site, error)
}

// CounterStore atomically increments per-tenant counters.
type CounterStore interface {
	// IncrementCounter adds one to the named counter and returns the new value.
	// It returns ErrCounterMissing if the counter was never provisioned.
	IncrementCounter(ctx context.Context, tenant, key string) (int64, error)
}

// TenantStore is a store that owns both sites and counters.
type TenantStore interface {
	SiteStore
	CounterStore
}

// EventPublisher emits site lifecycle events to the downstream event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event SiteEvent) error
}
