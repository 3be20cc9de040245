// Package memory provides an in-process implementation of the site, counter,
// and airqloud stores. It backs the default configuration and the service
// tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/couchcryptid/site-registry/internal/domain"
)

type tenantData struct {
	sites     []domain.Site
	counters  map[string]int64
	airqlouds []domain.AirQloud
}

// Store is a mutex-guarded multi-tenant store. Site generated names and
// lat/long keys are unique per tenant.
type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tenants: make(map[string]*tenantData)}
}

func (s *Store) tenant(name string) *tenantData {
	t, ok := s.tenants[name]
	if !ok {
		t = &tenantData{counters: make(map[string]int64)}
		s.tenants[name] = t
	}
	return t
}

// List returns copies of the tenant's sites matching filter in insertion order.
func (s *Store) List(_ context.Context, tenant string, filter domain.SiteFilter) ([]domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Site
	for _, site := range s.tenant(tenant).sites {
		if filter.Matches(site) {
			out = append(out, cloneSite(site))
		}
	}
	return out, nil
}

// Register inserts site, rejecting duplicate ids, generated names, and lat/long keys.
func (s *Store) Register(_ context.Context, tenant string, site domain.Site) (domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenant)
	if err := t.checkUnique(site, -1); err != nil {
		return domain.Site{}, err
	}
	t.sites = append(t.sites, cloneSite(site))
	return cloneSite(site), nil
}

// Modify replaces the first site matching filter with update.
func (s *Store) Modify(_ context.Context, tenant string, filter domain.SiteFilter, update domain.Site) (domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenant)
	idx := slices.IndexFunc(t.sites, filter.Matches)
	if idx < 0 {
		return domain.Site{}, domain.ErrNotFound
	}
	if err := t.checkUnique(update, idx); err != nil {
		return domain.Site{}, err
	}
	t.sites[idx] = cloneSite(update)
	return cloneSite(update), nil
}

func (t *tenantData) checkUnique(site domain.Site, skip int) error {
	for i, existing := range t.sites {
		if i == skip {
			continue
		}
		switch {
		case existing.ID == site.ID:
			return &domain.ConflictError{Field: "id", Value: site.ID}
		case existing.GeneratedName == site.GeneratedName:
			return &domain.ConflictError{Field: "generated_name", Value: site.GeneratedName}
		case existing.LatLong == site.LatLong:
			return &domain.ConflictError{Field: "lat_long", Value: site.LatLong}
		}
	}
	return nil
}

// ProvisionCounter creates the named counter at start unless it already exists.
func (s *Store) ProvisionCounter(_ context.Context, tenant, key string, start int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenant)
	if _, ok := t.counters[key]; !ok {
		t.counters[key] = start
	}
	return nil
}

// IncrementCounter atomically adds one to the named counter.
func (s *Store) IncrementCounter(_ context.Context, tenant, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenant)
	v, ok := t.counters[key]
	if !ok {
		return 0, domain.ErrCounterMissing
	}
	v++
	t.counters[key] = v
	return v, nil
}

// PutAirQloud inserts or replaces an airqloud by id.
func (s *Store) PutAirQloud(_ context.Context, tenant string, aq domain.AirQloud) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenant)
	aq.Boundary = slices.Clone(aq.Boundary)
	if i := slices.IndexFunc(t.airqlouds, func(a domain.AirQloud) bool { return a.ID == aq.ID }); i >= 0 {
		t.airqlouds[i] = aq
		return nil
	}
	t.airqlouds = append(t.airqlouds, aq)
	return nil
}

// AirQlouds lists the tenant's airqlouds.
func (s *Store) AirQlouds(_ context.Context, tenant string) ([]domain.AirQloud, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.tenant(tenant).airqlouds
	out := make([]domain.AirQloud, len(src))
	for i, aq := range src {
		aq.Boundary = slices.Clone(aq.Boundary)
		out[i] = aq
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func cloneSite(s domain.Site) domain.Site {
	s.Tags = slices.Clone(s.Tags)
	s.AirQlouds = slices.Clone(s.AirQlouds)
	if s.Altitude != nil {
		v := *s.Altitude
		s.Altitude = &v
	}
	if s.NearestStation != nil {
		v := *s.NearestStation
		s.NearestStation = &v
	}
	return s
}
