// Package registry orchestrates site creation and refresh: validation,
// coordinate obfuscation, name generation, metadata enrichment, persistence,
// and event publication.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/enrich"
	"github.com/couchcryptid/site-registry/internal/geo"
	"github.com/couchcryptid/site-registry/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Enricher produces site metadata for a coordinate.
type Enricher interface {
	Aggregate(ctx context.Context, req enrich.Request) (enrich.Result, error)
	NearestStation(ctx context.Context, c domain.Coordinate) (domain.WeatherStation, error)
	AirQloudsFor(ctx context.Context, tenant string, c domain.Coordinate) ([]string, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Settings tune enrichment behaviour.
type Settings struct {
	// DefaultDistanceKm is the obfuscation distance when a submission omits one.
	DefaultDistanceKm float64
	// ProximityOnCreate enables station and airqloud lookups during Create.
	ProximityOnCreate bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for record timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator overrides how new site ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// Service is the site enrichment orchestrator.
type Service struct {
	store     domain.SiteStore
	names     *NameGenerator
	enricher  Enricher
	publisher domain.EventPublisher
	settings  Settings
	metrics   *observability.Metrics
	logger    *slog.Logger
	clock     clockwork.Clock
	newID     func() string
}

// NewService wires the orchestrator. publisher may be nil to disable events.
func NewService(
	store domain.SiteStore,
	names *NameGenerator,
	enricher Enricher,
	publisher domain.EventPublisher,
	settings Settings,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		names:     names,
		enricher:  enricher,
		publisher: publisher,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new enriched site. Each stage aborts the request on
// failure except publication, which is best-effort.
func (s *Service) Create(ctx context.Context, tenant string, sub domain.Submission) (domain.Site, error) {
	if sub.Name != "" {
		if err := ValidateName(sub.Name); err != nil {
			return domain.Site{}, s.fail("validate", err)
		}
	}

	coord := sub.Coordinate()
	distance := sub.ApproximateDistanceKm
	if distance == 0 {
		distance = s.settings.DefaultDistanceKm
	}
	approx, err := geo.Approximate(coord, distance, sub.Bearing)
	if err != nil {
		return domain.Site{}, s.fail("obfuscate", err)
	}

	generated, err := s.names.NextName(ctx, tenant)
	if err != nil {
		return domain.Site{}, s.fail("name", err)
	}

	res, err := s.enricher.Aggregate(ctx, enrich.Request{
		Tenant:       tenant,
		Location:     coord,
		ExistingTags: sub.Tags,
		Proximity:    s.settings.ProximityOnCreate,
	})
	if err != nil {
		return domain.Site{}, s.fail("aggregate", fmt.Errorf("enrich site: %w", err))
	}

	now := s.clock.Now().UTC()
	site := domain.Site{
		ID:            s.newID(),
		Name:          cmp.Or(sub.Name, generated),
		GeneratedName: generated,
		Network:       sub.Network,
		Description:   sub.Description,
		Location:      coord,
		Approximate:   approx,
		LatLong:       domain.LatLongKey(coord),
		AirQlouds:     slices.Clone(sub.AirQlouds),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyMetadata(&site, res.Metadata)

	stored, err := s.store.Register(ctx, tenant, site)
	if err != nil {
		return domain.Site{}, s.fail("persist", fmt.Errorf("register site: %w", err))
	}
	s.metrics.SitesCreated.Inc()
	s.logger.Info("site created", "tenant", tenant, "site_id", stored.ID, "generated_name", stored.GeneratedName)

	s.publish(ctx, tenant, stored)
	return stored, nil
}

// Refresh recomputes the derived attributes of an existing site and
// overwrites the stored record. The id and creation time are preserved, and
// the persisted bearing and displacement distance are reused.
func (s *Service) Refresh(ctx context.Context, tenant, id string) (domain.Site, error) {
	site, err := s.load(ctx, tenant, id)
	if err != nil {
		return domain.Site{}, s.fail("load", err)
	}

	if site.Name == "" {
		site.Name = recoverName(site)
	}

	approx, err := s.reapproximate(site)
	if err != nil {
		return domain.Site{}, s.fail("obfuscate", err)
	}
	site.Approximate = approx

	if site.GeneratedName == "" {
		if site.GeneratedName, err = s.names.NextName(ctx, tenant); err != nil {
			return domain.Site{}, s.fail("name", err)
		}
	}
	if site.Name == "" {
		site.Name = site.GeneratedName
	}

	res, err := s.enricher.Aggregate(ctx, enrich.Request{
		Tenant:       tenant,
		Location:     site.Location,
		ExistingTags: site.Tags,
		Proximity:    true,
	})
	if err != nil {
		return domain.Site{}, s.fail("aggregate", fmt.Errorf("enrich site %s: %w", id, err))
	}
	applyMetadata(&site, res.Metadata)

	site.LatLong = domain.LatLongKey(site.Location)
	site.UpdatedAt = s.clock.Now().UTC()

	stored, err := s.store.Modify(ctx, tenant, domain.SiteFilter{ID: site.ID}, site)
	if err != nil {
		return domain.Site{}, s.fail("persist", fmt.Errorf("modify site %s: %w", id, err))
	}
	s.metrics.SitesRefreshed.Inc()
	s.logger.Info("site refreshed", "tenant", tenant, "site_id", stored.ID)
	return stored, nil
}

// FindAirqloudsFor returns the ids of every tenant airqloud whose boundary
// contains the site's true coordinate.
func (s *Service) FindAirqloudsFor(ctx context.Context, tenant, id string) ([]string, error) {
	site, err := s.load(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return s.enricher.AirQloudsFor(ctx, tenant, site.Location)
}

// FindNearestWeatherStation returns the directory station closest to the site.
func (s *Service) FindNearestWeatherStation(ctx context.Context, tenant, id string) (domain.WeatherStation, error) {
	site, err := s.load(ctx, tenant, id)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	return s.enricher.NearestStation(ctx, site.Location)
}

// FindNearbySites lists the tenant's sites strictly within radiusKm of c,
// nearest first.
func (s *Service) FindNearbySites(ctx context.Context, tenant string, c domain.Coordinate, radiusKm float64) ([]domain.NearbySite, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !(radiusKm > 0) || math.IsInf(radiusKm, 0) {
		return nil, &domain.InvalidInputError{Field: "radius", Reason: "must be a positive number of kilometres"}
	}

	sites, err := s.store.List(ctx, tenant, domain.SiteFilter{})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	nearby := make([]domain.NearbySite, 0)
	for _, site := range sites {
		if d := geo.HaversineDistanceKm(c, site.Location); d < radiusKm {
			nearby = append(nearby, domain.NearbySite{Site: site, DistanceKm: d})
		}
	}
	slices.SortStableFunc(nearby, func(a, b domain.NearbySite) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})
	return nearby, nil
}

// StaleSites lists the tenant's sites last updated more than olderThan ago.
func (s *Service) StaleSites(ctx context.Context, tenant string, olderThan time.Duration) ([]domain.Site, error) {
	sites, err := s.store.List(ctx, tenant, domain.SiteFilter{})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	cutoff := s.clock.Now().Add(-olderThan)
	return slices.DeleteFunc(sites, func(site domain.Site) bool {
		return !site.UpdatedAt.Before(cutoff)
	}), nil
}

// CheckReadiness reports whether the backing store is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("site store not ready: %w", err)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, tenant, id string) (domain.Site, error) {
	sites, err := s.store.List(ctx, tenant, domain.SiteFilter{ID: id})
	if err != nil {
		return domain.Site{}, fmt.Errorf("load site %s: %w", id, err)
	}
	if len(sites) == 0 {
		return domain.Site{}, fmt.Errorf("site %s: %w", id, domain.ErrNotFound)
	}
	return sites[0], nil
}

func (s *Service) reapproximate(site domain.Site) (domain.ApproximateCoordinate, error) {
	if site.Approximate.DistanceKm > 0 {
		bearing := site.Approximate.BearingRadians
		return geo.Approximate(site.Location, site.Approximate.DistanceKm, &bearing)
	}
	return geo.Approximate(site.Location, s.settings.DefaultDistanceKm, nil)
}

func (s *Service) publish(ctx context.Context, tenant string, site domain.Site) {
	if s.publisher == nil {
		return
	}
	event := domain.SiteEvent{
		Action:     domain.ActionCreate,
		Tenant:     tenant,
		Site:       site,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("publish site event failed", "tenant", tenant, "site_id", site.ID, "error", err)
		return
	}
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func (s *Service) fail(stage string, err error) error {
	s.metrics.EnrichmentFailures.WithLabelValues(stage).Inc()
	if !errors.Is(err, domain.ErrInvalidInput) {
		s.logger.Warn("site enrichment aborted", "stage", stage, "error", err)
	}
	return err
}

// applyMetadata overwrites the address and tags and sets every optional field
// whose source succeeded. Fields from failed sources keep their prior values.
func applyMetadata(site *domain.Site, md domain.Metadata) {
	site.Address = md.Address
	site.Tags = md.Tags
	if md.Altitude != nil {
		site.Altitude = md.Altitude
	}
	if md.NearestStation != nil {
		site.NearestStation = md.NearestStation
	}
	if md.AirQloudsResolved {
		site.AirQlouds = md.AirQlouds
	}
}
