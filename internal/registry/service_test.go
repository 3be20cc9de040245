package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/site-registry/internal/adapter/memory"
	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/enrich"
	"github.com/couchcryptid/site-registry/internal/geo"
	"github.com/couchcryptid/site-registry/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "airqo"

var (
	kampala = domain.Coordinate{Lat: 0.3476, Lng: 32.5825}
	epoch   = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
)

// --- test doubles ---

type stubGeocoder struct {
	result domain.AddressResult
	err    error
}

func (s *stubGeocoder) ReverseGeocode(context.Context, domain.Coordinate) (domain.AddressResult, error) {
	return s.result, s.err
}

type stubElevation struct {
	value float64
	err   error
}

func (s *stubElevation) Elevation(context.Context, domain.Coordinate) (float64, error) {
	return s.value, s.err
}

type stubStations struct{ stations []domain.WeatherStation }

func (s stubStations) Stations(context.Context) ([]domain.WeatherStation, error) {
	return s.stations, nil
}

// recordingStore counts writes on top of the memory store.
type recordingStore struct {
	*memory.Store
	mu        sync.Mutex
	registers int
	modifies  int
}

func (r *recordingStore) Register(ctx context.Context, tenant string, site domain.Site) (domain.Site, error) {
	r.mu.Lock()
	r.registers++
	r.mu.Unlock()
	return r.Store.Register(ctx, tenant, site)
}

func (r *recordingStore) Modify(ctx context.Context, tenant string, f domain.SiteFilter, site domain.Site) (domain.Site, error) {
	r.mu.Lock()
	r.modifies++
	r.mu.Unlock()
	return r.Store.Modify(ctx, tenant, f, site)
}

type recordingPublisher struct {
	events []domain.SiteEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.SiteEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	svc       *Service
	store     *recordingStore
	geocoder  *stubGeocoder
	elevation *stubElevation
	publisher *recordingPublisher
	clock     *clockwork.FakeClock
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &recordingStore{Store: memory.NewStore()}
	require.NoError(t, store.ProvisionCounter(ctx, tenant, SiteCounterKey, 41))
	require.NoError(t, store.PutAirQloud(ctx, tenant, domain.AirQloud{ID: "aq-kampala", Boundary: []domain.Coordinate{
		{Lat: 0, Lng: 32}, {Lat: 0, Lng: 33}, {Lat: 1, Lng: 33}, {Lat: 1, Lng: 32},
	}}))

	f := &fixture{
		store: store,
		geocoder: &stubGeocoder{result: domain.AddressResult{
			Address: domain.Address{Country: "Uganda", City: "Kampala", Parish: "Nakasero", District: "Kampala"},
			Tags:    []string{"locality", "political"},
		}},
		elevation: &stubElevation{value: 1189.5},
		publisher: &recordingPublisher{},
		clock:     clockwork.NewFakeClockAt(epoch),
		metrics:   observability.NewMetricsForTesting(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := enrich.NewAggregator(enrich.Sources{
		Geocoder:  f.geocoder,
		Elevation: f.elevation,
		Stations: stubStations{stations: []domain.WeatherStation{
			{ID: 7, Code: "TA00007", Location: domain.Coordinate{Lat: 0.31, Lng: 32.58}, Elevation: 1190, CountryCode: "UG", Timezone: "Africa/Kampala", TimezoneOffset: "+03:00", Name: "Makerere", Type: "station"},
			{ID: 8, Code: "TA00008", Location: domain.Coordinate{Lat: -1.29, Lng: 36.82}},
		}},
		AirQlouds: store,
	}, time.Second, f.metrics, logger)

	ids := 0
	f.svc = NewService(store, NewNameGenerator(store, f.metrics), agg, f.publisher,
		Settings{DefaultDistanceKm: 0.5, ProximityOnCreate: true}, f.metrics, logger,
		WithClock(f.clock),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("site-id-%d", ids)
		}),
	)
	return f
}

func bearing(v float64) *float64 { return &v }

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	f := newFixture(t)

	site, err := f.svc.Create(context.Background(), tenant, domain.Submission{
		Name:                  "Makerere Hill",
		Lat:                   kampala.Lat,
		Lng:                   kampala.Lng,
		ApproximateDistanceKm: 1.5,
		Bearing:               bearing(0),
		Network:               "airqo",
		Tags:                  []string{"urban", "locality"},
	})
	require.NoError(t, err)

	assert.Equal(t, "site-id-1", site.ID)
	assert.Equal(t, "Makerere Hill", site.Name)
	assert.Equal(t, "site_42", site.GeneratedName)
	assert.Equal(t, "0.3476_32.5825", site.LatLong)
	assert.Equal(t, kampala, site.Location)
	assert.InDelta(t, 1.5, geo.HaversineDistanceKm(kampala, site.Approximate.Coordinate), 0.01)
	assert.Greater(t, site.Approximate.Lat, kampala.Lat, "due north")
	assert.Equal(t, "Uganda", site.Country)
	assert.Equal(t, []string{"locality", "political", "urban"}, site.Tags)
	require.NotNil(t, site.Altitude)
	assert.InDelta(t, 1189.5, *site.Altitude, 1e-9)
	require.NotNil(t, site.NearestStation)
	assert.Equal(t, "TA00007", site.NearestStation.Code)
	assert.Equal(t, []string{"aq-kampala"}, site.AirQlouds)
	assert.Equal(t, epoch, site.CreatedAt)
	assert.Equal(t, epoch, site.UpdatedAt)

	stored, err := f.store.List(context.Background(), tenant, domain.SiteFilter{ID: site.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, site, stored[0])

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.ActionCreate, f.publisher.events[0].Action)
	assert.Equal(t, tenant, f.publisher.events[0].Tenant)
	assert.Equal(t, site.ID, f.publisher.events[0].Site.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SitesCreated))
}

func TestCreate_UsesGeneratedNameWhenOmitted(t *testing.T) {
	f := newFixture(t)

	site, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)
	assert.Equal(t, "site_42", site.Name)
	assert.InDelta(t, 0.5, site.Approximate.DistanceKm, 1e-12, "default distance applied")
}

func TestCreate_ShortNameRejectedWithoutPersisting(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), tenant, domain.Submission{Name: "abc", Lat: kampala.Lat, Lng: kampala.Lng})

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	assert.Zero(t, f.store.registers)
	assert.Empty(t, f.publisher.events)

	name, err := f.svc.names.NextName(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, "site_42", name, "counter untouched")
}

func TestCreate_InvalidCoordinate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: 95, Lng: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.store.registers)
}

func TestCreate_ElevationFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.elevation.err = &domain.UpstreamError{Source: "elevation", Err: errors.New("timeout")}

	site, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)
	assert.Nil(t, site.Altitude)
	assert.Equal(t, "Uganda", site.Country)
}

func TestCreate_GeocodeFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.geocoder.err = &domain.UpstreamError{Source: "geocoder", Err: errors.New("quota")}

	_, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Zero(t, f.store.registers)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EnrichmentFailures.WithLabelValues("aggregate")))
}

func TestCreate_CounterMissingAborts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "kcca", domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.ErrorIs(t, err, domain.ErrCounterMissing)
	assert.Zero(t, f.store.registers)
}

func TestCreate_PublishFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	site, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)

	stored, err := f.store.List(context.Background(), tenant, domain.SiteFilter{ID: site.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "site is kept")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsPublished.WithLabelValues("error")))
}

func TestCreate_DuplicateLocationConflicts(t *testing.T) {
	f := newFixture(t)
	sub := domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng}

	_, err := f.svc.Create(context.Background(), tenant, sub)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), tenant, sub)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "lat_long", conflict.Field)
}

func TestCreate_WithoutPublisher(t *testing.T) {
	f := newFixture(t)
	f.svc.publisher = nil

	_, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)
}

func TestCreate_KeepsCallerAirQloudsWhenTenantHasNone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.ProvisionCounter(context.Background(), "kcca", SiteCounterKey, 0))

	site, err := f.svc.Create(context.Background(), "kcca", domain.Submission{
		Lat: kampala.Lat, Lng: kampala.Lng, AirQlouds: []string{"aq-supplied"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aq-supplied"}, site.AirQlouds)
}

// --- Refresh ---

func TestRefresh_PreservesIdentityAndBearing(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), tenant, domain.Submission{
		Name: "Makerere Hill", Lat: kampala.Lat, Lng: kampala.Lng, ApproximateDistanceKm: 1.5, Bearing: bearing(1.2),
	})
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	f.geocoder.result.Address.City = "Kampala City"
	f.elevation.err = errors.New("elevation down")

	refreshed, err := f.svc.Refresh(context.Background(), tenant, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, refreshed.ID)
	assert.Equal(t, created.GeneratedName, refreshed.GeneratedName)
	assert.Equal(t, created.CreatedAt, refreshed.CreatedAt)
	assert.Equal(t, epoch.Add(48*time.Hour), refreshed.UpdatedAt)
	assert.Equal(t, created.Approximate, refreshed.Approximate, "bearing and distance reused")
	assert.Equal(t, "Kampala City", refreshed.City)
	require.NotNil(t, refreshed.Altitude, "previous altitude kept when elevation fails")
	assert.InDelta(t, 1189.5, *refreshed.Altitude, 1e-9)
	assert.Equal(t, 1, f.store.modifies)
	assert.Len(t, f.publisher.events, 1, "refresh does not publish")
}

func TestRefresh_StripsStationFields(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), tenant, created.ID)
	require.NoError(t, err)

	require.NotNil(t, refreshed.NearestStation)
	assert.Equal(t, domain.StationRef{
		ID:       7,
		Code:     "TA00007",
		Location: domain.Coordinate{Lat: 0.31, Lng: 32.58},
		Timezone: "Africa/Kampala",
	}, *refreshed.NearestStation)
}

func TestRefresh_RecoversMissingNames(t *testing.T) {
	f := newFixture(t)
	legacy := domain.Site{
		ID:       "legacy-1",
		Location: kampala,
		LatLong:  domain.LatLongKey(kampala),
		Address:  domain.Address{Parish: "Kyebando"},
	}
	_, err := f.store.Store.Register(context.Background(), tenant, legacy)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), tenant, "legacy-1")
	require.NoError(t, err)

	assert.Equal(t, "Kyebando", refreshed.Name)
	assert.Equal(t, "site_42", refreshed.GeneratedName)
	assert.InDelta(t, 0.5, refreshed.Approximate.DistanceKm, 1e-12)
	assert.Equal(t, []string{"aq-kampala"}, refreshed.AirQlouds)
}

func TestRefresh_KeepsPresentName(t *testing.T) {
	f := newFixture(t)
	legacy := domain.Site{
		ID:            "legacy-2",
		Name:          "Mak",
		GeneratedName: "site_3",
		Location:      kampala,
		LatLong:       domain.LatLongKey(kampala),
		Address:       domain.Address{Parish: "Kyebando"},
	}
	_, err := f.store.Store.Register(context.Background(), tenant, legacy)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(context.Background(), tenant, "legacy-2")
	require.NoError(t, err)

	assert.Equal(t, "Mak", refreshed.Name, "a stored name is only recomputed when absent")
	assert.Equal(t, "site_3", refreshed.GeneratedName)
}

func TestRefresh_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Refresh(context.Background(), tenant, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.store.modifies)
}

func TestRefresh_GeocodeFailureLeavesRecord(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)
	f.geocoder.err = &domain.UpstreamError{Source: "geocoder", NotFound: true}

	_, err = f.svc.Refresh(context.Background(), tenant, created.ID)
	require.ErrorIs(t, err, domain.ErrUpstreamNotFound)
	assert.Zero(t, f.store.modifies)
}

// --- queries ---

func TestFindAirqloudsFor(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)

	ids, err := f.svc.FindAirqloudsFor(context.Background(), tenant, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"aq-kampala"}, ids)

	_, err = f.svc.FindAirqloudsFor(context.Background(), tenant, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindNearestWeatherStation(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)

	st, err := f.svc.FindNearestWeatherStation(context.Background(), tenant, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, st.ID)
	assert.Equal(t, "Makerere", st.Name)
}

func TestFindNearbySites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	near := domain.Coordinate{Lat: 0.35, Lng: 32.58}
	far := domain.Coordinate{Lat: 0.45, Lng: 32.58}
	for _, c := range []domain.Coordinate{far, kampala, near} {
		_, err := f.svc.Create(ctx, tenant, domain.Submission{Lat: c.Lat, Lng: c.Lng})
		require.NoError(t, err)
	}

	got, err := f.svc.FindNearbySites(ctx, tenant, kampala, 5)
	require.NoError(t, err)

	require.Len(t, got, 2, "far site is ~11km away")
	assert.Equal(t, kampala, got[0].Location)
	assert.InDelta(t, 0, got[0].DistanceKm, 1e-9)
	assert.Equal(t, near, got[1].Location)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)
}

func TestFindNearbySites_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindNearbySites(context.Background(), tenant, kampala, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.FindNearbySites(context.Background(), tenant, domain.Coordinate{Lat: 0, Lng: 200}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStaleSites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.svc.Create(ctx, tenant, domain.Submission{Lat: kampala.Lat, Lng: kampala.Lng})
	require.NoError(t, err)
	f.clock.Advance(30 * time.Hour)
	_, err = f.svc.Create(ctx, tenant, domain.Submission{Lat: 0.4, Lng: 32.6})
	require.NoError(t, err)

	stale, err := f.svc.StaleSites(ctx, tenant, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestCheckReadiness(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.CheckReadiness(context.Background()))
}
