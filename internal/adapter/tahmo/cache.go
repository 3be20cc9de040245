package tahmo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// CachedDirectory keeps the last successful station list for ttl. When a
// refresh fails and an earlier list exists, the stale list is served.
// Concurrent misses share one upstream fetch.
type CachedDirectory struct {
	inner   domain.StationDirectory
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group

	mu        sync.Mutex
	stations  []domain.WeatherStation
	fetchedAt time.Time
}

// NewCachedDirectory wraps a station directory with a TTL cache.
func NewCachedDirectory(inner domain.StationDirectory, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{
		inner:   inner,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

func (d *CachedDirectory) Stations(ctx context.Context) ([]domain.WeatherStation, error) {
	if stations, ok := d.fresh(); ok {
		d.metrics.CacheLookups.WithLabelValues("stations", "hit").Inc()
		return stations, nil
	}
	d.metrics.CacheLookups.WithLabelValues("stations", "miss").Inc()

	// The shared fetch outlives any single caller; the client's own timeout
	// bounds it.
	ch := d.group.DoChan("stations", func() (any, error) {
		return d.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.WeatherStation), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *CachedDirectory) fresh() ([]domain.WeatherStation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stations != nil && d.clock.Since(d.fetchedAt) < d.ttl {
		return d.stations, true
	}
	return nil, false
}

func (d *CachedDirectory) refresh(ctx context.Context) ([]domain.WeatherStation, error) {
	// A flight that finished between our miss and this one already refilled
	// the cache.
	if stations, ok := d.fresh(); ok {
		return stations, nil
	}
	stations, err := d.inner.Stations(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.stations != nil {
			d.logger.Warn("station refresh failed, serving stale list",
				"age", d.clock.Since(d.fetchedAt).String(), "error", err)
			return d.stations, nil
		}
		return nil, err
	}
	d.stations = stations
	d.fetchedAt = d.clock.Now()
	return stations, nil
}
