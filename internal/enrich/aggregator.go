// Package enrich fans a coordinate out to the enrichment sources and merges
// their answers into site metadata.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/geo"
	"github.com/couchcryptid/site-registry/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Lookup names, used as metric labels and span name suffixes.
const (
	opReverseGeocode = "reverse_geocode"
	opElevation      = "elevation"
	opNearestStation = "nearest_station"
	opAirQlouds      = "airqlouds"
)

var (
	errNotConfigured = errors.New("source not configured")
	// errNoBoundaries means the tenant has no airqlouds loaded, so membership
	// cannot be decided and caller-supplied ids are left alone.
	errNoBoundaries = errors.New("no airqloud boundaries loaded")
)

// Sources are the enrichment backends. Only Geocoder is required for
// Aggregate to succeed; a nil optional source leaves its field absent.
type Sources struct {
	Geocoder  domain.Geocoder
	Elevation domain.ElevationSource
	Stations  domain.StationDirectory
	AirQlouds domain.AirQloudSource
}

// Aggregator runs the enrichment lookups concurrently, each bounded by its
// own timeout.
type Aggregator struct {
	src     Sources
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewAggregator creates an aggregator. timeout applies to each lookup
// separately.
func NewAggregator(src Sources, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		src:     src,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer(observability.TracerName),
	}
}

// Request describes one aggregation.
type Request struct {
	Tenant       string
	Location     domain.Coordinate
	ExistingTags []string
	// Proximity enables the weather-station and airqloud lookups.
	Proximity bool
}

// Result is the merged metadata and the status of the geocode lookup.
type Result struct {
	Metadata domain.Metadata
	Status   int
}

// Aggregate issues all lookups concurrently and waits for every one to settle.
// Only a reverse-geocode failure is returned as an error; the other lookups
// degrade to absent fields. If ctx ends first, all results are discarded.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (Result, error) {
	var (
		g      errgroup.Group
		p      partial
		geoErr error
	)

	g.Go(func() error {
		p.address, geoErr = observe(ctx, a, opReverseGeocode, func(ctx context.Context) (domain.AddressResult, error) {
			if a.src.Geocoder == nil {
				return domain.AddressResult{}, &domain.UpstreamError{Source: "geocoder", Err: errNotConfigured}
			}
			return a.src.Geocoder.ReverseGeocode(ctx, req.Location)
		})
		return nil
	})

	if a.src.Elevation != nil {
		g.Go(func() error {
			v, err := observe(ctx, a, opElevation, func(ctx context.Context) (float64, error) {
				return a.src.Elevation.Elevation(ctx, req.Location)
			})
			if err != nil {
				a.degraded(req, opElevation, err)
				return nil
			}
			p.altitude = &v
			return nil
		})
	}

	if req.Proximity && a.src.Stations != nil {
		g.Go(func() error {
			st, err := observe(ctx, a, opNearestStation, func(ctx context.Context) (domain.WeatherStation, error) {
				return a.nearestStation(ctx, req.Location)
			})
			if err != nil {
				a.degraded(req, opNearestStation, err)
				return nil
			}
			ref := st.Ref()
			p.station = &ref
			return nil
		})
	}

	if req.Proximity && a.src.AirQlouds != nil {
		g.Go(func() error {
			ids, err := observe(ctx, a, opAirQlouds, func(ctx context.Context) ([]string, error) {
				return a.airQloudsFor(ctx, req.Tenant, req.Location)
			})
			if errors.Is(err, errNoBoundaries) {
				return nil
			}
			if err != nil {
				a.degraded(req, opAirQlouds, err)
				return nil
			}
			p.airqlouds, p.airqloudsResolved = ids, true
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{Status: domain.StatusOf(err)}, fmt.Errorf("aggregate metadata: %w", err)
	}
	if geoErr != nil {
		a.logger.Warn("reverse geocode failed",
			"tenant", req.Tenant, "lat", req.Location.Lat, "lng", req.Location.Lng, "error", geoErr)
		return Result{Status: domain.StatusOf(geoErr)}, geoErr
	}
	return Result{Metadata: merge(p, req.ExistingTags), Status: http.StatusOK}, nil
}

// NearestStation returns the directory station closest to c.
func (a *Aggregator) NearestStation(ctx context.Context, c domain.Coordinate) (domain.WeatherStation, error) {
	return observe(ctx, a, opNearestStation, func(ctx context.Context) (domain.WeatherStation, error) {
		return a.nearestStation(ctx, c)
	})
}

// AirQloudsFor returns the ids of the tenant's airqlouds containing c.
func (a *Aggregator) AirQloudsFor(ctx context.Context, tenant string, c domain.Coordinate) ([]string, error) {
	ids, err := observe(ctx, a, opAirQlouds, func(ctx context.Context) ([]string, error) {
		return a.airQloudsFor(ctx, tenant, c)
	})
	if errors.Is(err, errNoBoundaries) {
		return []string{}, nil
	}
	return ids, err
}

func (a *Aggregator) nearestStation(ctx context.Context, c domain.Coordinate) (domain.WeatherStation, error) {
	if a.src.Stations == nil {
		return domain.WeatherStation{}, &domain.UpstreamError{Source: "weather stations", Err: errNotConfigured}
	}
	stations, err := a.src.Stations.Stations(ctx)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	st, _, _, err := geo.NearestOf(c, stations, func(s domain.WeatherStation) domain.Coordinate { return s.Location })
	if err != nil {
		return domain.WeatherStation{}, &domain.UpstreamError{Source: "weather stations", NotFound: true, Err: err}
	}
	return st, nil
}

func (a *Aggregator) airQloudsFor(ctx context.Context, tenant string, c domain.Coordinate) ([]string, error) {
	if a.src.AirQlouds == nil {
		return nil, &domain.UpstreamError{Source: "airqlouds", Err: errNotConfigured}
	}
	all, err := a.src.AirQlouds.AirQlouds(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, &domain.UpstreamError{Source: "airqlouds", NotFound: true, Err: errNoBoundaries}
	}
	return geo.ContainingAirQlouds(c, all), nil
}

func (a *Aggregator) degraded(req Request, op string, err error) {
	a.logger.Warn("enrichment source degraded, omitting field",
		"source", op, "tenant", req.Tenant, "lat", req.Location.Lat, "lng", req.Location.Lng, "error", err)
}

// observe runs fn under a per-lookup timeout, span, and metrics. A lookup
// that ignores its context is abandoned at the deadline, its late result
// dropped, and the timeout reported as an *domain.UpstreamError.
func observe[T any](ctx context.Context, a *Aggregator, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := a.tracer.Start(ctx, "enrich."+op)
	defer span.End()

	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := fn(lookupCtx)
		done <- outcome{v, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-lookupCtx.Done():
		out.err = lookupCtx.Err()
		if ctx.Err() == nil {
			// Our own deadline fired, so the source is the one that failed.
			out.err = &domain.UpstreamError{Source: op, Err: out.err}
		}
	}

	a.metrics.AdapterDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	label := outcomeLabel(out.err)
	a.metrics.AdapterRequests.WithLabelValues(op, label).Inc()
	span.SetAttributes(attribute.String("enrich.outcome", label))
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		var zero T
		return zero, out.err
	}
	return out.v, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamNotFound):
		return "empty"
	default:
		return "error"
	}
}

// partial collects per-source results before merging.
type partial struct {
	address           domain.AddressResult
	altitude          *float64
	station           *domain.StationRef
	airqlouds         []string
	airqloudsResolved bool
}

// merge builds metadata with fixed precedence: the address comes only from
// the geocoder, tags are geocoder tags followed by caller tags without
// duplicates, and each optional field is set only if its source succeeded.
func merge(p partial, existingTags []string) domain.Metadata {
	tags := make([]string, 0, len(p.address.Tags)+len(existingTags))
	for _, t := range slices.Concat(p.address.Tags, existingTags) {
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	return domain.Metadata{
		Address:           p.address.Address,
		Tags:              tags,
		Altitude:          p.altitude,
		NearestStation:    p.station,
		AirQlouds:         p.airqlouds,
		AirQloudsResolved: p.airqloudsResolved,
	}
}
