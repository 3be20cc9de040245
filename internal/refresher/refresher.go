// Package refresher periodically re-enriches sites whose metadata has gone stale.
package refresher

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// SiteService is the subset of the registry the sweeper drives.
type SiteService interface {
	StaleSites(ctx context.Context, tenant string, olderThan time.Duration) ([]domain.Site, error)
	Refresh(ctx context.Context, tenant, id string) (domain.Site, error)
}

// Sweeper refreshes stale sites for a fixed set of tenants on an interval.
type Sweeper struct {
	svc        SiteService
	tenants    []string
	interval   time.Duration
	staleAfter time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Sweeper.
func New(svc SiteService, tenants []string, interval, staleAfter time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		svc:        svc,
		tenants:    tenants,
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
// Store errors back off exponentially instead of waiting a full interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("refresh sweeper started",
		"interval", s.interval.String(), "stale_after", s.staleAfter.String(), "tenants", s.tenants)
	s.metrics.SweepRunning.Set(1)
	defer s.metrics.SweepRunning.Set(0)

	backoff := initialBackoff
	for {
		wait := s.interval
		if err := s.sweep(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("refresh sweep failed", "error", err, "retry_in", backoff.String())
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}

		if !s.sleepWithContext(ctx, wait) {
			break
		}
	}
	s.logger.Info("refresh sweeper stopping", "reason", ctx.Err())
	return nil
}

// sweep refreshes every stale site of every tenant. A listing error aborts
// the sweep; a failed refresh of one site is logged and skipped.
func (s *Sweeper) sweep(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(s.clock.Since(start).Seconds())
	}()

	for _, tenant := range s.tenants {
		sites, err := s.svc.StaleSites(ctx, tenant, s.staleAfter)
		if err != nil {
			return err
		}
		refreshed := 0
		for _, site := range sites {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := s.svc.Refresh(ctx, tenant, site.ID); err != nil {
				s.logger.Warn("refresh failed, skipping site", "tenant", tenant, "site_id", site.ID, "error", err)
				continue
			}
			refreshed++
		}
		s.logger.Info("tenant sweep complete", "tenant", tenant, "stale", len(sites), "refreshed", refreshed)
	}
	return nil
}

func (s *Sweeper) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
