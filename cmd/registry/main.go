package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/site-registry/internal/adapter/geojson"
	"github.com/couchcryptid/site-registry/internal/adapter/google"
	httpadapter "github.com/couchcryptid/site-registry/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/site-registry/internal/adapter/kafka"
	"github.com/couchcryptid/site-registry/internal/adapter/memory"
	"github.com/couchcryptid/site-registry/internal/adapter/postgres"
	"github.com/couchcryptid/site-registry/internal/adapter/redis"
	"github.com/couchcryptid/site-registry/internal/adapter/tahmo"
	"github.com/couchcryptid/site-registry/internal/config"
	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/couchcryptid/site-registry/internal/enrich"
	"github.com/couchcryptid/site-registry/internal/observability"
	"github.com/couchcryptid/site-registry/internal/refresher"
	"github.com/couchcryptid/site-registry/internal/registry"
)

const serviceName = "site-registry"

// tenantStore is what the registry needs from a site backend.
type tenantStore interface {
	domain.TenantStore
	domain.AirQloudSource
	ProvisionCounter(ctx context.Context, tenant, key string, start int64) error
	PutAirQloud(ctx context.Context, tenant string, aq domain.AirQloud) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingEnabled, serviceName)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	// Site store (STORE_BACKEND).
	var store tenantStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("postgres site store enabled")
	default:
		store = memory.NewStore()
		logger.Info("in-memory site store enabled")
	}

	// Counter store (COUNTER_BACKEND).
	var counters domain.CounterStore = store
	var provisioner interface {
		ProvisionCounter(ctx context.Context, tenant, key string, start int64) error
	} = store
	if cfg.CounterBackend == config.BackendRedis {
		rc := redis.NewCounter(cfg.RedisAddr)
		defer rc.Close() //nolint:errcheck // best-effort on exit
		counters, provisioner = rc, rc
		logger.Info("redis counter store enabled", "addr", cfg.RedisAddr)
	}

	// The in-memory store starts empty, so seed the configured tenants' name
	// counters. Persistent backends are provisioned with cmd/provision.
	if cfg.StoreBackend == config.BackendMemory {
		for _, tenant := range cfg.RefreshTenants {
			if err := provisioner.ProvisionCounter(ctx, tenant, registry.SiteCounterKey, 0); err != nil {
				logger.Error("failed to seed counter", "tenant", tenant, "error", err)
				os.Exit(1)
			}
		}
		if cfg.AirQloudsFile != "" {
			if err := loadAirQlouds(ctx, store, cfg.AirQloudsFile, cfg.RefreshTenants); err != nil {
				logger.Error("failed to load airqlouds", "file", cfg.AirQloudsFile, "error", err)
				os.Exit(1)
			}
			logger.Info("airqlouds loaded", "file", cfg.AirQloudsFile, "tenants", cfg.RefreshTenants)
		}
	}

	src := enrich.Sources{AirQlouds: store}

	// Google Maps geocoding and elevation (feature-flagged via GOOGLE_MAPS_ENABLED).
	if cfg.GoogleMapsEnabled {
		client, err := google.NewClient(cfg.GoogleMapsAPIKey, cfg.AdapterTimeout, logger)
		if err != nil {
			logger.Error("failed to create google maps client", "error", err)
			os.Exit(1)
		}
		geocoder, err := google.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocode cache", "error", err)
			os.Exit(1)
		}
		elevation, err := google.NewCachedElevation(client, cfg.GeocodeCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create elevation cache", "error", err)
			os.Exit(1)
		}
		src.Geocoder, src.Elevation = geocoder, elevation
		logger.Info("google maps enrichment enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.AdapterTimeout)
	} else {
		logger.Warn("google maps enrichment disabled; site creation will fail")
	}

	// TAHMO weather-station directory (feature-flagged via TAHMO_ENABLED).
	if cfg.TahmoEnabled {
		client := tahmo.NewClient(cfg.TahmoStationsURL, cfg.TahmoUsername, cfg.TahmoPassword, cfg.AdapterTimeout, logger)
		src.Stations = tahmo.NewCachedDirectory(client, cfg.TahmoCacheTTL, clock, metrics, logger)
		logger.Info("tahmo station lookup enabled", "cache_ttl", cfg.TahmoCacheTTL)
	} else {
		logger.Info("tahmo station lookup disabled")
	}

	aggregator := enrich.NewAggregator(src, cfg.AdapterTimeout, metrics, logger)

	var publisher domain.EventPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.EventsEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("site events enabled", "topic", cfg.KafkaSitesTopic)
	}

	svc := registry.NewService(
		store,
		registry.NewNameGenerator(counters, metrics),
		aggregator,
		publisher,
		registry.Settings{
			DefaultDistanceKm: cfg.ApproximateDistanceKm,
			ProximityOnCreate: cfg.EnrichProximityOnCreate,
		},
		metrics,
		logger,
		registry.WithClock(clock),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh sweeper (disabled when REFRESH_INTERVAL is zero).
	if cfg.RefreshInterval > 0 {
		sweeper := refresher.New(svc, cfg.RefreshTenants, cfg.RefreshInterval, cfg.RefreshStaleAfter, clock, logger, metrics)
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				logger.Error("refresh sweeper error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// loadAirQlouds reads a GeoJSON FeatureCollection and stores every polygon
// for each tenant.
func loadAirQlouds(ctx context.Context, store tenantStore, path string, tenants []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	aqs, err := geojson.ReadAirQlouds(f)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		for _, aq := range aqs {
			if err := store.PutAirQloud(ctx, tenant, aq); err != nil {
				return fmt.Errorf("store airqloud %s for %s: %w", aq.ID, tenant, err)
			}
		}
	}
	return nil
}
