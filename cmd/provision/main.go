// Command provision prepares a tenant for site registration: it creates the
// tenant's site-name counter and optionally loads airqloud boundaries from a
// GeoJSON FeatureCollection. Backends are selected from the same environment
// variables as the registry service.
//
// Usage:
//
//	STORE_BACKEND=postgres DATABASE_URL=postgres://... \
//	  go run ./cmd/provision -tenant airqo -start 0 -airqlouds data/airqlouds.geojson
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/site-registry/internal/adapter/geojson"
	"github.com/couchcryptid/site-registry/internal/adapter/postgres"
	"github.com/couchcryptid/site-registry/internal/adapter/redis"
	"github.com/couchcryptid/site-registry/internal/config"
	"github.com/couchcryptid/site-registry/internal/registry"
)

func main() {
	tenant := flag.String("tenant", "", "tenant to provision")
	start := flag.Int64("start", 0, "initial counter value; the next generated name is site_<start+1>")
	airqlouds := flag.String("airqlouds", "", "optional GeoJSON FeatureCollection of airqloud polygons")
	flag.Parse()

	if *tenant == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*tenant, *start, *airqlouds); err != nil {
		log.Fatal(err)
	}
}

func run(tenant string, start int64, airqloudsPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreBackend != config.BackendPostgres && cfg.CounterBackend != config.BackendRedis {
		return errors.New("nothing to provision: the memory store is seeded at service startup")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pg *postgres.Store
	if cfg.StoreBackend == config.BackendPostgres {
		pg, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	if cfg.CounterBackend == config.BackendRedis {
		rc := redis.NewCounter(cfg.RedisAddr)
		defer rc.Close() //nolint:errcheck // process exit
		err = rc.ProvisionCounter(ctx, tenant, registry.SiteCounterKey, start)
	} else {
		err = pg.ProvisionCounter(ctx, tenant, registry.SiteCounterKey, start)
	}
	if err != nil {
		return err
	}
	log.Printf("provisioned %q counter for tenant %s (start %d)", registry.SiteCounterKey, tenant, start)

	if airqloudsPath == "" {
		return nil
	}
	if pg == nil {
		return errors.New("-airqlouds requires STORE_BACKEND=postgres")
	}

	f, err := os.Open(airqloudsPath)
	if err != nil {
		return fmt.Errorf("open airqlouds: %w", err)
	}
	defer f.Close()

	aqs, err := geojson.ReadAirQlouds(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", airqloudsPath, err)
	}
	for _, aq := range aqs {
		if err := pg.PutAirQloud(ctx, tenant, aq); err != nil {
			return fmt.Errorf("store airqloud %s: %w", aq.ID, err)
		}
	}
	log.Printf("loaded %d airqlouds for tenant %s", len(aqs), tenant)
	return nil
}
