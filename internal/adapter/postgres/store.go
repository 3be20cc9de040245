// Package postgres persists sites, name counters, and airqlouds in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/site-registry/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	tenant         TEXT        NOT NULL,
	id             TEXT        NOT NULL,
	generated_name TEXT        NOT NULL,
	lat_long       TEXT        NOT NULL,
	doc            JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT sites_pkey PRIMARY KEY (tenant, id),
	CONSTRAINT sites_generated_name_key UNIQUE (tenant, generated_name),
	CONSTRAINT sites_lat_long_key UNIQUE (tenant, lat_long)
);

CREATE TABLE IF NOT EXISTS unique_identifier_counters (
	tenant TEXT   NOT NULL,
	name   TEXT   NOT NULL,
	count  BIGINT NOT NULL,
	PRIMARY KEY (tenant, name)
);

CREATE TABLE IF NOT EXISTS airqlouds (
	tenant   TEXT  NOT NULL,
	id       TEXT  NOT NULL,
	name     TEXT  NOT NULL DEFAULT '',
	boundary JSONB NOT NULL,
	PRIMARY KEY (tenant, id)
);
`

// constraintFields maps unique constraints to the site field they guard.
var constraintFields = map[string]string{
	"sites_pkey":               "id",
	"sites_generated_name_key": "generated_name",
	"sites_lat_long_key":       "lat_long",
}

// Store implements domain.TenantStore and domain.AirQloudSource on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) List(ctx context.Context, tenant string, filter domain.SiteFilter) ([]domain.Site, error) {
	where, args := siteWhere(tenant, filter)
	rows, err := s.pool.Query(ctx, "SELECT doc FROM sites "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Site, error) {
		var doc []byte
		if err := row.Scan(&doc); err != nil {
			return domain.Site{}, err
		}
		var site domain.Site
		if err := json.Unmarshal(doc, &site); err != nil {
			return domain.Site{}, fmt.Errorf("decode site: %w", err)
		}
		return site, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

func (s *Store) Register(ctx context.Context, tenant string, site domain.Site) (domain.Site, error) {
	doc, err := json.Marshal(site)
	if err != nil {
		return domain.Site{}, fmt.Errorf("encode site: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sites (tenant, id, generated_name, lat_long, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenant, site.ID, site.GeneratedName, site.LatLong, doc, site.CreatedAt, site.UpdatedAt)
	if err != nil {
		return domain.Site{}, mapWriteError(err, site)
	}
	return site, nil
}

func (s *Store) Modify(ctx context.Context, tenant string, filter domain.SiteFilter, update domain.Site) (domain.Site, error) {
	doc, err := json.Marshal(update)
	if err != nil {
		return domain.Site{}, fmt.Errorf("encode site: %w", err)
	}
	where, args := siteWhere(tenant, filter)
	n := len(args)
	args = append(args, update.GeneratedName, update.LatLong, doc, update.UpdatedAt)
	sql := fmt.Sprintf(
		`UPDATE sites SET generated_name = $%d, lat_long = $%d, doc = $%d, updated_at = $%d %s`,
		n+1, n+2, n+3, n+4, where)

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return domain.Site{}, mapWriteError(err, update)
	}
	if tag.RowsAffected() == 0 {
		return domain.Site{}, domain.ErrNotFound
	}
	return update, nil
}

// ProvisionCounter creates the named counter at start unless it already exists.
func (s *Store) ProvisionCounter(ctx context.Context, tenant, key string, start int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO unique_identifier_counters (tenant, name, count) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant, name) DO NOTHING`,
		tenant, key, start)
	if err != nil {
		return fmt.Errorf("provision counter: %w", err)
	}
	return nil
}

// IncrementCounter adds one to the counter in a single atomic statement.
func (s *Store) IncrementCounter(ctx context.Context, tenant, key string) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx,
		`UPDATE unique_identifier_counters SET count = count + 1
		 WHERE tenant = $1 AND name = $2 RETURNING count`,
		tenant, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrCounterMissing
	}
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return v, nil
}

// PutAirQloud inserts or replaces an airqloud by id.
func (s *Store) PutAirQloud(ctx context.Context, tenant string, aq domain.AirQloud) error {
	boundary, err := json.Marshal(aq.Boundary)
	if err != nil {
		return fmt.Errorf("encode boundary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO airqlouds (tenant, id, name, boundary) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant, id) DO UPDATE SET name = EXCLUDED.name, boundary = EXCLUDED.boundary`,
		tenant, aq.ID, aq.Name, boundary)
	if err != nil {
		return fmt.Errorf("put airqloud: %w", err)
	}
	return nil
}

func (s *Store) AirQlouds(ctx context.Context, tenant string) ([]domain.AirQloud, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, boundary FROM airqlouds WHERE tenant = $1 ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("list airqlouds: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AirQloud, error) {
		var (
			aq  domain.AirQloud
			raw []byte
		)
		if err := row.Scan(&aq.ID, &aq.Name, &raw); err != nil {
			return aq, err
		}
		if err := json.Unmarshal(raw, &aq.Boundary); err != nil {
			return aq, fmt.Errorf("decode boundary of %s: %w", aq.ID, err)
		}
		return aq, nil
	})
}

// siteWhere builds the WHERE clause for a tenant-scoped filter. The tenant is
// always $1.
func siteWhere(tenant string, f domain.SiteFilter) (string, []any) {
	clauses := []string{"tenant = $1"}
	args := []any{tenant}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}
	add("id", f.ID)
	add("generated_name", f.GeneratedName)
	add("lat_long", f.LatLong)
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func mapWriteError(err error, site domain.Site) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field := constraintFields[pgErr.ConstraintName]
		switch field {
		case "generated_name":
			return &domain.ConflictError{Field: field, Value: site.GeneratedName}
		case "lat_long":
			return &domain.ConflictError{Field: field, Value: site.LatLong}
		default:
			return &domain.ConflictError{Field: "id", Value: site.ID}
		}
	}
	return fmt.Errorf("write site: %w", err)
}
