package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	// BackendStore keeps counters in the same store as sites.
	BackendStore = "store"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Persistence.
	StoreBackend   string
	DatabaseURL    string
	CounterBackend string
	RedisAddr      string

	// Google Maps geocoding and elevation.
	GoogleMapsAPIKey  string
	GoogleMapsEnabled bool
	GeocodeCacheSize  int
	AdapterTimeout    time.Duration

	// TAHMO weather-station directory.
	TahmoStationsURL string
	TahmoUsername    string
	TahmoPassword    string
	TahmoEnabled     bool
	TahmoCacheTTL    time.Duration

	// Event bus.
	KafkaBrokers    []string
	KafkaSitesTopic string
	EventsEnabled   bool

	// Enrichment behaviour.
	ApproximateDistanceKm   float64
	EnrichProximityOnCreate bool
	// AirQloudsFile is an optional GeoJSON FeatureCollection loaded into the
	// memory store at startup for every tenant in RefreshTenants.
	AirQloudsFile string

	// Periodic refresh sweeper; zero interval disables it.
	RefreshInterval   time.Duration
	RefreshTenants    []string
	RefreshStaleAfter time.Duration

	TracingEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	adapterTimeout, err := parsePositiveDuration("ADAPTER_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}
	tahmoTTL, err := parsePositiveDuration("TAHMO_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	staleAfter, err := parsePositiveDuration("REFRESH_STALE_AFTER", "24h")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_INTERVAL", "0s"))
	if err != nil || refreshInterval < 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}

	distance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("APPROXIMATE_DISTANCE_KM", "0.5"), 64)
	if err != nil || !(distance > 0) {
		return nil, errors.New("invalid APPROXIMATE_DISTANCE_KM: must be a positive number")
	}

	cacheSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("GEOCODE_CACHE_SIZE", "1000"))
	if err != nil || cacheSize <= 0 {
		return nil, errors.New("invalid GEOCODE_CACHE_SIZE: must be a positive integer")
	}

	googleKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	tahmoUser := os.Getenv("TAHMO_USERNAME")

	flags := map[string]bool{
		"GOOGLE_MAPS_ENABLED":        googleKey != "",
		"TAHMO_ENABLED":              tahmoUser != "",
		"EVENTS_ENABLED":             true,
		"ENRICH_PROXIMITY_ON_CREATE": true,
		"TRACING_ENABLED":            false,
	}
	for key, def := range flags {
		if flags[key], err = envBool(key, def); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend:   strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendMemory)),
		DatabaseURL:    sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://localhost:5432/site_registry?sslmode=disable"),
		CounterBackend: strings.ToLower(sharedcfg.EnvOrDefault("COUNTER_BACKEND", BackendStore)),
		RedisAddr:      sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),

		GoogleMapsAPIKey:  googleKey,
		GoogleMapsEnabled: flags["GOOGLE_MAPS_ENABLED"],
		GeocodeCacheSize:  cacheSize,
		AdapterTimeout:    adapterTimeout,

		TahmoStationsURL: sharedcfg.EnvOrDefault("TAHMO_STATIONS_URL", "https://datahub.tahmo.org/services/assets/v2/stations"),
		TahmoUsername:    tahmoUser,
		TahmoPassword:    os.Getenv("TAHMO_PASSWORD"),
		TahmoEnabled:     flags["TAHMO_ENABLED"],
		TahmoCacheTTL:    tahmoTTL,

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSitesTopic: sharedcfg.EnvOrDefault("KAFKA_SITES_TOPIC", "sites-topic"),
		EventsEnabled:   flags["EVENTS_ENABLED"],

		ApproximateDistanceKm:   distance,
		EnrichProximityOnCreate: flags["ENRICH_PROXIMITY_ON_CREATE"],
		AirQloudsFile:           os.Getenv("AIRQLOUDS_FILE"),

		RefreshInterval:   refreshInterval,
		RefreshTenants:    parseList(sharedcfg.EnvOrDefault("REFRESH_TENANTS", "airqo")),
		RefreshStaleAfter: staleAfter,

		TracingEnabled: flags["TRACING_ENABLED"],
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want memory or postgres", c.StoreBackend)
	}
	switch c.CounterBackend {
	case BackendStore, BackendRedis:
	default:
		return fmt.Errorf("invalid COUNTER_BACKEND %q: want store or redis", c.CounterBackend)
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when STORE_BACKEND is postgres")
	}
	if c.GoogleMapsEnabled && c.GoogleMapsAPIKey == "" {
		return errors.New("GOOGLE_MAPS_ENABLED is true but GOOGLE_MAPS_API_KEY is not set")
	}
	if c.TahmoEnabled && (c.TahmoUsername == "" || c.TahmoPassword == "") {
		return errors.New("TAHMO_ENABLED is true but TAHMO_USERNAME or TAHMO_PASSWORD is not set")
	}
	if c.EventsEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is true")
		}
		if c.KafkaSitesTopic == "" {
			return errors.New("KAFKA_SITES_TOPIC is required when EVENTS_ENABLED is true")
		}
	}
	if c.RefreshInterval > 0 && len(c.RefreshTenants) == 0 {
		return errors.New("REFRESH_TENANTS is required when REFRESH_INTERVAL is set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: want true or false", key, v)
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
