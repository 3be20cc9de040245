package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "site_registry"

// Metrics holds the Prometheus counters, histograms, and gauges for the site registry.
type Metrics struct {
	SitesCreated       prometheus.Counter
	SitesRefreshed     prometheus.Counter
	NamesGenerated     prometheus.Counter
	EnrichmentFailures *prometheus.CounterVec // labels: stage={validate,obfuscate,name,aggregate,persist,load}

	// Enrichment source metrics.
	AdapterRequests *prometheus.CounterVec   // labels: adapter={reverse_geocode,elevation,nearest_station,airqlouds}, outcome={success,error,empty,timeout}
	AdapterDuration *prometheus.HistogramVec // labels: adapter
	CacheLookups    *prometheus.CounterVec   // labels: cache={geocode,elevation,stations}, result={hit,miss}

	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}

	// Refresh sweeper metrics.
	SweepRunning  prometheus.Gauge
	SweepDuration prometheus.Histogram
}

// NewMetrics creates and registers all registry metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SitesCreated,
		m.SitesRefreshed,
		m.NamesGenerated,
		m.EnrichmentFailures,
		m.AdapterRequests,
		m.AdapterDuration,
		m.CacheLookups,
		m.EventsPublished,
		m.SweepRunning,
		m.SweepDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SitesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sites_created_total",
			Help:      "Total sites registered.",
		}),
		SitesRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sites_refreshed_total",
			Help:      "Total sites whose enrichment was recomputed.",
		}),
		NamesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "names_generated_total",
			Help:      "Total sequential site names handed out.",
		}),
		EnrichmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Create/refresh requests aborted, by pipeline stage.",
		}, []string{"stage"}),
		AdapterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_requests_total",
			Help:      "Enrichment source calls by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Enrichment source call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"adapter"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Enrichment cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Site events sent to the event bus by outcome.",
		}, []string{"outcome"}),
		SweepRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_sweep_running",
			Help:      "1 while the periodic refresh sweeper is active, 0 otherwise.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_sweep_duration_seconds",
			Help:      "Duration of one refresh sweep across all configured tenants.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}
