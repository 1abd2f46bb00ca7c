package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	ResolutionModules  prometheus.Histogram

	// Fetch metrics
	FetchesTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	// Sandbox metrics
	SharedInjected  prometheus.Counter
	SandboxesActive prometheus.Gauge
	PluginStarts    *prometheus.CounterVec
	PluginsLoaded   prometheus.Gauge

	gatherer prometheus.Gatherer
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current values for the JSON API
type MetricsSnapshot struct {
	Resolutions    int64 `json:"resolutions"`
	FailedRuns     int64 `json:"failed_runs"`
	Fetches        int64 `json:"fetches"`
	FailedFetches  int64 `json:"failed_fetches"`
	SharedInjected int64 `json:"shared_injected"`
	PluginsLoaded  int64 `json:"plugins_loaded"`
}

// NewMetrics creates a collector registered on reg.
// A nil reg uses the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginhost_http_requests_total",
				Help: "Total number of admin API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pluginhost_http_request_duration_seconds",
				Help:    "Admin API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginhost_resolutions_total",
				Help: "Dependency resolution runs by outcome",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pluginhost_resolution_duration_seconds",
				Help:    "Dependency resolution run duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ResolutionModules: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pluginhost_resolution_modules",
				Help:    "Distinct modules discovered per resolution run",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginhost_fetches_total",
				Help: "Source and config fetches by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pluginhost_fetch_duration_seconds",
				Help:    "Fetch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		SharedInjected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pluginhost_shared_dependencies_injected_total",
				Help: "Shared dependencies pre-registered into sandboxes",
			},
		),
		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pluginhost_sandboxes_active",
				Help: "Number of live sandboxes",
			},
		),
		PluginStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginhost_plugin_starts_total",
				Help: "Plugin start attempts by outcome",
			},
			[]string{"outcome"},
		),
		PluginsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pluginhost_plugins_loaded",
				Help: "Number of plugins whose initializer has run",
			},
		),
	}
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an admin API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordResolution records a finished resolution run
func (m *Metrics) RecordResolution(outcome string, duration time.Duration, modules int) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.Observe(duration.Seconds())
	if modules > 0 {
		m.ResolutionModules.Observe(float64(modules))
	}

	m.mu.Lock()
	m.snapshot.Resolutions++
	if outcome != "ok" {
		m.snapshot.FailedRuns++
	}
	m.mu.Unlock()
}

// RecordFetch records one fetch
func (m *Metrics) RecordFetch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Fetches++
	if outcome != "ok" {
		m.snapshot.FailedFetches++
	}
	m.mu.Unlock()
}

// AddSharedInjected counts shared bindings written into a sandbox
func (m *Metrics) AddSharedInjected(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SharedInjected.Add(float64(count))

	m.mu.Lock()
	m.snapshot.SharedInjected += int64(count)
	m.mu.Unlock()
}

// SetSandboxesActive sets the number of live sandboxes
func (m *Metrics) SetSandboxesActive(count int) {
	if m == nil {
		return
	}
	m.SandboxesActive.Set(float64(count))
}

// RecordPluginStart records a plugin start attempt
func (m *Metrics) RecordPluginStart(outcome string) {
	if m == nil {
		return
	}
	m.PluginStarts.WithLabelValues(outcome).Inc()
}

// SetPluginsLoaded sets the number of loaded plugins
func (m *Metrics) SetPluginsLoaded(count int) {
	if m == nil {
		return
	}
	m.PluginsLoaded.Set(float64(count))

	m.mu.Lock()
	m.snapshot.PluginsLoaded = int64(count)
	m.mu.Unlock()
}

// Snapshot returns the current counters for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
