package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Sync metrics
	SyncRunsTotal      *prometheus.CounterVec
	SyncDuration       *prometheus.HistogramVec
	SyncsInProgress    prometheus.Gauge
	SnapshotsUpserted  *prometheus.CounterVec
	LeadsProcessed     *prometheus.CounterVec
	AttributionDropped *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec
	ExternalAPIRetries  *prometheus.CounterVec

	// Creative cache
	CreativeCacheLookups *prometheus.CounterVec

	// Reports
	ReportsGenerated *prometheus.CounterVec
	ReportDuration   prometheus.Histogram
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Total number of sync runs",
			},
			[]string{"job", "status"},
		),

		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_duration_seconds",
				Help:    "Sync duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),

		SyncsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "syncs_in_progress",
				Help: "Number of syncs currently in progress",
			},
		),

		SnapshotsUpserted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weekly_snapshots_upserted_total",
				Help: "Total number of weekly snapshots written",
			},
			[]string{"tenant_id"},
		),

		LeadsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_leads_processed_total",
				Help: "Total number of CRM contacts processed by lead sync",
			},
			[]string{"outcome"},
		),

		AttributionDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_attribution_dropped_total",
				Help: "Leads excluded from reports because their ad could not be resolved",
			},
			[]string{"tenant_id"},
		),

		ExternalAPICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),

		ExternalAPIRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_retries_total",
				Help: "Total number of retried external API calls",
			},
			[]string{"api"},
		),

		CreativeCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creative_cache_lookups_total",
				Help: "Creative cache lookups by result",
			},
			[]string{"result"},
		),

		ReportsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_generated_total",
				Help: "Total number of performance reports generated",
			},
			[]string{"group_by", "status"},
		),

		ReportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "report_duration_seconds",
				Help:    "Report generation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Sync run metrics
func (m *Metrics) RecordSync(job, status string, duration time.Duration) {
	m.SyncRunsTotal.WithLabelValues(job, status).Inc()
	m.SyncDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *Metrics) RecordSnapshotsUpserted(tenantID string, count int) {
	m.SnapshotsUpserted.WithLabelValues(tenantID).Add(float64(count))
}

func (m *Metrics) RecordLead(outcome string) {
	m.LeadsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordAttributionDropped(tenantID string, count int) {
	m.AttributionDropped.WithLabelValues(tenantID).Add(float64(count))
}

// External API call metrics
func (m *Metrics) RecordExternalAPICall(api, status string, duration time.Duration) {
	m.ExternalAPICalls.WithLabelValues(api, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// External API failure metrics
func (m *Metrics) RecordExternalAPIFailure(api, errorType string) {
	m.ExternalAPIFailures.WithLabelValues(api, errorType).Inc()
}

func (m *Metrics) RecordExternalAPIRetry(api string) {
	m.ExternalAPIRetries.WithLabelValues(api).Inc()
}

// hit, miss, refresh, stale_fallback, unavailable
func (m *Metrics) RecordCreativeLookup(result string) {
	m.CreativeCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReport(groupBy, status string, duration time.Duration) {
	m.ReportsGenerated.WithLabelValues(groupBy, status).Inc()
	m.ReportDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncSyncsInProgress() {
	m.SyncsInProgress.Inc()
}

func (m *Metrics) DecSyncsInProgress() {
	m.SyncsInProgress.Dec()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTP requests in flight counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
