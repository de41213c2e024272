package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// AppMetrics bundles every application-level metric the platform emits.
// It is constructed once at startup and injected into the HTTP layer, the
// valuation service, and the background worker.
type AppMetrics struct {
	collector MetricsCollector

	// HTTP
	HTTPRequestsTotal   CounterVec   // labels: method, path, status
	HTTPRequestDuration HistogramVec // labels: method, path
	HTTPInFlight        GaugeVec     // labels: method

	// Valuation pipeline
	ValuationsTotal   CounterVec   // labels: outcome ("market" | "fallback" | "error")
	ValuationDuration HistogramVec // labels: stage
	ListingsAccepted  CounterVec   // labels: source
	ListingsRejected  CounterVec   // labels: source, reason
	OutliersRemoved   CounterVec   // no labels
	ConfidenceScore   HistogramVec // no labels
	AdjustmentImpact  HistogramVec // labels: rule

	// Cache
	CacheHits   CounterVec // labels: cache
	CacheMisses CounterVec // labels: cache

	// Messaging
	EventsPublished CounterVec // labels: topic
	EventsConsumed  CounterVec // labels: topic, result
	DeadLetters     CounterVec // labels: topic

	// Reports
	ReportsRendered CounterVec // labels: format
	ArtifactsStored CounterVec // labels: bucket
}

// NewAppMetrics registers the full application metric set against collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{collector: collector}

	m.HTTPRequestsTotal = collector.RegisterCounter(
		"http_requests_total", "Total HTTP requests processed.", "method", "path", "status")
	m.HTTPRequestDuration = collector.RegisterHistogram(
		"http_request_duration_seconds", "HTTP request latency.", nil, "method", "path")
	m.HTTPInFlight = collector.RegisterGauge(
		"http_requests_in_flight", "HTTP requests currently being served.", "method")

	m.ValuationsTotal = collector.RegisterCounter(
		"valuations_total", "Valuations computed, by outcome.", "outcome")
	m.ValuationDuration = collector.RegisterHistogram(
		"valuation_stage_duration_seconds", "Per-stage valuation pipeline latency.", nil, "stage")
	m.ListingsAccepted = collector.RegisterCounter(
		"listings_accepted_total", "Listings that survived normalization.", "source")
	m.ListingsRejected = collector.RegisterCounter(
		"listings_rejected_total", "Listings dropped during normalization.", "source", "reason")
	m.OutliersRemoved = collector.RegisterCounter(
		"outliers_removed_total", "Listings discarded by outlier filtering.")
	m.ConfidenceScore = collector.RegisterHistogram(
		"valuation_confidence", "Confidence score distribution.",
		[]float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100})
	m.AdjustmentImpact = collector.RegisterHistogram(
		"adjustment_impact_dollars", "Per-rule adjustment impact in dollars.",
		[]float64{-10000, -5000, -2000, -1000, -500, 0, 500, 1000, 2000, 5000, 10000}, "rule")

	m.CacheHits = collector.RegisterCounter(
		"cache_hits_total", "Cache hits.", "cache")
	m.CacheMisses = collector.RegisterCounter(
		"cache_misses_total", "Cache misses.", "cache")

	m.EventsPublished = collector.RegisterCounter(
		"events_published_total", "Kafka events published.", "topic")
	m.EventsConsumed = collector.RegisterCounter(
		"events_consumed_total", "Kafka events consumed.", "topic", "result")
	m.DeadLetters = collector.RegisterCounter(
		"dead_letters_total", "Events routed to the dead-letter topic.", "topic")

	m.ReportsRendered = collector.RegisterCounter(
		"reports_rendered_total", "Valuation reports rendered.", "format")
	m.ArtifactsStored = collector.RegisterCounter(
		"artifacts_stored_total", "Report artifacts persisted to object storage.", "bucket")

	return m
}

// Handler exposes the underlying registry scrape endpoint.
func (m *AppMetrics) Handler() http.Handler {
	return m.collector.Handler()
}

// NewNopAppMetrics returns an AppMetrics whose instruments discard every
// observation.  Used in tests and CLI tools that carry no metrics endpoint.
func NewNopAppMetrics() *AppMetrics {
	return NewAppMetrics(&nopCollector{})
}

type nopCollector struct{}

func (c *nopCollector) RegisterCounter(string, string, ...string) CounterVec { return &noopCounterVec{} }
func (c *nopCollector) RegisterGauge(string, string, ...string) GaugeVec     { return &noopGaugeVec{} }
func (c *nopCollector) RegisterHistogram(string, string, []float64, ...string) HistogramVec {
	return &noopHistogramVec{}
}
func (c *nopCollector) Handler() http.Handler                           { return http.NotFoundHandler() }
func (c *nopCollector) MustRegister(...prometheus.Collector)            {}
func (c *nopCollector) Unregister(prometheus.Collector) bool            { return false }
