package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	c, err := NewMetricsCollector(CollectorConfig{
		Namespace: "vinsight",
		Subsystem: "test",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestNewMetricsCollector_RequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestRegisterCounter_IncrementAndScrape(t *testing.T) {
	c := newTestCollector(t)
	counter := c.RegisterCounter("requests_total", "test counter", "status")
	counter.WithLabelValues("200").Inc()
	counter.WithLabelValues("200").Add(2)

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `vinsight_test_requests_total{status="200"} 3`)
}

func TestRegisterCounter_DuplicateReturnsSameVec(t *testing.T) {
	c := newTestCollector(t)
	first := c.RegisterCounter("dup_total", "test", "l")
	second := c.RegisterCounter("dup_total", "test", "l")

	first.WithLabelValues("a").Inc()
	second.WithLabelValues("a").Inc()

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `vinsight_test_dup_total{l="a"} 2`)
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	g := c.RegisterGauge("in_flight", "test gauge", "method")
	g.WithLabelValues("GET").Set(5)
	g.WithLabelValues("GET").Dec()

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `vinsight_test_in_flight{method="GET"} 4`)
}

func TestRegisterHistogram(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("latency_seconds", "test histogram", []float64{0.1, 1}, "path")
	h.WithLabelValues("/v").Observe(0.05)
	h.WithLabelValues("/v").Observe(0.5)

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `vinsight_test_latency_seconds_count{path="/v"} 2`)
}

func TestNewAppMetrics(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.ValuationsTotal.WithLabelValues("market").Inc()
	m.ListingsRejected.WithLabelValues("craigslist", "price_out_of_range").Inc()
	m.ConfidenceScore.WithLabelValues().Observe(72)
	m.CacheHits.WithLabelValues("report").Inc()

	body := scrape(t, m.Handler())
	assert.Contains(t, body, `vinsight_test_valuations_total{outcome="market"} 1`)
	assert.Contains(t, body, `reason="price_out_of_range"`)
	assert.Contains(t, body, "vinsight_test_valuation_confidence_count 1")
}

func TestTimer(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("timed_seconds", "timer test", nil, "op")

	timer := NewTimer(h.WithLabelValues("estimate"))
	timer.ObserveDuration()

	body := scrape(t, c.Handler())
	assert.Contains(t, body, `vinsight_test_timed_seconds_count{op="estimate"} 1`)
}

func TestTimer_NilHistogram(t *testing.T) {
	assert.NotPanics(t, func() { NewTimer(nil).ObserveDuration() })
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sb strings.Builder
	sb.Write(rec.Body.Bytes())
	return sb.String()
}
