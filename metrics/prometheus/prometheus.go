package prometheusmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/metrics"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	connections      prometheus.Gauge
	requests         *prometheus.CounterVec
	requestTimer     prometheus.Histogram
	candidates       prometheus.Histogram
	outcomes         *prometheus.CounterVec
	winPrice         prometheus.Histogram
	commitCascades   prometheus.Counter
	admissionRejects prometheus.Counter

	sourceRequests *prometheus.CounterVec
	sourceTimer    *prometheus.HistogramVec
	sourceErrors   *prometheus.CounterVec
	sourceTimeouts *prometheus.CounterVec
}

const (
	statusLabel  = "status"
	outcomeLabel = "outcome"
	sourceLabel  = "source"
)

// NewMetrics constructs the Prometheus engine and registers every metric.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	requestTimeBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	priceBuckets := []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}
	candidateBuckets := []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}

	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.connections = newGauge(cfg, m.Registry, "active_connections",
		"Count of currently open client connections.")
	m.requests = newCounterVec(cfg, m.Registry, "requests_total",
		"Count of requests by terminal status.", []string{statusLabel})
	m.requestTimer = newHistogram(cfg, m.Registry, "request_duration_seconds",
		"Seconds to resolve a request.", requestTimeBuckets)
	m.candidates = newHistogram(cfg, m.Registry, "auction_candidates",
		"Candidate campaigns considered per auction.", candidateBuckets)
	m.outcomes = newCounterVec(cfg, m.Registry, "auctions_total",
		"Count of auctions by outcome.", []string{outcomeLabel})
	m.winPrice = newHistogram(cfg, m.Registry, "auction_win_price",
		"Clearing price of won auctions.", priceBuckets)
	m.commitCascades = newCounter(cfg, m.Registry, "auction_commit_cascades_total",
		"Count of budget commits that lost a race and cascaded to the next bid.")
	m.admissionRejects = newCounter(cfg, m.Registry, "admission_rejects_total",
		"Count of requests rejected by the saturation gate.")

	m.sourceRequests = newCounterVec(cfg, m.Registry, "source_requests_total",
		"Count of solicitations per external bid source.", []string{sourceLabel})
	m.sourceTimer = newHistogramVec(cfg, m.Registry, "source_request_duration_seconds",
		"Seconds per external bid source response.", []string{sourceLabel}, requestTimeBuckets)
	m.sourceErrors = newCounterVec(cfg, m.Registry, "source_errors_total",
		"Count of external bid source failures.", []string{sourceLabel})
	m.sourceTimeouts = newCounterVec(cfg, m.Registry, "source_timeouts_total",
		"Count of external bid sources that missed the auction deadline.", []string{sourceLabel})

	return m
}

func (m *Metrics) RecordRequest(status metrics.RequestStatus) {
	m.requests.With(prometheus.Labels{statusLabel: string(status)}).Inc()
}

func (m *Metrics) RecordRequestTime(length time.Duration) {
	m.requestTimer.Observe(length.Seconds())
}

func (m *Metrics) RecordCandidates(count int) {
	m.candidates.Observe(float64(count))
}

func (m *Metrics) RecordAuctionOutcome(outcome metrics.AuctionOutcome) {
	m.outcomes.With(prometheus.Labels{outcomeLabel: string(outcome)}).Inc()
}

func (m *Metrics) RecordWinPrice(price float64) {
	m.winPrice.Observe(price)
}

func (m *Metrics) RecordCommitCascade() {
	m.commitCascades.Inc()
}

func (m *Metrics) RecordBidSourceRequest(source string) {
	m.sourceRequests.With(prometheus.Labels{sourceLabel: source}).Inc()
}

func (m *Metrics) RecordBidSourceTime(source string, length time.Duration) {
	m.sourceTimer.With(prometheus.Labels{sourceLabel: source}).Observe(length.Seconds())
}

func (m *Metrics) RecordBidSourceError(source string) {
	m.sourceErrors.With(prometheus.Labels{sourceLabel: source}).Inc()
}

func (m *Metrics) RecordBidSourceTimeout(source string) {
	m.sourceTimeouts.With(prometheus.Labels{sourceLabel: source}).Inc()
}

func (m *Metrics) RecordAdmissionReject() {
	m.admissionRejects.Inc()
}

func (m *Metrics) RecordConnectionOpen() {
	m.connections.Inc()
}

func (m *Metrics) RecordConnectionClose() {
	m.connections.Dec()
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(counter)
	return counter
}

func newCounterVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	registry.MustRegister(counter)
	return counter
}

func newGauge(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string) prometheus.Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(gauge)
	return gauge
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, buckets []float64) prometheus.Histogram {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	registry.MustRegister(histogram)
	return histogram
}

func newHistogramVec(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	registry.MustRegister(histogram)
	return histogram
}
