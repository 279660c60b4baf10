package metricsconfig

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/metrics"
	prometheusmetrics "github.com/bidforge/bidforge/metrics/prometheus"
)

// NewMetricsEngine reads the configuration and returns the appropriate metrics engine
// for this instance. The go-metrics engine is always on; Prometheus is added when a
// port is configured.
func NewMetricsEngine(cfg *config.Configuration, registry gometrics.Registry) *DetailedMetricsEngine {
	engineList := make(MultiMetricsEngine, 0, 2)
	returnEngine := DetailedMetricsEngine{}

	returnEngine.GoMetrics = metrics.NewMetrics(registry)
	engineList = append(engineList, returnEngine.GoMetrics)

	if cfg.Metrics.Prometheus.Port != 0 {
		returnEngine.PrometheusMetrics = prometheusmetrics.NewMetrics(cfg.Metrics.Prometheus)
		engineList = append(engineList, returnEngine.PrometheusMetrics)
	}

	returnEngine.MetricsEngine = &engineList
	return &returnEngine
}

// DetailedMetricsEngine is a MultiMetricsEngine that preserves links to the underlying
// engines, for the servers that need direct access to a registry.
type DetailedMetricsEngine struct {
	metrics.MetricsEngine
	GoMetrics         *metrics.Metrics
	PrometheusMetrics *prometheusmetrics.Metrics
}

// MultiMetricsEngine logs metrics to multiple metrics databases.
type MultiMetricsEngine []metrics.MetricsEngine

func (me *MultiMetricsEngine) RecordRequest(status metrics.RequestStatus) {
	for _, engine := range *me {
		engine.RecordRequest(status)
	}
}

func (me *MultiMetricsEngine) RecordRequestTime(length time.Duration) {
	for _, engine := range *me {
		engine.RecordRequestTime(length)
	}
}

func (me *MultiMetricsEngine) RecordCandidates(count int) {
	for _, engine := range *me {
		engine.RecordCandidates(count)
	}
}

func (me *MultiMetricsEngine) RecordAuctionOutcome(outcome metrics.AuctionOutcome) {
	for _, engine := range *me {
		engine.RecordAuctionOutcome(outcome)
	}
}

func (me *MultiMetricsEngine) RecordWinPrice(price float64) {
	for _, engine := range *me {
		engine.RecordWinPrice(price)
	}
}

func (me *MultiMetricsEngine) RecordCommitCascade() {
	for _, engine := range *me {
		engine.RecordCommitCascade()
	}
}

func (me *MultiMetricsEngine) RecordBidSourceRequest(source string) {
	for _, engine := range *me {
		engine.RecordBidSourceRequest(source)
	}
}

func (me *MultiMetricsEngine) RecordBidSourceTime(source string, length time.Duration) {
	for _, engine := range *me {
		engine.RecordBidSourceTime(source, length)
	}
}

func (me *MultiMetricsEngine) RecordBidSourceError(source string) {
	for _, engine := range *me {
		engine.RecordBidSourceError(source)
	}
}

func (me *MultiMetricsEngine) RecordBidSourceTimeout(source string) {
	for _, engine := range *me {
		engine.RecordBidSourceTimeout(source)
	}
}

func (me *MultiMetricsEngine) RecordAdmissionReject() {
	for _, engine := range *me {
		engine.RecordAdmissionReject()
	}
}

func (me *MultiMetricsEngine) RecordConnectionOpen() {
	for _, engine := range *me {
		engine.RecordConnectionOpen()
	}
}

func (me *MultiMetricsEngine) RecordConnectionClose() {
	for _, engine := range *me {
		engine.RecordConnectionClose()
	}
}
