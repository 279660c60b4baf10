package prometheusmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/metrics"
)

func newTestMetrics() *Metrics {
	return NewMetrics(config.PrometheusMetrics{
		Namespace: "bidforge",
		Subsystem: "test",
	})
}

func TestRequestCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordRequest(metrics.RequestStatusOK)
	m.RecordRequest(metrics.RequestStatusOK)
	m.RecordRequest(metrics.RequestStatusBadInput)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(string(metrics.RequestStatusOK))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(string(metrics.RequestStatusBadInput))))
}

func TestAuctionOutcomes(t *testing.T) {
	m := newTestMetrics()

	m.RecordAuctionOutcome(metrics.AuctionWon)
	m.RecordAuctionOutcome(metrics.AuctionNoBid)
	m.RecordAuctionOutcome(metrics.AuctionNoBid)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(metrics.AuctionWon))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(metrics.AuctionNoBid))))
}

func TestConnectionGauge(t *testing.T) {
	m := newTestMetrics()

	m.RecordConnectionOpen()
	m.RecordConnectionOpen()
	m.RecordConnectionClose()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}

func TestSourceCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordBidSourceRequest("partner")
	m.RecordBidSourceTime("partner", 42*time.Millisecond)
	m.RecordBidSourceTimeout("partner")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceRequests.WithLabelValues("partner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceTimeouts.WithLabelValues("partner")))
}
