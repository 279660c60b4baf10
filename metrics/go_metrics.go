package metrics

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics backed implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry gometrics.Registry

	ConnectionCounter gometrics.Counter
	RequestTimer      gometrics.Timer
	RequestStatuses   map[RequestStatus]gometrics.Meter
	CandidateHisto    gometrics.Histogram
	OutcomeMeters     map[AuctionOutcome]gometrics.Meter
	WinPriceHisto     gometrics.Histogram
	CommitCascades    gometrics.Meter
	AdmissionRejects  gometrics.Meter

	// Per bid source metrics, created on demand.
	sourceMetrics map[string]*SourceMetrics
	sourceRWMutex sync.RWMutex
}

// SourceMetrics houses the metrics for one external bid source.
type SourceMetrics struct {
	RequestMeter gometrics.Meter
	RequestTimer gometrics.Timer
	ErrorMeter   gometrics.Meter
	TimeoutMeter gometrics.Meter
}

// NewMetrics creates a new go-metrics engine on the given registry.
func NewMetrics(registry gometrics.Registry) *Metrics {
	m := &Metrics{
		MetricsRegistry:   registry,
		ConnectionCounter: gometrics.GetOrRegisterCounter("active_connections", registry),
		RequestTimer:      gometrics.GetOrRegisterTimer("request_time", registry),
		RequestStatuses:   make(map[RequestStatus]gometrics.Meter),
		CandidateHisto:    gometrics.GetOrRegisterHistogram("auction.candidates", registry, gometrics.NewExpDecaySample(1028, 0.015)),
		OutcomeMeters:     make(map[AuctionOutcome]gometrics.Meter),
		WinPriceHisto:     gometrics.GetOrRegisterHistogram("auction.win_price", registry, gometrics.NewExpDecaySample(1028, 0.015)),
		CommitCascades:    gometrics.GetOrRegisterMeter("auction.commit_cascades", registry),
		AdmissionRejects:  gometrics.GetOrRegisterMeter("admission.rejects", registry),
		sourceMetrics:     make(map[string]*SourceMetrics),
	}
	for _, status := range RequestStatuses() {
		m.RequestStatuses[status] = gometrics.GetOrRegisterMeter("requests."+string(status), registry)
	}
	for _, outcome := range AuctionOutcomes() {
		m.OutcomeMeters[outcome] = gometrics.GetOrRegisterMeter("auction."+string(outcome), registry)
	}
	return m
}

func (m *Metrics) RecordRequest(status RequestStatus) {
	if meter, ok := m.RequestStatuses[status]; ok {
		meter.Mark(1)
	}
}

func (m *Metrics) RecordRequestTime(length time.Duration) {
	m.RequestTimer.Update(length)
}

func (m *Metrics) RecordCandidates(count int) {
	m.CandidateHisto.Update(int64(count))
}

func (m *Metrics) RecordAuctionOutcome(outcome AuctionOutcome) {
	if meter, ok := m.OutcomeMeters[outcome]; ok {
		meter.Mark(1)
	}
}

func (m *Metrics) RecordWinPrice(price float64) {
	// Prices are fractional; keep two decimals of resolution in the histogram.
	m.WinPriceHisto.Update(int64(price * 100))
}

func (m *Metrics) RecordCommitCascade() {
	m.CommitCascades.Mark(1)
}

func (m *Metrics) RecordBidSourceRequest(source string) {
	m.getSourceMetrics(source).RequestMeter.Mark(1)
}

func (m *Metrics) RecordBidSourceTime(source string, length time.Duration) {
	m.getSourceMetrics(source).RequestTimer.Update(length)
}

func (m *Metrics) RecordBidSourceError(source string) {
	m.getSourceMetrics(source).ErrorMeter.Mark(1)
}

func (m *Metrics) RecordBidSourceTimeout(source string) {
	m.getSourceMetrics(source).TimeoutMeter.Mark(1)
}

func (m *Metrics) RecordAdmissionReject() {
	m.AdmissionRejects.Mark(1)
}

func (m *Metrics) RecordConnectionOpen() {
	m.ConnectionCounter.Inc(1)
}

func (m *Metrics) RecordConnectionClose() {
	m.ConnectionCounter.Dec(1)
}

// getSourceMetrics gets or registers the metrics for a bid source. The read lock
// covers the common case; registration takes the write lock once per source.
func (m *Metrics) getSourceMetrics(source string) *SourceMetrics {
	m.sourceRWMutex.RLock()
	sm, ok := m.sourceMetrics[source]
	m.sourceRWMutex.RUnlock()
	if ok {
		return sm
	}

	m.sourceRWMutex.Lock()
	defer m.sourceRWMutex.Unlock()
	sm, ok = m.sourceMetrics[source]
	if !ok {
		sm = &SourceMetrics{
			RequestMeter: gometrics.GetOrRegisterMeter("source."+source+".requests", m.MetricsRegistry),
			RequestTimer: gometrics.GetOrRegisterTimer("source."+source+".request_time", m.MetricsRegistry),
			ErrorMeter:   gometrics.GetOrRegisterMeter("source."+source+".errors", m.MetricsRegistry),
			TimeoutMeter: gometrics.GetOrRegisterMeter("source."+source+".timeouts", m.MetricsRegistry),
		}
		m.sourceMetrics[source] = sm
	}
	return sm
}
