package metrics

import (
	"time"
)

// NilMetricsEngine implements MetricsEngine with no-ops, for configurations with
// metrics disabled and for tests that don't care about metrics.
type NilMetricsEngine struct{}

func (me *NilMetricsEngine) RecordRequest(status RequestStatus)                 {}
func (me *NilMetricsEngine) RecordRequestTime(length time.Duration)             {}
func (me *NilMetricsEngine) RecordCandidates(count int)                         {}
func (me *NilMetricsEngine) RecordAuctionOutcome(outcome AuctionOutcome)        {}
func (me *NilMetricsEngine) RecordWinPrice(price float64)                       {}
func (me *NilMetricsEngine) RecordCommitCascade()                               {}
func (me *NilMetricsEngine) RecordBidSourceRequest(source string)               {}
func (me *NilMetricsEngine) RecordBidSourceTime(source string, d time.Duration) {}
func (me *NilMetricsEngine) RecordBidSourceError(source string)                 {}
func (me *NilMetricsEngine) RecordBidSourceTimeout(source string)               {}
func (me *NilMetricsEngine) RecordAdmissionReject()                             {}
func (me *NilMetricsEngine) RecordConnectionOpen()                              {}
func (me *NilMetricsEngine) RecordConnectionClose()                             {}
