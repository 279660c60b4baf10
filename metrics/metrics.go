package metrics

import (
	"time"
)

// RequestStatus : the request return status.
type RequestStatus string

const (
	RequestStatusOK           RequestStatus = "ok"
	RequestStatusBadInput     RequestStatus = "badinput"
	RequestStatusErr          RequestStatus = "err"
	RequestStatusOverCapacity RequestStatus = "overcapacity"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
		RequestStatusOverCapacity,
	}
}

// AuctionOutcome : terminal state of one auction.
type AuctionOutcome string

const (
	AuctionWon     AuctionOutcome = "won"
	AuctionNoBid   AuctionOutcome = "nobid"
	AuctionTimeout AuctionOutcome = "timeout"
)

func AuctionOutcomes() []AuctionOutcome {
	return []AuctionOutcome{
		AuctionWon,
		AuctionNoBid,
		AuctionTimeout,
	}
}

// MetricsEngine is a generic interface to record auction metrics into the desired
// backend. Implementations must be safe for concurrent use.
type MetricsEngine interface {
	RecordRequest(status RequestStatus)
	RecordRequestTime(length time.Duration)
	RecordCandidates(count int)
	RecordAuctionOutcome(outcome AuctionOutcome)
	RecordWinPrice(price float64)
	RecordCommitCascade()

	RecordBidSourceRequest(source string)
	RecordBidSourceTime(source string, length time.Duration)
	RecordBidSourceError(source string)
	RecordBidSourceTimeout(source string)

	RecordAdmissionReject()
	RecordConnectionOpen()
	RecordConnectionClose()
}
