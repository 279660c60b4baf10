package exchange

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/mxmCherry/openrtb"

	"github.com/bidforge/bidforge/budget"
	"github.com/bidforge/bidforge/campaigns"
	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/dedupe"
	"github.com/bidforge/bidforge/errortypes"
	"github.com/bidforge/bidforge/events"
	"github.com/bidforge/bidforge/frequency"
	"github.com/bidforge/bidforge/metrics"
	"github.com/bidforge/bidforge/scoring"
	"github.com/bidforge/bidforge/util/timeutil"
)

// Exchange runs auctions. Implementations must be threadsafe, and will be shared
// across many goroutines.
type Exchange interface {
	// HoldAuction resolves one ad opportunity to a win or an explicit no-bid within
	// the context deadline.
	HoldAuction(ctx context.Context, r *AuctionRequest) (*openrtb.BidResponse, error)
}

// AuctionRequest is the validated, typed form of one ad opportunity. It is produced by
// the endpoint's validation step; the exchange never sees a partially populated request.
type AuctionRequest struct {
	ID        string
	UserID    string
	Lat       float64
	Lon       float64
	Interests []string
	AgeGroup  string

	// ImpID, ImpW, ImpH and FloorPrice describe the impression being auctioned.
	ImpID      string
	ImpW       uint64
	ImpH       uint64
	FloorPrice float64

	// OpenRTB is the originating wire request, forwarded to external bid sources.
	OpenRTB *openrtb.BidRequest

	StartTime time.Time
}

type exchange struct {
	repo     campaigns.Repository
	index    *campaigns.Index
	freq     *frequency.Tracker
	seen     *dedupe.Filter
	ledger   *budget.Ledger
	scorer   *scoring.Scorer
	sources  []BidSource
	notifier *events.Notifier
	me       metrics.MetricsEngine
	clock    timeutil.Time

	freqCap          int
	freqWindow       time.Duration
	priceIncrement   float64
	maxCommitRetries int
}

// NewExchange builds the auction core from its injected collaborators. The repository
// and index are the only views it has of campaign state; nothing is read from ambient
// globals.
func NewExchange(
	repo campaigns.Repository,
	index *campaigns.Index,
	freq *frequency.Tracker,
	seen *dedupe.Filter,
	ledger *budget.Ledger,
	scorer *scoring.Scorer,
	sources []BidSource,
	notifier *events.Notifier,
	metricsEngine metrics.MetricsEngine,
	cfg *config.Configuration,
) Exchange {
	return &exchange{
		repo:             repo,
		index:            index,
		freq:             freq,
		seen:             seen,
		ledger:           ledger,
		scorer:           scorer,
		sources:          sources,
		notifier:         notifier,
		me:               metricsEngine,
		clock:            timeutil.RealTime{},
		freqCap:          cfg.Frequency.Cap,
		freqWindow:       time.Duration(cfg.Frequency.WindowMinutes) * time.Minute,
		priceIncrement:   cfg.Auction.PriceIncrement,
		maxCommitRetries: cfg.Auction.MaxCommitRetries,
	}
}

// Container to pass bid source results from the solicitation goroutines back into the
// request goroutine.
type sourceResponseWrapper struct {
	source  string
	bids    []*CandidateBid
	errs    []error
	elapsed time.Duration
}

func (e *exchange) HoldAuction(ctx context.Context, r *AuctionRequest) (*openrtb.BidResponse, error) {
	if r == nil {
		return nil, errors.New("HoldAuction requires a non-nil request")
	}
	now := e.clock.Now()

	// Solicit external sources first so their network time overlaps local work. The
	// channel is buffered to the source count: goroutines that miss the deadline can
	// still send and finish, their results just go unread.
	chBids := make(chan *sourceResponseWrapper, len(e.sources))
	for _, src := range e.sources {
		go e.solicitSafely(ctx, src, r.OpenRTB, chBids)
	}

	candidateIDs := e.index.Query(r.Lat, r.Lon, r.Interests)
	e.me.RecordCandidates(len(candidateIDs))

	auc := newAuction(r.FloorPrice, e.priceIncrement, e.maxCommitRetries)
	for _, campaignID := range candidateIDs {
		if bid := e.makeCandidate(r, campaignID, now); bid != nil {
			auc.addBid(bid)
		}
	}

	timedOut := e.collectSourceBids(ctx, chBids, r.ImpID, auc)

	result := auc.run(e.committer(r))
	if timedOut && result.Status != StatusWon {
		result.Status = StatusTimeout
	}

	e.finishAuction(r, result)
	return buildBidResponse(r, result), nil
}

// makeCandidate turns one indexed campaign ID into a priced bid, or nil if the
// campaign is ineligible for this request. A panic while evaluating one campaign drops
// only that campaign; the auction continues for the rest.
func (e *exchange) makeCandidate(r *AuctionRequest, campaignID string, now time.Time) (bid *CandidateBid) {
	defer func() {
		if rec := recover(); rec != nil {
			dropped := &errortypes.CandidateDropped{CampaignID: campaignID, Message: "panic while scoring"}
			glog.Errorf("%v: %v. Stack trace is: %v", dropped, rec, string(debug.Stack()))
			bid = nil
		}
	}()

	campaign, ok := e.repo.Get(campaignID)
	if !ok {
		return nil
	}
	if !campaign.EligibleAt(now) || !campaign.MatchesAgeGroup(r.AgeGroup) {
		return nil
	}
	if e.seen.MightHaveShown(r.UserID, campaignID) {
		glog.V(2).Infof("%v", &errortypes.DuplicateSuppressed{CampaignID: campaignID})
		return nil
	}
	if !e.freq.Under(r.UserID, campaignID, e.freqCap, e.freqWindow) {
		glog.V(2).Infof("%v", &errortypes.FrequencyCapped{CampaignID: campaignID})
		return nil
	}
	// Cheap pre-check; the commit phase re-checks atomically.
	if e.ledger.Remaining(campaignID) <= 0 {
		glog.V(2).Infof("%v", &errortypes.BudgetExhausted{CampaignID: campaignID})
		return nil
	}

	score := e.scorer.Score(scoring.Signals{
		Lat:       r.Lat,
		Lon:       r.Lon,
		Interests: r.Interests,
		AgeGroup:  r.AgeGroup,
	}, campaign)
	if score <= 0 {
		return nil
	}

	candidate := &CandidateBid{
		ID:         newBidID(r.ID, campaignID),
		CampaignID: campaignID,
		Seat:       internalSeat,
		ImpID:      r.ImpID,
		Price:      score,
		BidType:    campaign.BidType,
	}
	if creative := pickCreative(r.ID, campaign.Creatives); creative != nil {
		candidate.Markup = creative.Markup
		candidate.CreativeID = creative.ID
		candidate.W = creative.W
		candidate.H = creative.H
	}
	return candidate
}

func (e *exchange) solicitSafely(ctx context.Context, src BidSource, req *openrtb.BidRequest, chBids chan<- *sourceResponseWrapper) {
	defer func() {
		if rec := recover(); rec != nil {
			glog.Errorf("auction recovered panic from bid source %s: %v. Stack trace is: %v",
				src.Name(), rec, string(debug.Stack()))
			chBids <- &sourceResponseWrapper{source: src.Name()}
		}
	}()

	e.me.RecordBidSourceRequest(src.Name())
	start := time.Now()
	bids, errs := src.RequestBids(ctx, req)
	chBids <- &sourceResponseWrapper{
		source:  src.Name(),
		bids:    bids,
		errs:    errs,
		elapsed: time.Since(start),
	}
}

// collectSourceBids drains the solicitation channel into the auction until every
// source answered or the deadline expired. Returns whether any source missed the
// deadline; their late bids are simply never read.
func (e *exchange) collectSourceBids(ctx context.Context, chBids <-chan *sourceResponseWrapper, impID string, auc *auction) bool {
	timedOut := false
	for i := 0; i < len(e.sources); i++ {
		select {
		case brw := <-chBids:
			e.me.RecordBidSourceTime(brw.source, brw.elapsed)
			for _, err := range brw.errs {
				if errortypes.ReadCode(err) == errortypes.TimeoutErrorCode {
					timedOut = true
					e.me.RecordBidSourceTimeout(brw.source)
				} else {
					e.me.RecordBidSourceError(brw.source)
					glog.Errorf("bid source %s: %v", brw.source, err)
				}
			}
			for _, bid := range brw.bids {
				if bid.ImpID == impID {
					auc.addBid(bid)
				}
			}
		case <-ctx.Done():
			return true
		}
	}
	return timedOut
}

// committer reserves budget and an exposure slot for an internal winner. External
// bids settle against their own ledgers, so they commit unconditionally.
func (e *exchange) committer(r *AuctionRequest) committer {
	return func(bid *CandidateBid, clearingPrice float64) bool {
		if !bid.internal() {
			return true
		}
		if !e.ledger.TryReserve(bid.CampaignID, clearingPrice) {
			glog.V(2).Infof("%v", &errortypes.BudgetExhausted{CampaignID: bid.CampaignID})
			e.me.RecordCommitCascade()
			return false
		}
		if !e.freq.TryConsume(r.UserID, bid.CampaignID, e.freqCap, e.freqWindow) {
			e.ledger.Release(bid.CampaignID, clearingPrice)
			e.me.RecordCommitCascade()
			return false
		}
		return true
	}
}

func (e *exchange) finishAuction(r *AuctionRequest, result *AuctionResult) {
	switch result.Status {
	case StatusWon:
		e.me.RecordAuctionOutcome(metrics.AuctionWon)
		e.me.RecordWinPrice(result.ClearingPrice)
	case StatusTimeout:
		e.me.RecordAuctionOutcome(metrics.AuctionTimeout)
	default:
		e.me.RecordAuctionOutcome(metrics.AuctionNoBid)
	}

	winner := result.Winner
	if winner == nil || !winner.internal() {
		return
	}

	e.seen.RecordShown(r.UserID, winner.CampaignID)

	if campaign, ok := e.repo.Get(winner.CampaignID); ok {
		e.notifier.NotifyWin(campaign.OwnerEndpoint, events.WinNotification{
			AuctionID:    r.ID,
			BidID:        winner.ID,
			WinningPrice: result.ClearingPrice,
			ImpressionID: winner.ImpID,
		})
	}
}

func buildBidResponse(r *AuctionRequest, result *AuctionResult) *openrtb.BidResponse {
	resp := &openrtb.BidResponse{
		ID:  r.ID,
		Cur: "USD",
	}

	switch result.Status {
	case StatusWon:
		winner := result.Winner
		resp.SeatBid = []openrtb.SeatBid{{
			Seat: winner.Seat,
			Bid: []openrtb.Bid{{
				ID:    winner.ID,
				ImpID: winner.ImpID,
				Price: result.ClearingPrice,
				AdM:   winner.Markup,
				CrID:  winner.CreativeID,
				W:     winner.W,
				H:     winner.H,
			}},
		}}
	case StatusTimeout:
		resp.NBR = openrtb.NoBidReasonCodeUnknownError.Ptr()
	}
	return resp
}

func newBidID(requestID, campaignID string) string {
	id, err := uuid.NewV4()
	if err != nil {
		// Extremely unlikely; fall back to a deterministic composite.
		return requestID + ":" + campaignID
	}
	return id.String()
}
