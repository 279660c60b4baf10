package exchange

import (
	"sort"

	"github.com/golang/glog"
)

// CandidateBid is one priced contender in an auction, either an internal campaign with
// its effective score as the price, or a bid returned by an external source.
type CandidateBid struct {
	ID         string
	CampaignID string
	Seat       string
	ImpID      string
	// Price is the effective bid entering the auction, in currency units per impression.
	Price      float64
	BidType    string
	Markup     string
	CreativeID string
	W          uint64
	H          uint64
}

func (b *CandidateBid) internal() bool {
	return b.Seat == internalSeat
}

// sortKey breaks price ties deterministically: lowest campaign ID wins, falling back
// to the bid ID for external bids without one.
func (b *CandidateBid) sortKey() string {
	if b.CampaignID != "" {
		return b.CampaignID
	}
	return b.ID
}

// ResultStatus is the terminal state of one auction.
type ResultStatus string

const (
	StatusWon     ResultStatus = "won"
	StatusNoBid   ResultStatus = "no_bid"
	StatusTimeout ResultStatus = "timeout"
)

// AuctionResult is emitted once per request.
type AuctionResult struct {
	Status        ResultStatus
	Winner        *CandidateBid
	ClearingPrice float64
	// Considered is the number of bids that entered the auction.
	Considered int
}

type auctionStage string

const (
	stageCollecting auctionStage = "collecting"
	stageSelecting  auctionStage = "selecting"
	stageCommitting auctionStage = "committing"
	stageWon        auctionStage = "won"
	stageNoBid      auctionStage = "no_bid"
)

// auction holds the bids for a single request and runs the sealed second-price
// selection over them. Construct with newAuction; not safe for concurrent use, one
// auction belongs to one request goroutine.
type auction struct {
	floor       float64
	increment   float64
	maxCascades int
	bids        []*CandidateBid
	stage       auctionStage
}

// committer reserves whatever resources a win consumes (budget, exposure count) for
// the bid at the clearing price. Returning false means the bid lost a race and the
// auction moves down the book.
type committer func(bid *CandidateBid, clearingPrice float64) bool

func newAuction(floor, increment float64, maxCascades int) *auction {
	return &auction{
		floor:       floor,
		increment:   increment,
		maxCascades: maxCascades,
		stage:       stageCollecting,
	}
}

func (a *auction) addBid(bid *CandidateBid) {
	if bid == nil {
		return
	}
	a.bids = append(a.bids, bid)
}

// run ranks the collected bids and selects a winner. Ranking is by price descending
// with ties broken by lowest sort key, so an identical bid set always resolves the
// same way. The clearing price is the second-highest price plus one increment, clamped
// to never exceed the winner's own price and never undercut the floor; a lone bidder
// clears at the floor.
//
// Committing may fail when a concurrent auction drained the same campaign's budget
// first; the auction then cascades to the next bid, at most maxCascades times, before
// giving up with a no-bid.
func (a *auction) run(commit committer) *AuctionResult {
	a.stage = stageSelecting

	eligible := make([]*CandidateBid, 0, len(a.bids))
	for _, bid := range a.bids {
		if bid.Price >= a.floor {
			eligible = append(eligible, bid)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Price != eligible[j].Price {
			return eligible[i].Price > eligible[j].Price
		}
		return eligible[i].sortKey() < eligible[j].sortKey()
	})

	result := &AuctionResult{Status: StatusNoBid, Considered: len(a.bids)}
	if len(eligible) == 0 {
		a.stage = stageNoBid
		return result
	}

	a.stage = stageCommitting
	cascades := 0
	for i := 0; i < len(eligible); i++ {
		winner := eligible[i]
		price := a.clearingPrice(winner, eligible[i+1:])

		if commit(winner, price) {
			a.stage = stageWon
			result.Status = StatusWon
			result.Winner = winner
			result.ClearingPrice = price
			return result
		}

		cascades++
		if cascades > a.maxCascades {
			glog.V(2).Infof("auction gave up after %d failed commits", cascades)
			break
		}
	}

	a.stage = stageNoBid
	return result
}

func (a *auction) clearingPrice(winner *CandidateBid, rest []*CandidateBid) float64 {
	if len(rest) == 0 {
		return a.floor
	}
	price := rest[0].Price + a.increment
	if price > winner.Price {
		price = winner.Price
	}
	if price < a.floor {
		price = a.floor
	}
	return price
}
