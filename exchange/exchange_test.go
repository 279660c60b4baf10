package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"

	"github.com/bidforge/bidforge/budget"
	"github.com/bidforge/bidforge/campaigns"
	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/dedupe"
	"github.com/bidforge/bidforge/events"
	"github.com/bidforge/bidforge/frequency"
	"github.com/bidforge/bidforge/metrics"
	"github.com/bidforge/bidforge/scoring"
)

type harness struct {
	store  *campaigns.Store
	index  *campaigns.Index
	freq   *frequency.Tracker
	seen   *dedupe.Filter
	ledger *budget.Ledger
	cfg    *config.Configuration
}

func newHarness(sources []BidSource) (*harness, Exchange) {
	cfg := &config.Configuration{}
	cfg.Auction.PriceIncrement = 0.01
	cfg.Auction.MaxCommitRetries = 3
	cfg.Frequency.Cap = 2
	cfg.Frequency.WindowMinutes = 60

	h := &harness{
		index:  campaigns.NewIndex(0.1, 64),
		freq:   frequency.NewTracker(8),
		seen:   dedupe.NewFilter(1000, 0.01),
		ledger: budget.NewLedger(),
		cfg:    cfg,
	}
	h.store = campaigns.NewStore(h.index)

	ex := NewExchange(h.store, h.index, h.freq, h.seen, h.ledger, scoring.NewScorer(),
		sources, events.NewNotifier(time.Second), &metrics.NilMetricsEngine{}, cfg)
	return h, ex
}

func (h *harness) addCampaign(c *campaigns.Campaign) {
	h.store.Upsert(c)
	h.ledger.Register(c.ID, c.DailyBudget)
}

// testCampaign targets a zone centered on the test request's location, so the scorer
// applies the full proximity uplift and the score is bid * 1.5.
func testCampaign(id string, bid float64) *campaigns.Campaign {
	return &campaigns.Campaign{
		ID:          id,
		BidPrice:    bid,
		DailyBudget: 1000,
		Active:      true,
		Zones:       []campaigns.Zone{{Lat: 40.0, Lon: -74.0, RadiusKM: 10}},
		Creatives:   []campaigns.Creative{{ID: id + "-cr", Markup: "<ad id=" + id + "/>", W: 300, H: 250}},
	}
}

func testAuctionRequest() *AuctionRequest {
	return &AuctionRequest{
		ID:         "auction-1",
		UserID:     "user-1",
		Lat:        40.0,
		Lon:        -74.0,
		ImpID:      "imp-1",
		ImpW:       300,
		ImpH:       250,
		FloorPrice: 1.0,
		OpenRTB: &openrtb.BidRequest{
			ID:  "auction-1",
			Imp: []openrtb.Imp{{ID: "imp-1", BidFloor: 1.0}},
		},
		StartTime: time.Now(),
	}
}

func TestHoldAuctionNoCandidates(t *testing.T) {
	h, ex := newHarness(nil)
	h.addCampaign(testCampaign("far", 5.0))

	req := testAuctionRequest()
	req.Lat, req.Lon = 10.0, 10.0

	resp, err := ex.HoldAuction(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, "auction-1", resp.ID)
	assert.Empty(t, resp.SeatBid)
	assert.Nil(t, resp.NBR)
	assert.Equal(t, 0.0, h.ledger.Spent("far"))
}

func TestHoldAuctionInternalWin(t *testing.T) {
	h, ex := newHarness(nil)
	h.addCampaign(testCampaign("a", 2.0))
	h.addCampaign(testCampaign("b", 1.0))

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	if !assert.Len(t, resp.SeatBid, 1) {
		return
	}
	seatBid := resp.SeatBid[0]
	assert.Equal(t, internalSeat, seatBid.Seat)
	if !assert.Len(t, seatBid.Bid, 1) {
		return
	}
	bid := seatBid.Bid[0]
	assert.Equal(t, "imp-1", bid.ImpID)
	// Runner-up's effective bid is 1.5, plus the 0.01 increment.
	assert.InDelta(t, 1.51, bid.Price, 1e-9)
	assert.Equal(t, "<ad id=a/>", bid.AdM)
	assert.Equal(t, "a-cr", bid.CrID)
	assert.Equal(t, uint64(300), bid.W)

	assert.InDelta(t, 1.51, h.ledger.Spent("a"), 1e-9)
	assert.Equal(t, 0.0, h.ledger.Spent("b"))
	assert.True(t, h.seen.MightHaveShown("user-1", "a"))
	assert.False(t, h.seen.MightHaveShown("user-1", "b"))
}

func TestHoldAuctionSingleCandidateClearsAtFloor(t *testing.T) {
	h, ex := newHarness(nil)
	h.addCampaign(testCampaign("only", 2.0))

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	if assert.Len(t, resp.SeatBid, 1) {
		assert.InDelta(t, 1.0, resp.SeatBid[0].Bid[0].Price, 1e-9)
	}
	assert.InDelta(t, 1.0, h.ledger.Spent("only"), 1e-9)
}

func TestHoldAuctionDuplicateSuppressed(t *testing.T) {
	h, ex := newHarness(nil)
	h.addCampaign(testCampaign("only", 2.0))
	h.seen.RecordShown("user-1", "only")

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	assert.Empty(t, resp.SeatBid)
	assert.Equal(t, 0.0, h.ledger.Spent("only"))
}

func TestHoldAuctionFrequencyCapped(t *testing.T) {
	h, ex := newHarness(nil)
	h.addCampaign(testCampaign("only", 2.0))
	for i := 0; i < h.cfg.Frequency.Cap; i++ {
		assert.True(t, h.freq.TryConsume("user-1", "only", h.cfg.Frequency.Cap, time.Hour))
	}

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	assert.Empty(t, resp.SeatBid)
	assert.Equal(t, 0.0, h.ledger.Spent("only"))
}

func TestHoldAuctionCascadesOnExhaustedBudget(t *testing.T) {
	h, ex := newHarness(nil)

	// Campaign a outbids b but cannot afford its clearing price, so the auction
	// falls through to b.
	a := testCampaign("a", 2.0)
	a.DailyBudget = 0.5
	h.addCampaign(a)
	h.addCampaign(testCampaign("b", 1.0))

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	if assert.Len(t, resp.SeatBid, 1) {
		bid := resp.SeatBid[0].Bid[0]
		assert.Equal(t, "b-cr", bid.CrID)
		assert.InDelta(t, 1.0, bid.Price, 1e-9, "b is the only remaining bidder, so it clears at the floor")
	}
	assert.Equal(t, 0.0, h.ledger.Spent("a"))
	assert.InDelta(t, 1.0, h.ledger.Spent("b"), 1e-9)
	assert.False(t, h.seen.MightHaveShown("user-1", "a"))
	assert.True(t, h.seen.MightHaveShown("user-1", "b"))
}

func TestHoldAuctionExternalSourceWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "auction-1", "seatbid": [{"seat": "partner", "bid": [
			{"id": "ext-1", "impid": "imp-1", "price": 5.0, "adm": "<ext/>"}
		]}]}`))
	}))
	defer server.Close()
	src := NewHTTPBidSource(config.BidSource{Name: "partner", Endpoint: server.URL}, server.Client())

	h, ex := newHarness([]BidSource{src})
	h.addCampaign(testCampaign("a", 2.0))

	resp, err := ex.HoldAuction(context.Background(), testAuctionRequest())

	assert.NoError(t, err)
	if !assert.Len(t, resp.SeatBid, 1) {
		return
	}
	assert.Equal(t, "partner", resp.SeatBid[0].Seat)
	bid := resp.SeatBid[0].Bid[0]
	assert.Equal(t, "ext-1", bid.ID)
	// Internal runner-up's effective bid is 3.0, plus the increment.
	assert.InDelta(t, 3.01, bid.Price, 1e-9)

	// An external win spends nothing from local ledgers and records no exposure.
	assert.Equal(t, 0.0, h.ledger.Spent("a"))
	assert.False(t, h.seen.MightHaveShown("user-1", "a"))
}

func TestHoldAuctionSourceTimeoutWithoutWinner(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)
	src := NewHTTPBidSource(config.BidSource{Name: "slow", Endpoint: server.URL}, server.Client())

	_, ex := newHarness([]BidSource{src})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, err := ex.HoldAuction(ctx, testAuctionRequest())

	assert.NoError(t, err)
	assert.Empty(t, resp.SeatBid)
	if assert.NotNil(t, resp.NBR) {
		assert.Equal(t, openrtb.NoBidReasonCodeUnknownError, *resp.NBR)
	}
}

func TestHoldAuctionNotifiesWinner(t *testing.T) {
	received := make(chan events.WinNotification, 1)
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var note events.WinNotification
		if err := json.NewDecoder(r.Body).Decode(&note); err == nil {
			received <- note
		}
	}))
	defer owner.Close()

	h, ex := newHarness(nil)
	c := testCampaign("only", 2.0)
	c.OwnerEndpoint = owner.URL
	h.addCampaign(c)

	_, err := ex.HoldAuction(context.Background(), testAuctionRequest())
	assert.NoError(t, err)

	select {
	case note := <-received:
		assert.Equal(t, "auction-1", note.AuctionID)
		assert.Equal(t, "imp-1", note.ImpressionID)
		assert.InDelta(t, 1.0, note.WinningPrice, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("win notification never arrived")
	}
}
