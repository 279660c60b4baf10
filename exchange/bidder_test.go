package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/errortypes"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) (BidSource, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	src := NewHTTPBidSource(config.BidSource{
		Name:     "sourceA",
		Endpoint: server.URL,
		Seat:     "seat-a",
	}, server.Client())
	return src, server
}

func testBidRequest() *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID:  "req-1",
		Imp: []openrtb.Imp{{ID: "imp-1", BidFloor: 0.5}},
	}
}

func TestRequestBids(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{
			"id": "req-1",
			"seatbid": [{
				"seat": "remote-seat",
				"bid": [
					{"id": "b1", "impid": "imp-1", "price": 2.5, "adm": "<markup/>", "crid": "cr1", "w": 300, "h": 250},
					{"id": "b2", "impid": "imp-1", "price": 1.25}
				]
			}]
		}`))
	})

	bids, errs := src.RequestBids(context.Background(), testBidRequest())

	assert.Empty(t, errs)
	if assert.Len(t, bids, 2) {
		assert.Equal(t, "b1", bids[0].ID)
		assert.Equal(t, "remote-seat", bids[0].Seat)
		assert.Equal(t, 2.5, bids[0].Price)
		assert.Equal(t, "<markup/>", bids[0].Markup)
		assert.Equal(t, uint64(300), bids[0].W)
		assert.False(t, bids[0].internal())
	}
}

func TestRequestBidsUsesConfiguredSeatAsFallback(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "req-1", "seatbid": [{"bid": [{"id": "b1", "impid": "imp-1", "price": 1}]}]}`))
	})

	bids, errs := src.RequestBids(context.Background(), testBidRequest())

	assert.Empty(t, errs)
	if assert.Len(t, bids, 1) {
		assert.Equal(t, "seat-a", bids[0].Seat)
	}
}

func TestRequestBidsNoContent(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	bids, errs := src.RequestBids(context.Background(), testBidRequest())

	assert.Empty(t, bids)
	assert.Empty(t, errs)
}

func TestRequestBidsBadStatus(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	bids, errs := src.RequestBids(context.Background(), testBidRequest())

	assert.Empty(t, bids)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, errortypes.BadServerResponseErrorCode, errortypes.ReadCode(errs[0]))
	}
}

func TestRequestBidsMalformedBody(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, errs := src.RequestBids(context.Background(), testBidRequest())

	if assert.Len(t, errs, 1) {
		assert.Equal(t, errortypes.BadServerResponseErrorCode, errortypes.ReadCode(errs[0]))
	}
}

func TestRequestBidsDropsInvalidBids(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "req-1", "seatbid": [{"bid": [
			{"id": "", "impid": "imp-1", "price": 2},
			{"id": "b2", "impid": "imp-1", "price": 0},
			{"id": "b3", "impid": "imp-1", "price": 3}
		]}]}`))
	})

	bids, errs := src.RequestBids(context.Background(), testBidRequest())

	assert.Len(t, errs, 2, "the empty-id and zero-price bids are reported")
	if assert.Len(t, bids, 1) {
		assert.Equal(t, "b3", bids[0].ID)
	}
}

func TestRequestBidsTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	bids, errs := src.RequestBids(ctx, testBidRequest())

	assert.Less(t, time.Since(start), 500*time.Millisecond, "timeout must be honored promptly")
	assert.Empty(t, bids)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, errortypes.TimeoutErrorCode, errortypes.ReadCode(errs[0]))
	}
}
