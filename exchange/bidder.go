package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mxmCherry/openrtb"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/errortypes"
)

// internalSeat marks bids produced from our own campaign store, as opposed to bids
// solicited from external sources.
const internalSeat = "bidforge"

// BidSource solicits bids from one external demand partner.
//
// RequestBids must respect the context deadline: bids that would arrive after the
// deadline are excluded from this auction, so implementations return whatever they
// have (usually nothing) plus a timeout error instead of blocking.
type BidSource interface {
	Name() string
	RequestBids(ctx context.Context, req *openrtb.BidRequest) ([]*CandidateBid, []error)
}

type httpBidSource struct {
	name     string
	seat     string
	endpoint string
	client   *http.Client
}

// NewHTTPBidSource builds a source that forwards the auction's bid request over HTTP
// and parses the standard seatbid response shape. The markup in returned bids is
// opaque and passed through untouched.
func NewHTTPBidSource(cfg config.BidSource, client *http.Client) BidSource {
	seat := cfg.Seat
	if seat == "" {
		seat = cfg.Name
	}
	return &httpBidSource{
		name:     cfg.Name,
		seat:     seat,
		endpoint: cfg.Endpoint,
		client:   client,
	}
}

func (s *httpBidSource) Name() string {
	return s.name
}

func (s *httpBidSource) RequestBids(ctx context.Context, req *openrtb.BidRequest) ([]*CandidateBid, []error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, []error{err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, []error{err}
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=utf-8")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, []error{&errortypes.Timeout{
				Message: fmt.Sprintf("bid source %s timed out", s.name),
			}}
		}
		return nil, []error{err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("bid source %s returned status %d", s.name, httpResp.StatusCode),
		}}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, []error{err}
	}

	var bidResp openrtb.BidResponse
	if err := json.Unmarshal(respBody, &bidResp); err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("bid source %s returned malformed response: %v", s.name, err),
		}}
	}

	return s.flatten(&bidResp)
}

// flatten lifts the nested seatbid structure into candidate bids, dropping entries
// that could never win and reporting why.
func (s *httpBidSource) flatten(resp *openrtb.BidResponse) ([]*CandidateBid, []error) {
	var bids []*CandidateBid
	var errs []error

	for _, seatBid := range resp.SeatBid {
		seat := seatBid.Seat
		if seat == "" {
			seat = s.seat
		}
		for _, bid := range seatBid.Bid {
			if bid.ID == "" || bid.ImpID == "" {
				errs = append(errs, &errortypes.BadServerResponse{
					Message: fmt.Sprintf("bid source %s returned a bid without id or impid", s.name),
				})
				continue
			}
			if bid.Price <= 0 {
				errs = append(errs, &errortypes.BadServerResponse{
					Message: fmt.Sprintf("bid source %s bid %s has non-positive price %f", s.name, bid.ID, bid.Price),
				})
				continue
			}
			bids = append(bids, &CandidateBid{
				ID:         bid.ID,
				Seat:       seat,
				ImpID:      bid.ImpID,
				Price:      bid.Price,
				Markup:     bid.AdM,
				CreativeID: bid.CrID,
				W:          bid.W,
				H:          bid.H,
			})
		}
	}
	return bids, errs
}
