package openrtb2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/mssola/user_agent"
	"github.com/mxmCherry/openrtb"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/errortypes"
	"github.com/bidforge/bidforge/exchange"
	"github.com/bidforge/bidforge/metrics"
	"github.com/bidforge/bidforge/util/queue"
)

// NewEndpoint builds the handler for POST /openrtb2/auction.
func NewEndpoint(ex exchange.Exchange, cfg *config.Configuration, metricsEngine metrics.MetricsEngine, gate *queue.Gate) (httprouter.Handle, error) {
	if ex == nil || cfg == nil || metricsEngine == nil || gate == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}

	return httprouter.Handle((&endpointDeps{ex, cfg, metricsEngine, gate}).Auction), nil
}

type endpointDeps struct {
	ex            exchange.Exchange
	cfg           *config.Configuration
	metricsEngine metrics.MetricsEngine
	gate          *queue.Gate
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	w.Header().Add("Content-Type", "application/json")

	if !deps.gate.TryEnter() {
		deps.metricsEngine.RecordAdmissionReject()
		deps.metricsEngine.RecordRequest(metrics.RequestStatusOverCapacity)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "auction capacity exhausted"}`))
		return
	}
	defer deps.gate.Leave()

	req, ctx, cancel, errL := deps.parseRequest(r)
	defer cancel() // Safe because parseRequest returns a no-op if there's nothing to cancel
	if len(errL) > 0 {
		deps.metricsEngine.RecordRequest(metrics.RequestStatusBadInput)
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			w.Write([]byte(fmt.Sprintf("Invalid request format: %s\n", err.Error())))
		}
		return
	}

	response, err := deps.ex.HoldAuction(ctx, req)
	if err != nil {
		deps.metricsEngine.RecordRequest(metrics.RequestStatusErr)
		glog.Errorf("/openrtb2/auction error for request %s: %v", req.ID, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Critical error while running the auction: %v", err)
		return
	}

	responseBytes, err := json.Marshal(response)
	if err != nil {
		deps.metricsEngine.RecordRequest(metrics.RequestStatusErr)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Failed to marshal auction response: %v", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(responseBytes)
	deps.metricsEngine.RecordRequest(metrics.RequestStatusOK)
	deps.metricsEngine.RecordRequestTime(time.Since(start))
}

// parseRequest turns the HTTP request into a validated auction request. This is
// guaranteed to return:
//
//   - A context which times out appropriately, given the request's tmax and the
//     configured default and ceiling.
//   - A cancellation function which should be called if the auction finishes early.
//
// If the errors list is empty, the returned request is fully populated and safe to
// auction. If it has at least one element, no guarantees are made about the request.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (req *exchange.AuctionRequest, ctx context.Context, cancel func(), errs []error) {
	ctx = context.Background()
	cancel = func() {}

	wireReq := &openrtb.BidRequest{}
	if err := json.NewDecoder(httpRequest.Body).Decode(wireReq); err != nil {
		errs = []error{&errortypes.BadInput{Message: err.Error()}}
		return
	}

	timeout := deps.timeout(wireReq)
	ctx, cancel = context.WithTimeout(ctx, timeout)

	if err := validateRequest(wireReq); err != nil {
		errs = []error{err}
		return
	}

	fillDevice(wireReq, httpRequest.Header.Get("User-Agent"))
	req = buildAuctionRequest(wireReq)
	return
}

// timeout resolves the auction deadline from the request's tmax, applying the
// configured default when absent and the configured ceiling always.
func (deps *endpointDeps) timeout(req *openrtb.BidRequest) time.Duration {
	ms := uint64(req.TMax)
	if req.TMax <= 0 {
		ms = deps.cfg.Auction.DefaultTimeoutMS
	}
	if ms > deps.cfg.Auction.MaxTimeoutMS {
		ms = deps.cfg.Auction.MaxTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

func validateRequest(req *openrtb.BidRequest) error {
	if req.ID == "" {
		return &errortypes.BadInput{Message: "request missing required field: \"id\""}
	}

	if req.TMax < 0 {
		return &errortypes.BadInput{Message: fmt.Sprintf("request.tmax must be nonnegative. Got %d", req.TMax)}
	}

	if len(req.Imp) < 1 {
		return &errortypes.BadInput{Message: "request.imp must contain at least one element."}
	}

	for index, imp := range req.Imp {
		if err := validateImp(&imp, index); err != nil {
			return err
		}
	}

	if req.User == nil || req.User.ID == "" {
		return &errortypes.BadInput{Message: "request.user.id is required for frequency capping and duplicate suppression."}
	}

	if geo := requestGeo(req); geo != nil {
		if geo.Lat < -90 || geo.Lat > 90 {
			return &errortypes.BadInput{Message: fmt.Sprintf("request geo.lat must be in [-90, 90]. Got %f", geo.Lat)}
		}
		if geo.Lon < -180 || geo.Lon > 180 {
			return &errortypes.BadInput{Message: fmt.Sprintf("request geo.lon must be in [-180, 180]. Got %f", geo.Lon)}
		}
	}

	return nil
}

func validateImp(imp *openrtb.Imp, index int) error {
	if imp.ID == "" {
		return &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d] missing required field: \"id\"", index)}
	}

	if imp.BidFloor < 0 {
		return &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d].bidfloor must be nonnegative. Got %f", index, imp.BidFloor)}
	}

	if imp.Banner != nil {
		for fmtIndex, format := range imp.Banner.Format {
			if format.W == 0 || format.H == 0 {
				return &errortypes.BadInput{Message: fmt.Sprintf("request.imp[%d].banner.format[%d] must define a non-zero \"w\" and \"h\"", index, fmtIndex)}
			}
		}
	}

	return nil
}

// requestGeo prefers user geo over device geo, matching how campaigns target people
// rather than hardware.
func requestGeo(req *openrtb.BidRequest) *openrtb.Geo {
	if req.User != nil && req.User.Geo != nil {
		return req.User.Geo
	}
	if req.Device != nil && req.Device.Geo != nil {
		return req.Device.Geo
	}
	return nil
}

// fillDevice backfills the device object from the User-Agent header so external bid
// sources see it even when the caller omitted it.
func fillDevice(req *openrtb.BidRequest, rawUA string) {
	if rawUA == "" {
		return
	}
	if req.Device != nil && req.Device.UA != "" {
		return
	}
	if req.Device == nil {
		req.Device = &openrtb.Device{}
	}
	req.Device.UA = rawUA
	if ua := user_agent.New(rawUA); ua != nil {
		req.Device.OS = ua.OS()
		req.Device.Model = ua.Platform()
	}
}

// buildAuctionRequest lifts the wire request into the typed form the exchange
// consumes. Only the first impression is auctioned; the rest travel untouched to
// external sources inside the forwarded wire request.
func buildAuctionRequest(wireReq *openrtb.BidRequest) *exchange.AuctionRequest {
	imp := wireReq.Imp[0]

	req := &exchange.AuctionRequest{
		ID:         wireReq.ID,
		UserID:     wireReq.User.ID,
		ImpID:      imp.ID,
		FloorPrice: imp.BidFloor,
		OpenRTB:    wireReq,
		StartTime:  time.Now(),
	}

	if geo := requestGeo(wireReq); geo != nil {
		req.Lat = geo.Lat
		req.Lon = geo.Lon
	}

	if imp.Banner != nil {
		if imp.Banner.W != nil {
			req.ImpW = *imp.Banner.W
		}
		if imp.Banner.H != nil {
			req.ImpH = *imp.Banner.H
		}
		if req.ImpW == 0 && len(imp.Banner.Format) > 0 {
			req.ImpW = imp.Banner.Format[0].W
			req.ImpH = imp.Banner.Format[0].H
		}
	}

	req.Interests, req.AgeGroup = parseUserExt(wireReq.User)
	return req
}

// parseUserExt pulls targeting signals out of user.ext:
//
//	{"interests": ["sports", "tech"], "age_group": "25-34"}
//
// Falls back to the standard user.keywords field (comma separated) for interests
// when the ext is absent.
func parseUserExt(user *openrtb.User) (interests []string, ageGroup string) {
	if len(user.Ext) > 0 {
		jsonparser.ArrayEach(user.Ext, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			if dataType == jsonparser.String {
				interests = append(interests, string(value))
			}
		}, "interests")
		if v, err := jsonparser.GetString(user.Ext, "age_group"); err == nil {
			ageGroup = v
		}
	}

	if len(interests) == 0 && user.Keywords != "" {
		for _, kw := range strings.Split(user.Keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				interests = append(interests, kw)
			}
		}
	}
	return interests, ageGroup
}
