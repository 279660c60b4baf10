package router

import (
	"net"
	"net/http"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"

	"github.com/bidforge/bidforge/budget"
	"github.com/bidforge/bidforge/campaigns"
	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/dedupe"
	"github.com/bidforge/bidforge/endpoints"
	"github.com/bidforge/bidforge/endpoints/openrtb2"
	"github.com/bidforge/bidforge/events"
	"github.com/bidforge/bidforge/exchange"
	"github.com/bidforge/bidforge/frequency"
	metricsconfig "github.com/bidforge/bidforge/metrics/config"
	"github.com/bidforge/bidforge/scoring"
	"github.com/bidforge/bidforge/util/queue"
)

// Router wires the auction pipeline together and exposes the HTTP routes. The exported
// fields give main access to the pieces that need periodic maintenance.
type Router struct {
	*httprouter.Router
	MetricsEngine *metricsconfig.DetailedMetricsEngine
	Campaigns     *campaigns.Store
	Ledger        *budget.Ledger
	SeenFilter    *dedupe.Filter
}

func New(cfg *config.Configuration) (r *Router, err error) {
	r = &Router{
		Router: httprouter.New(),
	}

	generalHTTPClient := &http.Client{
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   1 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			MaxIdleConns:        400,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}

	r.MetricsEngine = metricsconfig.NewMetricsEngine(cfg, gometrics.NewPrefixedRegistry("bidforge."))

	index := campaigns.NewIndex(cfg.Index.CellSizeDegrees, cfg.Index.MaxCellsPerCampaign)
	r.Campaigns = campaigns.NewStore(index)
	r.Ledger = budget.NewLedger()
	if cfg.CampaignsFile != "" {
		count, err := campaigns.LoadFile(cfg.CampaignsFile, r.Campaigns)
		if err != nil {
			return nil, err
		}
		glog.Infof("Loaded %d campaigns from %s", count, cfg.CampaignsFile)
	}
	for _, c := range r.Campaigns.All() {
		r.Ledger.Register(c.ID, c.DailyBudget)
	}

	freq := frequency.NewTracker(cfg.Frequency.Shards)
	r.SeenFilter = dedupe.NewFilter(cfg.Dedupe.ExpectedItems, cfg.Dedupe.FalsePositiveRate)

	sources := make([]exchange.BidSource, 0, len(cfg.BidSources))
	for _, sourceCfg := range cfg.BidSources {
		sources = append(sources, exchange.NewHTTPBidSource(sourceCfg, generalHTTPClient))
	}

	notifier := events.NewNotifier(time.Duration(cfg.WinNotify.TimeoutMS) * time.Millisecond)

	ex := exchange.NewExchange(r.Campaigns, index, freq, r.SeenFilter, r.Ledger,
		scoring.NewScorer(), sources, notifier, r.MetricsEngine, cfg)

	gate := queue.NewGate(cfg.MaxConcurrentAuctions)
	auctionEndpoint, err := openrtb2.NewEndpoint(ex, cfg, r.MetricsEngine, gate)
	if err != nil {
		return nil, err
	}

	r.POST("/openrtb2/auction", limitByIP(cfg.RateLimit, auctionEndpoint))
	r.GET("/status", endpoints.NewStatusEndpoint(r.Campaigns, r.Ledger))

	return r, nil
}

// limitByIP throttles a route per client IP. Disabled configs pass the handle through
// untouched.
func limitByIP(cfg config.RateLimit, handle httprouter.Handle) httprouter.Handle {
	if !cfg.Enabled || cfg.MaxRequestsPerSecond <= 0 {
		return handle
	}
	lmt := tollbooth.NewLimiter(cfg.MaxRequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(`{"error": "rate limit exceeded"}`)

	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		if httpError := tollbooth.LimitByRequest(lmt, w, req); httpError != nil {
			w.Header().Set("Content-Type", lmt.GetMessageContentType())
			w.WriteHeader(httpError.StatusCode)
			w.Write([]byte(lmt.GetMessage()))
			return
		}
		handle(w, req, params)
	}
}

type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS allows browser-side integrations to call the auction endpoint from any
// origin. Responses carry no credentials, only bid markup.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
