package router

import (
	"net/http"
	"net/http/pprof"

	"github.com/bidforge/bidforge/endpoints"
)

// Admin builds the handler tree served on the admin port. It is never exposed to the
// public internet.
func Admin(revision string, r *Router) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", endpoints.NewVersionEndpoint(version, revision))
	mux.HandleFunc("/budgets", endpoints.NewBudgetsEndpoint(r.Campaigns, r.Ledger))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// version is the latest release tag. Bumped as part of the release checklist.
const version = "0.1.0"
