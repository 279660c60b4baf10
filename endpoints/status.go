package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/bidforge/bidforge/budget"
	"github.com/bidforge/bidforge/campaigns"
)

type statusResponse struct {
	Status    string  `json:"status"`
	Campaigns int     `json:"campaigns"`
	SpentUSD  float64 `json:"spent_usd"`
}

// NewStatusEndpoint serves readiness checks. Load balancers only care about the status
// code; the body is for humans.
func NewStatusEndpoint(store *campaigns.Store, ledger *budget.Ledger) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		total := 0.0
		for _, c := range store.All() {
			total += ledger.Spent(c.ID)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Status:    "ok",
			Campaigns: store.Len(),
			SpentUSD:  total,
		})
	}
}
