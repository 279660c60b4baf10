package endpoints

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/bidforge/bidforge/budget"
	"github.com/bidforge/bidforge/campaigns"
)

// campaignBudgetInfo holds the spend position of one campaign.
type campaignBudgetInfo struct {
	CampaignID   string  `json:"campaign_id"`
	AdvertiserID string  `json:"advertiser_id"`
	DailyBudget  float64 `json:"daily_budget"`
	Spent        float64 `json:"spent"`
	Remaining    float64 `json:"remaining"`
}

type budgetsInfo struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Campaigns   []campaignBudgetInfo `json:"campaigns"`
}

// NewBudgetsEndpoint reports the current spend position of every registered campaign.
// Spend moves on every won auction, so the response is assembled per request.
func NewBudgetsEndpoint(store *campaigns.Store, ledger *budget.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		all := store.All()
		info := budgetsInfo{
			GeneratedAt: time.Now().UTC(),
			Campaigns:   make([]campaignBudgetInfo, 0, len(all)),
		}
		for _, c := range all {
			info.Campaigns = append(info.Campaigns, campaignBudgetInfo{
				CampaignID:   c.ID,
				AdvertiserID: c.AdvertiserID,
				DailyBudget:  c.DailyBudget,
				Spent:        ledger.Spent(c.ID),
				Remaining:    ledger.Remaining(c.ID),
			})
		}
		sort.Slice(info.Campaigns, func(i, j int) bool {
			return info.Campaigns[i].CampaignID < info.Campaigns[j].CampaignID
		})

		body, err := json.Marshal(info)
		if err != nil {
			glog.Errorf("/budgets marshaling error: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}
