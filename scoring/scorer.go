package scoring

import (
	"github.com/golang/glog"

	"github.com/bidforge/bidforge/campaigns"
)

// Signals are the request-side inputs to scoring.
type Signals struct {
	Lat       float64
	Lon       float64
	Interests []string
	AgeGroup  string
}

// Predictor is an external value-prediction collaborator. When configured, its output
// multiplies the score. A prediction failure costs the candidate the multiplier, never
// the auction.
type Predictor interface {
	Predict(signals Signals, campaign *campaigns.Campaign) (float64, error)
}

// Scorer computes the effective bid for a campaign against a request:
//
//	score = bid * (1 + interestWeight*overlap) * (1 + proximityWeight*proximity)
//
// where overlap counts shared interests and proximity decays linearly from the nearest
// covering zone's center to zero at its edge. The function is pure in its inputs, so
// scoring an identical candidate set is reproducible.
type Scorer struct {
	// InterestWeight is the score uplift per shared interest.
	InterestWeight float64
	// ProximityWeight scales the at-center uplift for geo proximity.
	ProximityWeight float64
	// Predictor is optional.
	Predictor Predictor
}

// NewScorer returns a Scorer with the standard uplifts and no predictor.
func NewScorer() *Scorer {
	return &Scorer{
		InterestWeight:  0.1,
		ProximityWeight: 0.5,
	}
}

// Score returns the effective bid price for the campaign. Campaigns bidding zero
// score zero regardless of targeting fit.
func (s *Scorer) Score(signals Signals, campaign *campaigns.Campaign) float64 {
	overlap := float64(campaign.InterestOverlap(signals.Interests))
	proximity := campaign.Proximity(signals.Lat, signals.Lon)

	score := campaign.BidPrice *
		(1 + s.InterestWeight*overlap) *
		(1 + s.ProximityWeight*proximity)

	if s.Predictor != nil {
		multiplier, err := s.Predictor.Predict(signals, campaign)
		if err != nil {
			glog.V(2).Infof("predictor failed for campaign %s: %v", campaign.ID, err)
		} else if multiplier > 0 {
			score *= multiplier
		}
	}

	return score
}
