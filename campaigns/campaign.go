package campaigns

import (
	"math"
	"time"
)

// Campaign is a read replica of a campaign definition owned by the external campaign
// management system. All fields are read-only inside the auction core; accumulated
// spend lives in the budget ledger, keyed by campaign ID.
type Campaign struct {
	ID           string     `json:"id"`
	AdvertiserID string     `json:"advertiser_id"`
	BidPrice     float64    `json:"bid_price"`
	DailyBudget  float64    `json:"daily_budget"`
	BidType      string     `json:"bid_type"`
	Interests    []string   `json:"interests"`
	AgeGroups    []string   `json:"age_groups"`
	Zones        []Zone     `json:"zones"`
	Creatives    []Creative `json:"creatives"`
	// OwnerEndpoint receives fire-and-forget win notifications.
	OwnerEndpoint string    `json:"owner_endpoint"`
	Active        bool      `json:"active"`
	Priority      int       `json:"priority"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// Zone is a circular geo target.
type Zone struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKM float64 `json:"radius_km"`
}

// Creative is opaque markup supplied by the external creative service.
type Creative struct {
	ID     string `json:"id"`
	Markup string `json:"markup"`
	W      uint64 `json:"w"`
	H      uint64 `json:"h"`
}

// EligibleAt reports whether the campaign may serve at the given instant.
func (c Campaign) EligibleAt(now time.Time) bool {
	if !c.Active || c.BidPrice < 0 {
		return false
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return false
	}
	return true
}

// MatchesAgeGroup reports whether the campaign targets the given age group.
// Campaigns with no age targeting match everyone.
func (c Campaign) MatchesAgeGroup(group string) bool {
	if len(c.AgeGroups) == 0 {
		return true
	}
	for _, g := range c.AgeGroups {
		if g == group {
			return true
		}
	}
	return false
}

// InterestOverlap counts the interests shared between the campaign and the request.
func (c Campaign) InterestOverlap(interests []string) int {
	if len(c.Interests) == 0 || len(interests) == 0 {
		return 0
	}
	targeted := make(map[string]struct{}, len(c.Interests))
	for _, it := range c.Interests {
		targeted[it] = struct{}{}
	}
	overlap := 0
	for _, it := range interests {
		if _, ok := targeted[it]; ok {
			overlap++
		}
	}
	return overlap
}

// Proximity returns the best zone proximity for a location: 1 at a zone center decaying
// linearly to 0 at the zone edge, and 0 outside every zone. Campaigns with no zones
// report 0; they are not penalized elsewhere, just earn no proximity bonus.
func (c Campaign) Proximity(lat, lon float64) float64 {
	best := 0.0
	for _, z := range c.Zones {
		if z.RadiusKM <= 0 {
			continue
		}
		d := haversineKM(lat, lon, z.Lat, z.Lon)
		if d >= z.RadiusKM {
			continue
		}
		if p := 1 - d/z.RadiusKM; p > best {
			best = p
		}
	}
	return best
}

// ContainsLocation reports whether any target zone covers the location.
func (c Campaign) ContainsLocation(lat, lon float64) bool {
	for _, z := range c.Zones {
		if z.RadiusKM > 0 && haversineKM(lat, lon, z.Lat, z.Lon) <= z.RadiusKM {
			return true
		}
	}
	return false
}

const earthRadiusKM = 6371.0

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
