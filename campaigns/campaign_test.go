package campaigns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEligibleAt(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		description string
		campaign    Campaign
		eligible    bool
	}{
		{
			description: "active inside flight dates",
			campaign: Campaign{
				Active:    true,
				StartDate: now.Add(-24 * time.Hour),
				EndDate:   now.Add(24 * time.Hour),
			},
			eligible: true,
		},
		{
			description: "inactive flag wins over dates",
			campaign: Campaign{
				Active:    false,
				StartDate: now.Add(-24 * time.Hour),
				EndDate:   now.Add(24 * time.Hour),
			},
			eligible: false,
		},
		{
			description: "not started yet",
			campaign:    Campaign{Active: true, StartDate: now.Add(time.Hour)},
			eligible:    false,
		},
		{
			description: "already ended",
			campaign:    Campaign{Active: true, EndDate: now.Add(-time.Hour)},
			eligible:    false,
		},
		{
			description: "open-ended flight",
			campaign:    Campaign{Active: true},
			eligible:    true,
		},
		{
			description: "negative bid price never serves",
			campaign:    Campaign{Active: true, BidPrice: -1},
			eligible:    false,
		},
	}

	for _, test := range testCases {
		assert.Equal(t, test.eligible, test.campaign.EligibleAt(now), test.description)
	}
}

func TestInterestOverlap(t *testing.T) {
	c := Campaign{Interests: []string{"sports", "travel", "music"}}

	assert.Equal(t, 2, c.InterestOverlap([]string{"travel", "music", "cooking"}))
	assert.Equal(t, 0, c.InterestOverlap([]string{"cooking"}))
	assert.Equal(t, 0, c.InterestOverlap(nil))
	assert.Equal(t, 0, Campaign{}.InterestOverlap([]string{"sports"}))
}

func TestProximity(t *testing.T) {
	c := Campaign{Zones: []Zone{{Lat: 40.7128, Lon: -74.0060, RadiusKM: 10}}}

	assert.InDelta(t, 1.0, c.Proximity(40.7128, -74.0060), 1e-9, "zone center scores 1")
	assert.Zero(t, c.Proximity(34.0522, -118.2437), "far outside the zone scores 0")

	near := c.Proximity(40.7400, -74.0060) // about 3km north
	assert.Greater(t, near, 0.0)
	assert.Less(t, near, 1.0)
}

func TestProximityPicksNearestZone(t *testing.T) {
	c := Campaign{Zones: []Zone{
		{Lat: 0, Lon: 0, RadiusKM: 100},
		{Lat: 0.05, Lon: 0, RadiusKM: 100},
	}}

	// The request sits on the second zone's center, so the best proximity is exactly 1.
	assert.InDelta(t, 1.0, c.Proximity(0.05, 0), 1e-9)
}

func TestContainsLocation(t *testing.T) {
	c := Campaign{Zones: []Zone{{Lat: 51.5074, Lon: -0.1278, RadiusKM: 5}}}

	assert.True(t, c.ContainsLocation(51.51, -0.13))
	assert.False(t, c.ContainsLocation(48.8566, 2.3522))
	assert.False(t, Campaign{}.ContainsLocation(51.51, -0.13), "no zones means no geo coverage")
}

func TestMatchesAgeGroup(t *testing.T) {
	assert.True(t, Campaign{}.MatchesAgeGroup("25-34"), "no age targeting matches everyone")
	assert.True(t, Campaign{AgeGroups: []string{"18-24", "25-34"}}.MatchesAgeGroup("25-34"))
	assert.False(t, Campaign{AgeGroups: []string{"18-24"}}.MatchesAgeGroup("55+"))
}
