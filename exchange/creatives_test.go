package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bidforge/bidforge/campaigns"
)

func TestPickCreativeDeterministic(t *testing.T) {
	creatives := []campaigns.Creative{
		{ID: "cr-1"},
		{ID: "cr-2"},
		{ID: "cr-3"},
	}

	first := pickCreative("request-42", creatives)
	if !assert.NotNil(t, first) {
		return
	}
	for i := 0; i < 20; i++ {
		again := pickCreative("request-42", creatives)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestPickCreativeVariesByRequest(t *testing.T) {
	creatives := []campaigns.Creative{
		{ID: "cr-1"},
		{ID: "cr-2"},
		{ID: "cr-3"},
		{ID: "cr-4"},
	}

	picked := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		c := pickCreative(string(rune('a'+i%26))+"-req", creatives)
		picked[c.ID] = struct{}{}
	}
	assert.Greater(t, len(picked), 1, "rotation should spread across creatives")
}

func TestPickCreativeEmpty(t *testing.T) {
	assert.Nil(t, pickCreative("request-42", nil))
	assert.Nil(t, pickCreative("request-42", []campaigns.Creative{}))
}
