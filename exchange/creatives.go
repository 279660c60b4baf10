package exchange

import (
	"github.com/spaolacci/murmur3"

	"github.com/bidforge/bidforge/campaigns"
)

// pickCreative rotates through a campaign's creatives keyed on the request ID. The
// selection is a pure function of its inputs, so replaying a request reproduces the
// same creative, which keeps auctions over an identical candidate set reproducible.
func pickCreative(requestID string, creatives []campaigns.Creative) *campaigns.Creative {
	if len(creatives) == 0 {
		return nil
	}
	h := murmur3.Sum32([]byte(requestID))
	return &creatives[int(h%uint32(len(creatives)))]
}
