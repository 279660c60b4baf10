package campaigns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeSnapshot(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "campaigns.json")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSnapshot(t, `[
		{"id": "c1", "bid_price": 2.5, "active": true, "interests": ["sports"]},
		{"id": "c2", "bid_price": 1.0, "active": true, "zones": [{"lat": 40, "lon": -74, "radius_km": 5}]}
	]`)
	store := NewStore(NewIndex(0.1, 64))

	loaded, err := LoadFile(path, store)

	assert.NoError(t, err)
	assert.Equal(t, 2, loaded)
	c, ok := store.Get("c1")
	if assert.True(t, ok) {
		assert.Equal(t, 2.5, c.BidPrice)
		assert.Equal(t, []string{"sports"}, c.Interests)
	}
}

func TestLoadFileSkipsInvalidEntries(t *testing.T) {
	path := writeSnapshot(t, `[
		{"id": "", "bid_price": 2.5},
		{"id": "bad", "bid_price": -1},
		{"id": "good", "bid_price": 1}
	]`)
	store := NewStore(NewIndex(0.1, 64))

	loaded, err := LoadFile(path, store)

	assert.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, store.Len())
}

func TestLoadFileMissing(t *testing.T) {
	store := NewStore(NewIndex(0.1, 64))
	_, err := LoadFile("/nonexistent/campaigns.json", store)
	assert.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeSnapshot(t, `{not json`)
	store := NewStore(NewIndex(0.1, 64))
	_, err := LoadFile(path, store)
	assert.Error(t, err)
}
