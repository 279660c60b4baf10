package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newDefaultedConfig(t *testing.T) (*viper.Viper, *Configuration) {
	v := viper.New()
	SetupViper(v, "")
	cfg, err := New(v)
	if err != nil {
		t.Fatalf("defaults should produce a valid config: %v", err)
	}
	return v, cfg
}

func TestDefaults(t *testing.T) {
	_, cfg := newDefaultedConfig(t)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, uint64(100), cfg.Auction.DefaultTimeoutMS)
	assert.Equal(t, 0.01, cfg.Auction.PriceIncrement)
	assert.Equal(t, 3, cfg.Auction.MaxCommitRetries)
	assert.Equal(t, 0.01, cfg.Dedupe.FalsePositiveRate)
	assert.Empty(t, cfg.BidSources)
}

func TestFullConfig(t *testing.T) {
	cfgData := `
port: 9000
auction:
  default_timeout_ms: 80
  max_timeout_ms: 200
bid_sources:
  - name: sourceA
    endpoint: http://bids.sourcea.test/rtb
    seat: seat-a
`
	v := viper.New()
	SetupViper(v, "")
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(cfgData)); err != nil {
		t.Fatalf("failed to read test config: %v", err)
	}

	cfg, err := New(v)
	assert.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, uint64(80), cfg.Auction.DefaultTimeoutMS)
	if assert.Len(t, cfg.BidSources, 1) {
		assert.Equal(t, "sourceA", cfg.BidSources[0].Name)
		assert.Equal(t, "http://bids.sourcea.test/rtb", cfg.BidSources[0].Endpoint)
	}
}

func TestInvalidTimeouts(t *testing.T) {
	v, _ := newDefaultedConfig(t)
	v.Set("auction.max_timeout_ms", 10) // below the default timeout

	_, err := New(v)
	assert.Error(t, err)
}

func TestInvalidFalsePositiveRate(t *testing.T) {
	v, _ := newDefaultedConfig(t)
	v.Set("dedupe.false_positive_rate", 1.5)

	_, err := New(v)
	assert.Error(t, err)
}

func TestBidSourceMissingEndpoint(t *testing.T) {
	v, _ := newDefaultedConfig(t)
	v.Set("bid_sources", []map[string]interface{}{{"name": "broken"}})

	_, err := New(v)
	assert.Error(t, err)
}
