package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	EnableGzip  bool   `mapstructure:"enable_gzip"`

	// MaxConcurrentAuctions bounds the number of auctions in flight at once. Requests
	// arriving past the bound are rejected outright rather than queued.
	MaxConcurrentAuctions int `mapstructure:"max_concurrent_auctions"`

	Auction    Auction     `mapstructure:"auction"`
	Index      Index       `mapstructure:"campaign_index"`
	Frequency  Frequency   `mapstructure:"frequency"`
	Dedupe     Dedupe      `mapstructure:"dedupe"`
	BidSources []BidSource `mapstructure:"bid_sources"`
	WinNotify  WinNotify   `mapstructure:"win_notify"`
	Metrics    Metrics     `mapstructure:"metrics"`
	RateLimit  RateLimit   `mapstructure:"rate_limit"`

	// CampaignsFile points at a JSON snapshot of campaign definitions pulled from the
	// external campaign management system. Optional; the store starts empty without it.
	CampaignsFile string `mapstructure:"campaigns_file"`
}

// Auction configures the auction core.
type Auction struct {
	// DefaultTimeoutMS is applied when a request carries no tmax.
	DefaultTimeoutMS uint64 `mapstructure:"default_timeout_ms"`
	// MaxTimeoutMS caps the tmax a request may ask for.
	MaxTimeoutMS uint64 `mapstructure:"max_timeout_ms"`
	// PriceIncrement is the minimal currency unit added to the second price.
	PriceIncrement float64 `mapstructure:"price_increment"`
	// MaxCommitRetries bounds the cascade to lower bids when a budget commit loses a race.
	MaxCommitRetries int `mapstructure:"max_commit_retries"`
}

// Index configures the campaign index geometry.
type Index struct {
	// CellSizeDegrees is the coarse grid cell edge, in degrees of latitude.
	CellSizeDegrees float64 `mapstructure:"cell_size_degrees"`
	// MaxCellsPerCampaign demotes campaigns whose zones would cover more cells than
	// this to the global bucket.
	MaxCellsPerCampaign int `mapstructure:"max_cells_per_campaign"`
}

// Frequency configures the per-user exposure cap.
type Frequency struct {
	Cap           int    `mapstructure:"cap"`
	WindowMinutes uint64 `mapstructure:"window_minutes"`
	Shards        int    `mapstructure:"shards"`
}

// Dedupe configures the duplicate suppression filter.
type Dedupe struct {
	ExpectedItems     uint64  `mapstructure:"expected_items"`
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
	RotationMinutes   uint64  `mapstructure:"rotation_minutes"`
}

// BidSource identifies one external bid source solicited during the auction.
type BidSource struct {
	Name     string `mapstructure:"name"`     // Required, unique
	Endpoint string `mapstructure:"endpoint"` // Required
	Seat     string `mapstructure:"seat"`
}

// WinNotify configures the fire-and-forget win notification sender.
type WinNotify struct {
	TimeoutMS uint64 `mapstructure:"timeout_ms"`
}

type Metrics struct {
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

// PrometheusMetrics configures the Prometheus metrics sidecar server.
type PrometheusMetrics struct {
	Port             int    `mapstructure:"port"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

// Timeout returns the maximum allowed time for a Prometheus scrape.
func (m *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(m.TimeoutMillisRaw) * time.Millisecond
}

// RateLimit configures per-IP request throttling on the auction endpoint.
type RateLimit struct {
	Enabled              bool    `mapstructure:"enabled"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
}

func (cfg *Configuration) validate() error {
	if cfg.Port <= 0 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Auction.DefaultTimeoutMS == 0 {
		return errors.New("auction.default_timeout_ms must be positive")
	}
	if cfg.Auction.MaxTimeoutMS < cfg.Auction.DefaultTimeoutMS {
		return fmt.Errorf("auction.max_timeout_ms (%d) must be at least auction.default_timeout_ms (%d)",
			cfg.Auction.MaxTimeoutMS, cfg.Auction.DefaultTimeoutMS)
	}
	if cfg.Auction.PriceIncrement <= 0 {
		return errors.New("auction.price_increment must be positive")
	}
	if cfg.Auction.MaxCommitRetries < 0 {
		return errors.New("auction.max_commit_retries must not be negative")
	}
	if cfg.Index.CellSizeDegrees <= 0 {
		return errors.New("campaign_index.cell_size_degrees must be positive")
	}
	if cfg.Frequency.Cap < 0 {
		return errors.New("frequency.cap must not be negative")
	}
	if cfg.Dedupe.FalsePositiveRate <= 0 || cfg.Dedupe.FalsePositiveRate >= 1 {
		return fmt.Errorf("dedupe.false_positive_rate must be in (0, 1). Got %f", cfg.Dedupe.FalsePositiveRate)
	}
	for i, src := range cfg.BidSources {
		if src.Name == "" {
			return fmt.Errorf("bid_sources[%d] missing required field: \"name\"", i)
		}
		if src.Endpoint == "" {
			return fmt.Errorf("bid_sources[%d] missing required field: \"endpoint\"", i)
		}
	}
	return nil
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	glog.Infof("config: auction timeout default %dms, max %dms, %d external bid sources",
		c.Auction.DefaultTimeoutMS, c.Auction.MaxTimeoutMS, len(c.BidSources))
	return &c, nil
}

// SetupViper sets the viper defaults and environment bindings.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("max_concurrent_auctions", 512)

	v.SetDefault("auction.default_timeout_ms", 100)
	v.SetDefault("auction.max_timeout_ms", 500)
	v.SetDefault("auction.price_increment", 0.01)
	v.SetDefault("auction.max_commit_retries", 3)

	v.SetDefault("campaign_index.cell_size_degrees", 0.1)
	v.SetDefault("campaign_index.max_cells_per_campaign", 256)

	v.SetDefault("frequency.cap", 3)
	v.SetDefault("frequency.window_minutes", 60)
	v.SetDefault("frequency.shards", 64)

	v.SetDefault("dedupe.expected_items", 1000)
	v.SetDefault("dedupe.false_positive_rate", 0.01)
	v.SetDefault("dedupe.rotation_minutes", 1440)

	v.SetDefault("win_notify.timeout_ms", 250)

	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests_per_second", 0)

	v.SetDefault("campaigns_file", "")

	v.SetEnvPrefix("BIDFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.ReadInConfig()
}
