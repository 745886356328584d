package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Values load from YAML and may be
// overridden by environment variables afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		// Symbols is the supported instrument set, e.g. [SOLUSDT, ETHUSDT].
		// Fixed at start; subscriptions and filters derive from it.
		Symbols       []string `yaml:"symbols"`
		PriceDecimals int32    `yaml:"price_decimals"`
		SpreadBps     int64    `yaml:"spread_bps"`
	} `yaml:"market"`

	Feed struct {
		WSURL              string `yaml:"ws_url"`
		RestURL            string `yaml:"rest_url"`
		BackfillIntervalMS int    `yaml:"backfill_interval_ms"`
	} `yaml:"feed"`

	Trading struct {
		Leverages       []int  `yaml:"leverages"`
		WatchIntervalMS int    `yaml:"watch_interval_ms"`
		DemoAccountID   string `yaml:"demo_account_id"`
		DemoBalance     int64  `yaml:"demo_balance_cents"`
	} `yaml:"trading"`

	Stream struct {
		ListenAddr     string `yaml:"listen_addr"`
		HeartbeatMS    int    `yaml:"heartbeat_ms"`
		PingIntervalMS int    `yaml:"ping_interval_ms"`
	} `yaml:"stream"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies defaults,
// environment overrides and validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a runnable configuration without a file, used when
// no config path is given.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	overrideWithEnv(&cfg)
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "exness-be"
	}
	if len(c.Market.Symbols) == 0 {
		c.Market.Symbols = []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"}
	}
	if c.Market.PriceDecimals == 0 {
		c.Market.PriceDecimals = 4
	}
	if c.Market.SpreadBps == 0 {
		c.Market.SpreadBps = 100
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = "wss://stream.binance.com:9443/stream"
	}
	if c.Feed.RestURL == "" {
		c.Feed.RestURL = "https://api.binance.com"
	}
	if c.Feed.BackfillIntervalMS == 0 {
		c.Feed.BackfillIntervalMS = 25_000
	}
	if len(c.Trading.Leverages) == 0 {
		c.Trading.Leverages = []int{1, 5, 10, 20, 100}
	}
	if c.Trading.WatchIntervalMS == 0 {
		c.Trading.WatchIntervalMS = 5_000
	}
	if c.Trading.DemoAccountID == "" {
		c.Trading.DemoAccountID = "demo"
	}
	if c.Trading.DemoBalance == 0 {
		c.Trading.DemoBalance = 500_000 // $5,000.00
	}
	if c.Stream.ListenAddr == "" {
		c.Stream.ListenAddr = ":3000"
	}
	if c.Stream.HeartbeatMS == 0 {
		c.Stream.HeartbeatMS = 2_000
	}
	if c.Stream.PingIntervalMS == 0 {
		c.Stream.PingIntervalMS = 30_000
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "exness.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if !strings.HasPrefix(c.Feed.RestURL, "http://") && !strings.HasPrefix(c.Feed.RestURL, "https://") {
		return fmt.Errorf("invalid feed REST URL: %s", c.Feed.RestURL)
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("at least one market symbol is required")
	}
	for _, s := range c.Market.Symbols {
		if s != strings.ToUpper(s) || !strings.HasSuffix(s, "USDT") {
			return fmt.Errorf("symbols must be upper-case USDT pairs, got %q", s)
		}
	}
	if c.Market.PriceDecimals < 0 || c.Market.PriceDecimals > 8 {
		return fmt.Errorf("price decimals must be within [0,8], got %d", c.Market.PriceDecimals)
	}
	if c.Market.SpreadBps < 0 || c.Market.SpreadBps > 10_000 {
		return fmt.Errorf("spread bps must be within [0,10000], got %d", c.Market.SpreadBps)
	}
	for _, l := range c.Trading.Leverages {
		if l <= 0 {
			return fmt.Errorf("leverage values must be positive, got %d", l)
		}
	}
	if c.Trading.WatchIntervalMS <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}
	if c.Stream.HeartbeatMS <= 0 || c.Stream.PingIntervalMS <= 0 {
		return fmt.Errorf("stream intervals must be positive")
	}
	return nil
}

// overrideWithEnv lets deployment override file settings without editing it.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("EXNESS_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("EXNESS_LISTEN_ADDR"); v != "" {
		cfg.Stream.ListenAddr = v
	}
	if v := os.Getenv("EXNESS_SYMBOLS"); v != "" {
		parts := strings.Split(v, ",")
		syms := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p != "" {
				syms = append(syms, p)
			}
		}
		if len(syms) > 0 {
			cfg.Market.Symbols = syms
		}
	}
	if v := os.Getenv("EXNESS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
