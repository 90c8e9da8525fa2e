// Package config exposes strongly typed application configuration loaded from YAML,
// plus broker credentials pulled from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Broker describes connectivity to the trading API.
type Broker struct {
	APIURL    string `yaml:"api_url"`
	StreamURL string `yaml:"stream_url"`
	// Mode selects "paper" (simulated fills, no live orders) or "live".
	Mode string `yaml:"mode"`
}

// Feed configures bar aggregation over the pricing stream.
type Feed struct {
	Instruments    []string `yaml:"instruments"`
	BarSeconds     int      `yaml:"bar_seconds"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Provider       string   `yaml:"provider"`
}

// Risk encodes sizing and exit guard-rails for the engine.
type Risk struct {
	BasePct           float64 `yaml:"base_pct"`
	SLMult            float64 `yaml:"sl_mult"`
	TPMult            float64 `yaml:"tp_mult"`
	ATRPeriod         int     `yaml:"atr_period"`
	MaxHoldBars       int     `yaml:"max_hold_bars"`
	CooldownSeconds   int     `yaml:"cooldown_seconds"`
	DrawdownThreshold float64 `yaml:"drawdown_threshold"`
}

// Bandit configures the UCB1 meta-optimizer.
type Bandit struct {
	Rounds          int    `yaml:"rounds"`
	Granularity     string `yaml:"granularity"`
	CandleCount     int    `yaml:"candle_count"`
	Warmup          int    `yaml:"warmup"`
	RecalibrateCron string `yaml:"recalibrate_cron"`
}

// Strategies lists the enabled signal generators and their parameter bundles.
type Strategies struct {
	Enabled []string                      `yaml:"enabled"`
	Params  map[string]map[string]float64 `yaml:"params"`
}

// TradeLog selects where closed trades and placed orders are persisted.
type TradeLog struct {
	Driver string `yaml:"driver"` // csv, sqlite, or none
	Path   string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App                  App        `yaml:"app"`
	Broker               Broker     `yaml:"broker"`
	Feed                 Feed       `yaml:"feed"`
	Risk                 Risk       `yaml:"risk"`
	Bandit               Bandit     `yaml:"bandit"`
	Strategies           Strategies `yaml:"strategies"`
	TradeLog             TradeLog   `yaml:"trade_log"`
	EquityRefreshSeconds int        `yaml:"equity_refresh_seconds"`
	WatchSeconds         int        `yaml:"watch_seconds"`
}

// Load reads a YAML file from disk and hydrates a Config struct with defaults applied.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.BarSeconds <= 0 {
		c.Feed.BarSeconds = 5
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = 300
	}
	if c.Risk.BasePct <= 0 {
		c.Risk.BasePct = 0.01
	}
	if c.Risk.SLMult <= 0 {
		c.Risk.SLMult = 1.0
	}
	if c.Risk.TPMult <= 0 {
		c.Risk.TPMult = 2.0
	}
	if c.Risk.ATRPeriod <= 0 {
		c.Risk.ATRPeriod = 14
	}
	if c.Risk.DrawdownThreshold <= 0 {
		c.Risk.DrawdownThreshold = 0.05
	}
	if c.Bandit.Rounds <= 0 {
		c.Bandit.Rounds = 50
	}
	if c.Bandit.Granularity == "" {
		c.Bandit.Granularity = "H1"
	}
	if c.Bandit.CandleCount <= 0 {
		c.Bandit.CandleCount = 2000
	}
	if c.EquityRefreshSeconds <= 0 {
		c.EquityRefreshSeconds = 30
	}
	if c.WatchSeconds <= 0 {
		c.WatchSeconds = 60
	}
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.Feed.Instruments) == 0 {
		return fmt.Errorf("feed.instruments must not be empty")
	}
	if len(c.Strategies.Enabled) == 0 {
		return fmt.Errorf("strategies.enabled must not be empty")
	}
	if c.Broker.Mode != "" && c.Broker.Mode != "paper" && c.Broker.Mode != "live" {
		return fmt.Errorf("broker.mode must be paper or live, got %q", c.Broker.Mode)
	}
	return nil
}

// Credentials holds the broker secrets loaded from the environment.
type Credentials struct {
	Token     string
	AccountID string
	Env       string
}

// LoadCredentials reads broker credentials from a .env file (if present) and
// the environment, failing fast when they are missing or malformed. This is
// the only place startup secrets are validated; the engine loop never sees a
// credential error mid-flight.
func LoadCredentials() (Credentials, error) {
	_ = godotenv.Load()

	creds := Credentials{
		Token:     os.Getenv("OANDA_TOKEN"),
		AccountID: os.Getenv("OANDA_ACCOUNT_ID"),
		Env:       os.Getenv("OANDA_ENV"),
	}
	if creds.Env == "" {
		creds.Env = "practice"
	}
	if len(creds.Token) < 30 {
		return Credentials{}, fmt.Errorf("OANDA_TOKEN is missing or looks too short")
	}
	if len(creds.AccountID) < 6 {
		return Credentials{}, fmt.Errorf("OANDA_ACCOUNT_ID is missing or looks wrong")
	}
	return creds, nil
}
