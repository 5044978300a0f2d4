package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Edgex:   VenueConfig{Market: "10000001"},
		Paradex: VenueConfig{Market: "BTC-USD-PERP"},
		Strategy: StrategyConfig{
			TradeAmount: 0.01,
			OpenSpread:  80,
			CloseSpread: 20,
		},
	}
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Log.Level != "info" {
		t.Fatalf("log level default: %q", cfg.Log.Level)
	}
	if cfg.Edgex.RESTBaseURL == "" || cfg.Paradex.RESTBaseURL == "" {
		t.Fatal("venue base url defaults missing")
	}
	if cfg.Edgex.Timeout != 10*time.Second {
		t.Fatalf("venue timeout default: %v", cfg.Edgex.Timeout)
	}
	if cfg.Paradex.ReconnectDelay != 3*time.Second {
		t.Fatalf("reconnect delay default: %v", cfg.Paradex.ReconnectDelay)
	}
	if cfg.Strategy.TradeInterval != 5*time.Second {
		t.Fatalf("trade interval default: %v", cfg.Strategy.TradeInterval)
	}
	if cfg.Strategy.CloseLock != time.Minute {
		t.Fatalf("close lock default: %v", cfg.Strategy.CloseLock)
	}
	if cfg.Strategy.ForceCloseAfter != 4*time.Hour {
		t.Fatalf("force close default: %v", cfg.Strategy.ForceCloseAfter)
	}
	if cfg.Strategy.PendingTimeout != 15*time.Second {
		t.Fatalf("pending timeout default: %v", cfg.Strategy.PendingTimeout)
	}
	if cfg.Risk.MaxAddCount != 3 {
		t.Fatalf("max add count default: %d", cfg.Risk.MaxAddCount)
	}
	if cfg.State.SQLitePath == "" {
		t.Fatal("sqlite path default missing")
	}
	if cfg.Metrics.Listen != ":9099" {
		t.Fatalf("metrics listen default: %q", cfg.Metrics.Listen)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing edgex market", func(c *Config) { c.Edgex.Market = "" }},
		{"missing paradex market", func(c *Config) { c.Paradex.Market = "" }},
		{"zero trade amount", func(c *Config) { c.Strategy.TradeAmount = 0 }},
		{"zero open spread", func(c *Config) { c.Strategy.OpenSpread = 0 }},
		{"close above open", func(c *Config) { c.Strategy.CloseSpread = 100 }},
		{"max below open", func(c *Config) { c.Strategy.MaxSpread = 50 }},
		{"loss frac above one", func(c *Config) { c.Strategy.LossLimitFrac = 1.5 }},
		{"callback above one", func(c *Config) { c.Strategy.TrailingCallback = 2 }},
		{"trade amount over max position", func(c *Config) {
			c.Risk.MaxPositionSize = 0.001
		}},
		{"negative add count", func(c *Config) { c.Risk.MaxAddCount = -1 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		applyDefaults(cfg)
		tc.mutate(cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
edgex:
  market: "10000001"
paradex:
  market: BTC-USD-PERP
strategy:
  trade_amount: 0.01
  open_spread: 80
  close_spread: 20
  trade_interval: 2s
`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Strategy.TradeInterval != 2*time.Second {
		t.Fatalf("trade interval: %v", cfg.Strategy.TradeInterval)
	}
	if cfg.Strategy.OpenLock == 0 {
		t.Fatal("defaults not applied on load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
