package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Edgex     VenueConfig     `yaml:"edgex"`
	Paradex   VenueConfig     `yaml:"paradex"`
	State     StateConfig     `yaml:"state"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Risk      RiskConfig      `yaml:"risk"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type VenueConfig struct {
	RESTBaseURL    string        `yaml:"rest_base_url"`
	WSURL          string        `yaml:"ws_url"`
	Market         string        `yaml:"market"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// StrategyConfig carries every decision threshold. Units: spreads and
// amounts are in quote currency (USD), fractions are 0..1, durations are
// Go duration strings.
type StrategyConfig struct {
	TradeAmount      float64       `yaml:"trade_amount"`
	OpenSpread       float64       `yaml:"open_spread"`
	AddSpreadStep    float64       `yaml:"add_spread_step"`
	CloseSpread      float64       `yaml:"close_spread"`
	MaxSpread        float64       `yaml:"max_spread"`
	ProfitLimit      float64       `yaml:"profit_limit"`
	LossLimitFrac    float64       `yaml:"loss_limit_frac"`
	TrailingProfit   float64       `yaml:"trailing_profit"`
	TrailingCallback float64       `yaml:"trailing_callback"`
	TradeInterval    time.Duration `yaml:"trade_interval"`
	OpenLock         time.Duration `yaml:"open_lock"`
	CloseLock        time.Duration `yaml:"close_lock"`
	ForceCloseAfter  time.Duration `yaml:"force_close_after"`
	QuoteStaleAfter  time.Duration `yaml:"quote_stale_after"`
	PendingTimeout   time.Duration `yaml:"pending_timeout"`
}

type RiskConfig struct {
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxAddCount     int     `yaml:"max_add_count"`
	DailyLossLimit  float64 `yaml:"daily_loss_limit"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Edgex.RESTBaseURL == "" {
		cfg.Edgex.RESTBaseURL = "https://pro.edgex.exchange"
	}
	if cfg.Edgex.WSURL == "" {
		cfg.Edgex.WSURL = "wss://quote.edgex.exchange/api/v1/public/ws"
	}
	if cfg.Paradex.RESTBaseURL == "" {
		cfg.Paradex.RESTBaseURL = "https://api.prod.paradex.trade/v1"
	}
	if cfg.Paradex.WSURL == "" {
		cfg.Paradex.WSURL = "wss://ws.api.prod.paradex.trade/v1"
	}
	for _, vc := range []*VenueConfig{&cfg.Edgex, &cfg.Paradex} {
		if vc.Timeout == 0 {
			vc.Timeout = 10 * time.Second
		}
		if vc.ReconnectDelay == 0 {
			vc.ReconnectDelay = 3 * time.Second
		}
		if vc.PingInterval == 0 {
			vc.PingInterval = 15 * time.Second
		}
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/stark-arb-bot.db"
	}
	s := &cfg.Strategy
	if s.TradeInterval == 0 {
		s.TradeInterval = 5 * time.Second
	}
	if s.OpenLock == 0 {
		s.OpenLock = 30 * time.Second
	}
	if s.CloseLock == 0 {
		s.CloseLock = time.Minute
	}
	if s.ForceCloseAfter == 0 {
		s.ForceCloseAfter = 4 * time.Hour
	}
	if s.QuoteStaleAfter == 0 {
		s.QuoteStaleAfter = 5 * time.Second
	}
	if s.PendingTimeout == 0 {
		s.PendingTimeout = 15 * time.Second
	}
	if cfg.Risk.MaxAddCount == 0 {
		cfg.Risk.MaxAddCount = 3
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9099"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
}

func validate(cfg *Config) error {
	if cfg.Edgex.Market == "" {
		return errors.New("edgex.market is required")
	}
	if cfg.Paradex.Market == "" {
		return errors.New("paradex.market is required")
	}
	s := cfg.Strategy
	if s.TradeAmount <= 0 {
		return errors.New("strategy.trade_amount must be > 0")
	}
	if s.OpenSpread <= 0 {
		return errors.New("strategy.open_spread must be > 0")
	}
	if s.CloseSpread < 0 || s.CloseSpread >= s.OpenSpread {
		return errors.New("strategy.close_spread must be >= 0 and below open_spread")
	}
	if s.MaxSpread > 0 && s.MaxSpread <= s.OpenSpread {
		return errors.New("strategy.max_spread must exceed open_spread")
	}
	if s.LossLimitFrac < 0 || s.LossLimitFrac > 1 {
		return errors.New("strategy.loss_limit_frac must be within [0,1]")
	}
	if s.TrailingCallback < 0 || s.TrailingCallback > 1 {
		return errors.New("strategy.trailing_callback must be within [0,1]")
	}
	if cfg.Risk.MaxPositionSize > 0 && cfg.Strategy.TradeAmount > cfg.Risk.MaxPositionSize {
		return errors.New("strategy.trade_amount exceeds risk.max_position_size")
	}
	if cfg.Risk.MaxAddCount < 0 {
		return errors.New("risk.max_add_count must be >= 0")
	}
	return nil
}
