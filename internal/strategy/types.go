package strategy

import (
	"time"

	"stark-arb-bot/internal/config"
	"stark-arb-bot/internal/venue"
)

type State string

const (
	StateIdle         State = "IDLE"
	StateOpenPending  State = "OPEN_PENDING"
	StateOpen         State = "OPEN"
	StateAddPending   State = "ADD_PENDING"
	StateClosePending State = "CLOSE_PENDING"
	StateCooldown     State = "COOLDOWN"
	StateHalted       State = "HALTED"
)

// pending reports whether the machine is waiting on an order outcome.
func (s State) pending() bool {
	return s == StateOpenPending || s == StateAddPending || s == StateClosePending
}

type IntentType string

const (
	IntentOpen  IntentType = "OPEN"
	IntentAdd   IntentType = "ADD"
	IntentClose IntentType = "CLOSE"
)

// Intent is an order instruction for the pair: short the high venue, long
// the low one. Size is in base units for the pair legs.
type Intent struct {
	Type       IntentType
	ShortVenue venue.ID
	LongVenue  venue.ID
	Size       float64
	Spread     float64
	Reason     string
}

// Thresholds are the injected decision constants. The engine holds no
// hardcoded business numbers; substituting this struct is how tests drive
// behavior.
type Thresholds struct {
	TradeAmount     float64
	MaxPositionSize float64
	MaxAddCount     int

	OpenSpread    float64
	AddSpreadStep float64
	CloseSpread   float64
	MaxSpread     float64

	ProfitLimit      float64
	LossLimitFrac    float64
	TrailingProfit   float64
	TrailingCallback float64
	DailyLossLimit   float64

	TradeInterval   time.Duration
	OpenLock        time.Duration
	CloseLock       time.Duration
	ForceCloseAfter time.Duration
	PendingTimeout  time.Duration
}

func ThresholdsFromConfig(s config.StrategyConfig, r config.RiskConfig) Thresholds {
	return Thresholds{
		TradeAmount:      s.TradeAmount,
		MaxPositionSize:  r.MaxPositionSize,
		MaxAddCount:      r.MaxAddCount,
		OpenSpread:       s.OpenSpread,
		AddSpreadStep:    s.AddSpreadStep,
		CloseSpread:      s.CloseSpread,
		MaxSpread:        s.MaxSpread,
		ProfitLimit:      s.ProfitLimit,
		LossLimitFrac:    s.LossLimitFrac,
		TrailingProfit:   s.TrailingProfit,
		TrailingCallback: s.TrailingCallback,
		DailyLossLimit:   r.DailyLossLimit,
		TradeInterval:    s.TradeInterval,
		OpenLock:         s.OpenLock,
		CloseLock:        s.CloseLock,
		ForceCloseAfter:  s.ForceCloseAfter,
		PendingTimeout:   s.PendingTimeout,
	}
}
