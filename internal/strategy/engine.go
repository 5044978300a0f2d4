// Package strategy holds the arbitrage decision state machine. It consumes
// spread updates, reads the ledger and emits order intents; confirmed fills
// and submission failures drive it between states.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/ledger"
	"stark-arb-bot/internal/market"
	"stark-arb-bot/internal/venue"
)

var (
	ErrNoPending = errors.New("no pending order outcome to resolve")
	ErrHalted    = errors.New("daily loss limit breached, trading halted")
)

const dayFormat = "2006-01-02"

// Engine evaluates one managed venue pair. All methods take the clock
// explicitly so tests substitute time. Callers serialize spread updates
// into Evaluate; the internal lock only guards against the fill/failure
// callbacks racing an evaluation.
type Engine struct {
	mu  sync.Mutex
	cfg Thresholds
	led *ledger.Ledger
	log *zap.Logger

	primary   venue.ID
	secondary venue.ID

	state   State
	prior   State
	pending *Intent

	pendingSince  time.Time
	lastOpenEval  time.Time
	lastCloseAt   time.Time
	lastAddSpread float64

	peakProfit    float64
	trailingArmed bool

	dailyLoss float64
	dailyDay  string
}

func NewEngine(cfg Thresholds, led *ledger.Ledger, primary, secondary venue.ID, log *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		led:       led,
		log:       log,
		primary:   primary,
		secondary: secondary,
		state:     StateIdle,
		prior:     StateIdle,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Evaluate runs the transition rules against the current spread. ok=false
// means no usable spread (stale or missing quotes): hold, no decision.
// At most one intent is returned; emitting it moves the machine into the
// matching pending state.
func (e *Engine) Evaluate(now time.Time, sp market.Spread, ok bool) (Intent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDay(now)

	switch {
	case e.state == StateHalted:
		return Intent{}, false
	case e.state.pending():
		return Intent{}, false
	case e.state == StateCooldown:
		if now.Sub(e.lastCloseAt) < e.cfg.CloseLock {
			return Intent{}, false
		}
		e.state = StateIdle
	}
	if !ok {
		return Intent{}, false
	}

	abs := math.Abs(sp.Value)

	if e.state == StateOpen {
		if intent, fired := e.closeRules(now, sp, abs); fired {
			return e.emit(now, intent), true
		}
		if intent, fired := e.addRule(now, sp, abs); fired {
			return e.emit(now, intent), true
		}
		return Intent{}, false
	}

	// StateIdle
	if !e.throttleReady(now) {
		return Intent{}, false
	}
	e.lastOpenEval = now
	if e.spreadImplausible(abs) {
		e.log.Debug("spread above sanity ceiling, holding", zap.Float64("spread", sp.Value))
		return Intent{}, false
	}
	if e.dailyLossExhausted() {
		return Intent{}, false
	}
	if abs < e.cfg.OpenSpread {
		return Intent{}, false
	}
	if !e.lastCloseAt.IsZero() && now.Sub(e.lastCloseAt) < e.cfg.CloseLock {
		return Intent{}, false
	}
	short, long := e.legAssignment(sp)
	return e.emit(now, Intent{
		Type:       IntentOpen,
		ShortVenue: short,
		LongVenue:  long,
		Size:       e.cfg.TradeAmount,
		Spread:     sp.Value,
		Reason:     "spread above open threshold",
	}), true
}

// closeRules are safety valves: never throttled and exempt from the
// max-spread suppression, which only gates new exposure.
func (e *Engine) closeRules(now time.Time, sp market.Spread, abs float64) (Intent, bool) {
	pos, havePos := e.led.Position()
	if !havePos {
		e.log.Warn("state OPEN but ledger empty, resetting to IDLE")
		e.state = StateIdle
		return Intent{}, false
	}
	unreal := pos.UnrealizedPnl(sp.Value)
	if e.cfg.TrailingProfit > 0 && unreal >= e.cfg.TrailingProfit {
		e.trailingArmed = true
	}
	if e.trailingArmed && unreal > e.peakProfit {
		e.peakProfit = unreal
	}

	reason := ""
	switch {
	case abs <= e.cfg.CloseSpread:
		reason = "spread converged"
	case e.cfg.ProfitLimit > 0 && unreal >= e.cfg.ProfitLimit:
		reason = "profit limit reached"
	case e.cfg.LossLimitFrac > 0 && unreal <= -e.cfg.LossLimitFrac*pos.Notional():
		reason = "loss limit reached"
	case e.trailingArmed && e.peakProfit > 0 && unreal <= e.peakProfit*(1-e.cfg.TrailingCallback):
		reason = "trailing stop fired"
	case e.cfg.ForceCloseAfter > 0 && now.Sub(pos.OpenedAt) >= e.cfg.ForceCloseAfter:
		reason = "force close timeout"
	default:
		return Intent{}, false
	}
	return Intent{
		Type:       IntentClose,
		ShortVenue: pos.ShortVenue,
		LongVenue:  pos.LongVenue,
		Size:       pos.TotalSize,
		Spread:     sp.Value,
		Reason:     reason,
	}, true
}

func (e *Engine) addRule(now time.Time, sp market.Spread, abs float64) (Intent, bool) {
	if !e.throttleReady(now) {
		return Intent{}, false
	}
	e.lastOpenEval = now
	if e.spreadImplausible(abs) || e.dailyLossExhausted() {
		return Intent{}, false
	}
	pos, havePos := e.led.Position()
	if !havePos {
		return Intent{}, false
	}
	if pos.AddCount >= e.cfg.MaxAddCount {
		return Intent{}, false
	}
	if abs < e.lastAddSpread+e.cfg.AddSpreadStep {
		return Intent{}, false
	}
	if now.Sub(pos.LastActionAt) < e.cfg.OpenLock {
		return Intent{}, false
	}
	if e.cfg.MaxPositionSize > 0 && pos.TotalSize+e.cfg.TradeAmount > e.cfg.MaxPositionSize {
		return Intent{}, false
	}
	return Intent{
		Type:       IntentAdd,
		ShortVenue: pos.ShortVenue,
		LongVenue:  pos.LongVenue,
		Size:       e.cfg.TradeAmount,
		Spread:     sp.Value,
		Reason:     "spread extended beyond add step",
	}, true
}

func (e *Engine) emit(now time.Time, intent Intent) Intent {
	switch intent.Type {
	case IntentOpen:
		e.state = StateOpenPending
		e.prior = StateIdle
	case IntentAdd:
		e.state = StateAddPending
		e.prior = StateOpen
	case IntentClose:
		e.state = StateClosePending
		e.prior = StateOpen
	}
	cp := intent
	e.pending = &cp
	e.pendingSince = now
	return intent
}

// OnFillConfirmed applies a confirmed fill to the ledger and advances out
// of the pending state. It returns the realized pnl for close fills.
func (e *Engine) OnFillConfirmed(now time.Time, fill ledger.Fill) (State, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.pending() || e.pending == nil {
		return e.state, 0, ErrNoPending
	}
	intent := *e.pending
	switch e.state {
	case StateOpenPending:
		if err := e.led.Open(intent.ShortVenue, intent.LongVenue, fill); err != nil {
			e.revert()
			return e.state, 0, err
		}
		e.state = StateOpen
		e.lastAddSpread = math.Abs(fill.SpreadPrice())
		e.resetTrailing()
	case StateAddPending:
		if err := e.led.Add(fill); err != nil {
			e.revert()
			return e.state, 0, err
		}
		e.state = StateOpen
		e.lastAddSpread = math.Abs(fill.SpreadPrice())
	case StateClosePending:
		realized, closed, err := e.led.Close(fill)
		if err != nil {
			e.revert()
			return e.state, 0, err
		}
		e.pending = nil
		e.recordRealized(now, realized)
		if e.state == StateHalted {
			return e.state, realized, ErrHalted
		}
		if closed {
			e.state = StateCooldown
			e.lastCloseAt = now
			e.resetTrailing()
		} else {
			e.state = StateOpen
		}
		return e.state, realized, nil
	}
	e.pending = nil
	return e.state, 0, nil
}

// OnSubmissionFailed reverts a pending transition after a venue rejection
// or a submission timeout. The machine never straddles an ambiguous order
// outcome: it is back in its prior stable state afterwards.
func (e *Engine) OnSubmissionFailed(now time.Time, cause error) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.pending() {
		return e.state
	}
	e.log.Warn("order submission failed, reverting",
		zap.String("state", string(e.state)),
		zap.String("prior", string(e.prior)),
		zap.Error(cause),
	)
	e.revert()
	return e.state
}

// PendingExpired reports whether the in-flight submission exceeded the
// bounded wait and must be treated as failed (with reconciliation).
func (e *Engine) PendingExpired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.pending() || e.cfg.PendingTimeout <= 0 {
		return false
	}
	return now.Sub(e.pendingSince) > e.cfg.PendingTimeout
}

func (e *Engine) PendingIntent() (Intent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return Intent{}, false
	}
	return *e.pending, true
}

// ForceState is used by startup reconciliation to seed the machine from
// venue-reported exposure.
func (e *Engine) ForceState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	if s == StateOpen {
		e.prior = StateOpen
		if pos, ok := e.led.Position(); ok {
			e.lastAddSpread = math.Abs(pos.AvgEntrySpread())
		}
	}
}

func (e *Engine) DailyLoss() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dailyLoss
}

func (e *Engine) revert() {
	e.state = e.prior
	e.pending = nil
}

func (e *Engine) resetTrailing() {
	e.peakProfit = 0
	e.trailingArmed = false
}

func (e *Engine) throttleReady(now time.Time) bool {
	return e.cfg.TradeInterval <= 0 || e.lastOpenEval.IsZero() || now.Sub(e.lastOpenEval) >= e.cfg.TradeInterval
}

func (e *Engine) spreadImplausible(abs float64) bool {
	return e.cfg.MaxSpread > 0 && abs > e.cfg.MaxSpread
}

func (e *Engine) dailyLossExhausted() bool {
	return e.cfg.DailyLossLimit > 0 && e.dailyLoss >= e.cfg.DailyLossLimit
}

// rollDay resets the loss total when the UTC day changes. Evaluate runs
// it on every pass, so a restored total from a prior day stops gating
// opens once the day rolls even if no close ever happens.
func (e *Engine) rollDay(now time.Time) {
	day := now.UTC().Format(dayFormat)
	if day != e.dailyDay {
		e.dailyDay = day
		e.dailyLoss = 0
	}
}

// recordRealized folds a close's realized pnl into the rolling UTC-day
// loss total. Breaching the daily ceiling is terminal: only a manual
// restart clears Halted.
func (e *Engine) recordRealized(now time.Time, realized float64) {
	e.rollDay(now)
	if realized >= 0 {
		return
	}
	e.dailyLoss += -realized
	if e.dailyLossExhausted() {
		e.log.Error("daily loss limit breached, halting",
			zap.Float64("daily_loss", e.dailyLoss),
			zap.Float64("limit", e.cfg.DailyLossLimit),
		)
		e.state = StateHalted
	}
}

// legAssignment shorts the higher-priced venue so the pair profits as the
// spread reverts toward zero.
func (e *Engine) legAssignment(sp market.Spread) (short, long venue.ID) {
	if sp.Direction == market.DirectionPrimaryHigh {
		return e.primary, e.secondary
	}
	return e.secondary, e.primary
}

// Snapshot captures the restart-relevant engine fields. Positions are not
// part of it; they are re-derived from venue reports.
type Snapshot struct {
	State         State   `json:"state"`
	DailyLoss     float64 `json:"daily_loss"`
	DailyDay      string  `json:"daily_day"`
	LastCloseMS   int64   `json:"last_close_ms"`
	LastAddSpread float64 `json:"last_add_spread"`
	PeakProfit    float64 `json:"peak_profit"`
	TrailingArmed bool    `json:"trailing_armed"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	var closeMS int64
	if !e.lastCloseAt.IsZero() {
		closeMS = e.lastCloseAt.UnixMilli()
	}
	return Snapshot{
		State:         e.state,
		DailyLoss:     e.dailyLoss,
		DailyDay:      e.dailyDay,
		LastCloseMS:   closeMS,
		LastAddSpread: e.lastAddSpread,
		PeakProfit:    e.peakProfit,
		TrailingArmed: e.trailingArmed,
	}
}

// RestoreSnapshot reloads persisted counters. Pending states never survive
// a restart; reconciliation decides between Idle and Open, so only the
// loss/cooldown bookkeeping is taken from the snapshot.
func (e *Engine) RestoreSnapshot(snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.pending() {
		return fmt.Errorf("cannot restore while pending in state %s", e.state)
	}
	e.dailyLoss = snap.DailyLoss
	e.dailyDay = snap.DailyDay
	if snap.LastCloseMS > 0 {
		e.lastCloseAt = time.UnixMilli(snap.LastCloseMS)
	}
	e.lastAddSpread = snap.LastAddSpread
	e.peakProfit = snap.PeakProfit
	e.trailingArmed = snap.TrailingArmed
	// A restart deliberately clears Halted; the restored daily-loss total
	// still gates new exposure for the rest of the UTC day.
	return nil
}
