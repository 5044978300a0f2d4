package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/ledger"
	"stark-arb-bot/internal/state"
	"stark-arb-bot/internal/strategy"
	"stark-arb-bot/internal/venue"
)

const reconcileSizeEpsilon = 1e-6

// reconcileStartup seeds the engine from durable counters and from the
// venues' own position reports. Local state is never trusted over the
// venues: matching offsetting exposure restores an open pair, flat venues
// start Idle, and anything one-sided halts before trading begins.
func (a *App) reconcileStartup(ctx context.Context) error {
	if snap, ok, err := state.LoadEngineSnapshot(ctx, a.store); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	} else if ok {
		if err := a.engine.RestoreSnapshot(snap); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		a.log.Info("engine snapshot restored",
			zap.Float64("daily_loss", snap.DailyLoss),
			zap.String("daily_day", snap.DailyDay),
		)
	}

	edgexPos, err := a.edgexClient.Position(ctx)
	if err != nil {
		return fmt.Errorf("edgex position report: %w", err)
	}
	paradexPos, err := a.paradexClient.Position(ctx)
	if err != nil {
		return fmt.Errorf("paradex position report: %w", err)
	}
	return a.applyReports(ctx, edgexPos, paradexPos)
}

func (a *App) applyReports(ctx context.Context, edgexPos, paradexPos venue.PositionReport) error {
	eFlat := math.Abs(edgexPos.Size) < reconcileSizeEpsilon
	pFlat := math.Abs(paradexPos.Size) < reconcileSizeEpsilon

	switch {
	case eFlat && pFlat:
		a.log.Info("both venues flat, starting idle")
		return nil

	case !eFlat && !pFlat && offsetting(edgexPos.Size, paradexPos.Size):
		short, long := edgexPos, paradexPos
		if edgexPos.Size > 0 {
			short, long = paradexPos, edgexPos
		}
		size := math.Min(math.Abs(short.Size), math.Abs(long.Size))
		now := time.Now().UTC()
		pos := ledger.Position{
			ShortVenue: short.Venue,
			LongVenue:  long.Venue,
			TotalSize:  size,
			Entries: []ledger.Entry{{
				Size:       size,
				ShortPrice: short.EntryPrice,
				LongPrice:  long.EntryPrice,
				Time:       now,
			}},
			OpenedAt:     now,
			LastActionAt: now,
		}
		pos.Side = ledger.SideShortSpread
		if short.EntryPrice-long.EntryPrice < 0 {
			pos.Side = ledger.SideLongSpread
		}
		if err := a.led.Restore(pos); err != nil {
			return fmt.Errorf("restore ledger: %w", err)
		}
		a.engine.ForceState(strategy.StateOpen)
		a.log.Info("open pair restored from venue reports",
			zap.String("short", string(short.Venue)),
			zap.String("long", string(long.Venue)),
			zap.Float64("size", size),
			zap.Float64("entry_spread", short.EntryPrice-long.EntryPrice),
		)
		return nil

	default:
		a.engine.ForceState(strategy.StateHalted)
		a.metrics.Halts.Inc()
		msg := fmt.Sprintf("one-sided exposure at startup: edgex %.6f, paradex %.6f, trading halted",
			edgexPos.Size, paradexPos.Size)
		a.log.Error("startup reconciliation found one-sided exposure",
			zap.Float64("edgex_size", edgexPos.Size),
			zap.Float64("paradex_size", paradexPos.Size),
		)
		a.alert(ctx, msg)
		return nil
	}
}

// offsetting reports whether the two signed sizes form a hedged pair: one
// short, one long, magnitudes equal within tolerance.
func offsetting(a, b float64) bool {
	if a*b >= 0 {
		return false
	}
	return math.Abs(a+b) < reconcileSizeEpsilon
}
