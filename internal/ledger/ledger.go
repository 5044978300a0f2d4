// Package ledger is the single source of truth for the pair's exposure.
// Only confirmed fills mutate it; the state machine reads it.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"stark-arb-bot/internal/venue"
)

var ErrInvariant = errors.New("ledger invariant violation")

// Side records which way the pair trade was entered relative to the spread.
type Side string

const (
	SideShortSpread Side = "SHORT_SPREAD" // entered while spread positive, profits as it falls
	SideLongSpread  Side = "LONG_SPREAD"  // entered while spread negative, profits as it rises
)

// Fill is a confirmed pair execution: one short leg, one long leg, equal
// size. Prices are the per-leg fill prices.
type Fill struct {
	Size       float64
	ShortPrice float64
	LongPrice  float64
	Time       time.Time
}

// SpreadPrice is the spread captured by the fill, short leg minus long leg.
func (f Fill) SpreadPrice() float64 {
	return f.ShortPrice - f.LongPrice
}

type Entry struct {
	Size       float64
	ShortPrice float64
	LongPrice  float64
	Time       time.Time
}

type Position struct {
	ShortVenue   venue.ID
	LongVenue    venue.ID
	Side         Side
	TotalSize    float64
	AddCount     int
	Entries      []Entry
	OpenedAt     time.Time
	LastActionAt time.Time
	RealizedPnl  float64
}

// AvgEntrySpread is the size-weighted average entry spread price.
func (p Position) AvgEntrySpread() float64 {
	if p.TotalSize == 0 {
		return 0
	}
	var sum float64
	for _, e := range p.Entries {
		sum += (e.ShortPrice - e.LongPrice) * e.Size
	}
	return sum / p.TotalSize
}

// Notional values the position at its short-leg entry prices.
func (p Position) Notional() float64 {
	var sum float64
	for _, e := range p.Entries {
		sum += e.ShortPrice * e.Size
	}
	return sum
}

// UnrealizedPnl marks the open position against the current spread.
func (p Position) UnrealizedPnl(currentSpread float64) float64 {
	pnl := (p.AvgEntrySpread() - currentSpread) * p.TotalSize
	if p.Side == SideLongSpread {
		pnl = -pnl
	}
	return pnl
}

type Limits struct {
	MaxAddCount int
	MaxSize     float64
}

// Ledger guards the one managed position. Mutations that would break the
// size or add-count invariants fail with ErrInvariant instead of clamping;
// the state machine is expected to pre-validate, the ledger is the last
// line of defense.
type Ledger struct {
	mu     sync.Mutex
	limits Limits
	pos    *Position
}

func New(limits Limits) *Ledger {
	return &Ledger{limits: limits}
}

func (l *Ledger) Open(short, long venue.ID, fill Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos != nil {
		return fmt.Errorf("%w: position already open", ErrInvariant)
	}
	if err := l.checkFill(fill); err != nil {
		return err
	}
	if l.limits.MaxSize > 0 && fill.Size > l.limits.MaxSize {
		return fmt.Errorf("%w: open size %.6f exceeds max %.6f", ErrInvariant, fill.Size, l.limits.MaxSize)
	}
	side := SideShortSpread
	if fill.SpreadPrice() < 0 {
		side = SideLongSpread
	}
	l.pos = &Position{
		ShortVenue:   short,
		LongVenue:    long,
		Side:         side,
		TotalSize:    fill.Size,
		Entries:      []Entry{{Size: fill.Size, ShortPrice: fill.ShortPrice, LongPrice: fill.LongPrice, Time: fill.Time}},
		OpenedAt:     fill.Time,
		LastActionAt: fill.Time,
	}
	return nil
}

func (l *Ledger) Add(fill Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return fmt.Errorf("%w: no open position to add to", ErrInvariant)
	}
	if err := l.checkFill(fill); err != nil {
		return err
	}
	if l.pos.AddCount >= l.limits.MaxAddCount {
		return fmt.Errorf("%w: add count %d at limit", ErrInvariant, l.pos.AddCount)
	}
	if l.limits.MaxSize > 0 && l.pos.TotalSize+fill.Size > l.limits.MaxSize {
		return fmt.Errorf("%w: size %.6f would exceed max %.6f", ErrInvariant, l.pos.TotalSize+fill.Size, l.limits.MaxSize)
	}
	l.pos.Entries = append(l.pos.Entries, Entry{Size: fill.Size, ShortPrice: fill.ShortPrice, LongPrice: fill.LongPrice, Time: fill.Time})
	l.pos.TotalSize += fill.Size
	l.pos.AddCount++
	l.pos.LastActionAt = fill.Time
	return nil
}

// Close reduces the position by the fill size (partial closes allowed) and
// returns the realized pnl of the closed slice plus whether the position is
// now fully closed and reset.
func (l *Ledger) Close(fill Fill) (realized float64, closed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return 0, false, fmt.Errorf("%w: no open position to close", ErrInvariant)
	}
	if err := l.checkFill(fill); err != nil {
		return 0, false, err
	}
	if fill.Size > l.pos.TotalSize+sizeEpsilon {
		return 0, false, fmt.Errorf("%w: close size %.6f exceeds position %.6f", ErrInvariant, fill.Size, l.pos.TotalSize)
	}
	realized = (l.pos.AvgEntrySpread() - fill.SpreadPrice()) * fill.Size
	if l.pos.Side == SideLongSpread {
		realized = -realized
	}
	l.pos.RealizedPnl += realized
	l.pos.TotalSize -= fill.Size
	l.pos.LastActionAt = fill.Time
	if l.pos.TotalSize <= sizeEpsilon {
		l.pos = nil
		return realized, true, nil
	}
	return realized, false, nil
}

// Position returns a copy of the open position, if any.
func (l *Ledger) Position() (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return Position{}, false
	}
	cp := *l.pos
	cp.Entries = append([]Entry(nil), l.pos.Entries...)
	return cp, true
}

// Restore seeds the ledger from venue-reported exposure at startup. Local
// state is not durable; the venues' own position reports are authoritative.
func (l *Ledger) Restore(pos Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos != nil {
		return fmt.Errorf("%w: ledger not empty", ErrInvariant)
	}
	if pos.TotalSize <= 0 || len(pos.Entries) == 0 {
		return fmt.Errorf("%w: restored position must have size and entries", ErrInvariant)
	}
	if l.limits.MaxSize > 0 && pos.TotalSize > l.limits.MaxSize+sizeEpsilon {
		return fmt.Errorf("%w: restored size %.6f exceeds max %.6f", ErrInvariant, pos.TotalSize, l.limits.MaxSize)
	}
	cp := pos
	cp.Entries = append([]Entry(nil), pos.Entries...)
	l.pos = &cp
	return nil
}

func (l *Ledger) checkFill(fill Fill) error {
	if fill.Size <= 0 {
		return fmt.Errorf("%w: fill size must be > 0", ErrInvariant)
	}
	if fill.ShortPrice <= 0 || fill.LongPrice <= 0 {
		return fmt.Errorf("%w: fill prices must be > 0", ErrInvariant)
	}
	return nil
}

const sizeEpsilon = 1e-9
