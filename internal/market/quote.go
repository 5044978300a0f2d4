// Package market keeps the latest best quote per venue and derives the
// cross-venue spread from them.
package market

import (
	"sync"
	"time"

	"stark-arb-bot/internal/venue"
)

// Quote is an immutable best bid/ask snapshot for one venue. Feed updates
// supersede, never mutate.
type Quote struct {
	Venue venue.ID
	Bid   float64
	Ask   float64
	Time  time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

type Direction string

const (
	DirectionPrimaryHigh   Direction = "PRIMARY_HIGH"
	DirectionSecondaryHigh Direction = "SECONDARY_HIGH"
)

// Spread is the signed mid-price difference primary minus secondary.
type Spread struct {
	Value      float64
	Direction  Direction
	ComputedAt time.Time
}

// Book stores the most recent quote for the primary/secondary venue pair.
// Quotes older than staleAfter are treated as absent, so no spread exists
// and the caller must hold.
type Book struct {
	mu         sync.RWMutex
	primary    venue.ID
	secondary  venue.ID
	quotes     map[venue.ID]Quote
	staleAfter time.Duration
}

func NewBook(primary, secondary venue.ID, staleAfter time.Duration) *Book {
	return &Book{
		primary:    primary,
		secondary:  secondary,
		quotes:     make(map[venue.ID]Quote, 2),
		staleAfter: staleAfter,
	}
}

// Update stores the quote if it is strictly newer than the held one.
// Older or duplicate updates are idempotent no-ops.
func (b *Book) Update(q Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	held, ok := b.quotes[q.Venue]
	if ok && !q.Time.After(held.Time) {
		return false
	}
	b.quotes[q.Venue] = q
	return true
}

// Latest returns the stored quote for a venue regardless of staleness.
func (b *Book) Latest(v venue.ID) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[v]
	return q, ok
}

// Spread returns the current spread, or ok=false when either venue's quote
// is missing or stale at the supplied time.
func (b *Book) Spread(now time.Time) (Spread, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, okP := b.quotes[b.primary]
	s, okS := b.quotes[b.secondary]
	if !okP || !okS {
		return Spread{}, false
	}
	if now.Sub(p.Time) > b.staleAfter || now.Sub(s.Time) > b.staleAfter {
		return Spread{}, false
	}
	value := p.Mid() - s.Mid()
	dir := DirectionPrimaryHigh
	if value < 0 {
		dir = DirectionSecondaryHigh
	}
	return Spread{Value: value, Direction: dir, ComputedAt: now}, true
}
