// Package position owns the live Position Book: the single authoritative
// in-process record of open exposure per symbol, and the Reconciler that
// compares it against venue-reported truth.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

// Position is one open exposure, keyed by symbol in the Book. At most one
// Position exists per symbol at a time.
type Position struct {
	Symbol           string
	Direction        strategy.Direction
	EntryPrice       decimal.Decimal
	Size             decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfits      []strategy.TakeProfit
	TrailingStopLoss decimal.Decimal // zero means unset
	LiquidationPrice decimal.Decimal // zero means unset/unknown
	OpenedAt         time.Time
	CurrentPrice     decimal.Decimal
	UnrealizedPnl    decimal.Decimal

	// VenueIncomplete is set when a protective order (SL/TP) failed to place
	// after the entry filled. The Reconciler surfaces it on the next tick
	// rather than the translator unwinding the entry.
	VenueIncomplete bool

	EntryOrderID string
}

// sign returns +1 for long, -1 for short.
func (p Position) sign() decimal.Decimal {
	if p.Direction == strategy.Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// recomputeUnrealized updates UnrealizedPnl from CurrentPrice, EntryPrice,
// Size and direction: (current - entry) * size * directionSign.
func (p *Position) recomputeUnrealized() {
	p.UnrealizedPnl = p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Size).Mul(p.sign())
}

// Book is the mutex-serialized single-venue Position Book. All
// mutation happens through its methods; readers (the reconciler, the HTTP
// surface, the TUI) only ever see a consistent snapshot.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewBook constructs an empty Book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Open records a new position for symbol. Returns an error if one is
// already open for that symbol (at-most-one-per-symbol invariant).
func (b *Book) Open(p Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.positions[p.Symbol]; exists {
		return fmt.Errorf("position: %s already has an open position", p.Symbol)
	}
	if !p.Size.IsPositive() {
		return fmt.Errorf("position: %s: size must be positive to open, got %s", p.Symbol, p.Size)
	}
	cp := p
	cp.CurrentPrice = p.EntryPrice
	cp.recomputeUnrealized()
	b.positions[p.Symbol] = &cp
	return nil
}

// Close removes the position for symbol, returning it for recording as a
// CompletedTrade by the caller. Returns ok=false if no position is open.
func (b *Book) Close(symbol string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	delete(b.positions, symbol)
	return *p, true
}

// UpdatePrice marks a position to market, recomputing unrealized PnL. A
// non-positive price is rejected as a no-op (bad tick), leaving the last
// known mark in place.
func (b *Book) UpdatePrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.recomputeUnrealized()
}

// Get returns the open position for symbol, if any.
func (b *Book) Get(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// GetAll returns a snapshot of every open position.
func (b *Book) GetAll() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of open positions.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// IsFlat reports whether symbol currently has no open position.
func (b *Book) IsFlat(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[symbol]
	return !ok
}

// MarkVenueIncomplete flags an open position as missing a protective order,
// for the translator's no-rollback placement path.
func (b *Book) MarkVenueIncomplete(symbol string, incomplete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.positions[symbol]; ok {
		p.VenueIncomplete = incomplete
	}
}
