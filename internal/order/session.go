package order

import (
	"context"
	"sync"

	"github.com/guyghost/perpcore/internal/exchange"
)

// Session is the explicit, non-singleton scope for the order-id counter,
// the per-symbol leverage-set cache, and the per-symbol szDecimals cache.
// One Session is constructed per running daemon instance and passed by
// reference to the Processor and the adapter calls it drives; nothing in
// this package keeps package-level mutable state.
type Session struct {
	mu sync.Mutex

	leverageSet map[string]int          // symbol -> last leverage value confirmed set
	szDecimals  map[string]exchange.SymbolMeta
	seq         uint64
}

// NewSession constructs an empty Session.
func NewSession() *Session {
	return &Session{
		leverageSet: make(map[string]int),
		szDecimals:  make(map[string]exchange.SymbolMeta),
	}
}

// NextOrderSeq returns a monotonically increasing counter, used to build
// local order correlation ids distinct from venue order ids.
func (s *Session) NextOrderSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// EnsureLeverage sets leverage on the venue for symbol only if this Session
// has not already done so at this exact value, making repeated calls within
// a session idempotent without an extra round trip.
func (s *Session) EnsureLeverage(ctx context.Context, adapter exchange.Adapter, symbol string, value int, mode exchange.MarginMode) error {
	s.mu.Lock()
	current, ok := s.leverageSet[symbol]
	s.mu.Unlock()
	if ok && current == value {
		return nil
	}
	if err := adapter.SetLeverage(ctx, symbol, value, mode); err != nil {
		return err
	}
	s.mu.Lock()
	s.leverageSet[symbol] = value
	s.mu.Unlock()
	return nil
}

// SymbolMeta returns the cached szDecimals metadata for symbol, querying the
// adapter on first use and caching thereafter.
func (s *Session) SymbolMeta(ctx context.Context, adapter exchange.Adapter, symbol string) (exchange.SymbolMeta, error) {
	s.mu.Lock()
	meta, ok := s.szDecimals[symbol]
	s.mu.Unlock()
	if ok {
		return meta, nil
	}
	meta, err := adapter.GetSymbolMeta(ctx, symbol)
	if err != nil {
		return exchange.SymbolMeta{}, err
	}
	s.mu.Lock()
	s.szDecimals[symbol] = meta
	s.mu.Unlock()
	return meta, nil
}
