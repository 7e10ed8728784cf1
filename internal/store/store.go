// Package store defines the persisted-state contract: signals, orders,
// fills, and equity snapshots. It specifies only the interface a real
// persistence layer would satisfy, with one mutex-guarded in-memory Store
// sufficient for tests, dry-run, and backtest paths (mirrors
// internal/telemetry.Recorder's interface-plus-one-impl shape).
package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

// SignalRecord is one row per accepted-or-rejected trading signal, keyed
// by a UNIQUE alert_id for idempotent re-submission.
type SignalRecord struct {
	AlertID         string
	Source          string
	Symbol          string
	Direction       strategy.Direction
	EntryPrice      decimal.Decimal
	StopLoss        decimal.Decimal
	TakeProfits     []strategy.TakeProfit
	RiskCheckPassed bool
	RiskCheckReason string
	CreatedAt       time.Time
}

// OrderTag classifies what role an order plays against its parent signal.
type OrderTag string

const (
	TagEntry OrderTag = "entry"
	TagSL    OrderTag = "sl"
	TagTP    OrderTag = "tp"
	TagTrail OrderTag = "trail"
)

// OrderRecord is one row per placed (or attempted) venue order.
type OrderRecord struct {
	SignalAlertID string
	VenueOrderID  string
	Symbol        string
	IsBuy         bool
	Size          decimal.Decimal
	Price         decimal.Decimal
	Tag           OrderTag
	Status        string
	Mode          string // dry-run | testnet | live
	CreatedAt     time.Time
	FilledAt      time.Time
}

// FillRecord is one execution against a venue order.
type FillRecord struct {
	VenueOrderID string
	Price        decimal.Decimal
	Size         decimal.Decimal
	Fee          decimal.Decimal
	Timestamp    time.Time
}

// EquitySnapshot is one periodic account-equity observation.
type EquitySnapshot struct {
	Timestamp     time.Time
	Equity        decimal.Decimal
	UnrealizedPnl decimal.Decimal
	RealizedPnl   decimal.Decimal
	OpenPositions int
}

// Store is the persisted-state contract. Real implementations may be
// SQL-backed; this module ships only the in-memory reference Store.
type Store interface {
	SaveSignal(rec SignalRecord) error
	FindSignalByAlertID(alertID string) (SignalRecord, bool)

	SaveOrder(rec OrderRecord) error
	SaveFill(rec FillRecord) error
	SaveEquitySnapshot(rec EquitySnapshot) error

	RecentSignals(limit int) []SignalRecord
	RecentOrders(limit int) []OrderRecord
	RecentFills(limit int) []FillRecord
	RecentEquity(limit int) []EquitySnapshot

	// SeenAlertID/RecordAlertID satisfy internal/order.AlertDeduper
	// structurally, so the daemon can wire the Store directly into the
	// order Processor instead of a separate in-process deduper.
	SeenAlertID(alertID string) bool
	RecordAlertID(alertID string)
}

// memStore is the mutex-guarded in-memory reference Store.
type memStore struct {
	mu sync.RWMutex

	signals   []SignalRecord
	byAlertID map[string]int // index into signals

	orders []OrderRecord
	fills  []FillRecord
	equity []EquitySnapshot

	seenAlerts map[string]struct{}
}

// New constructs an empty in-memory Store.
func New() Store {
	return &memStore{
		byAlertID:  make(map[string]int),
		seenAlerts: make(map[string]struct{}),
	}
}

func (s *memStore) SaveSignal(rec SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byAlertID[rec.AlertID]; ok {
		s.signals[idx] = rec
		return nil
	}
	s.byAlertID[rec.AlertID] = len(s.signals)
	s.signals = append(s.signals, rec)
	return nil
}

func (s *memStore) FindSignalByAlertID(alertID string) (SignalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byAlertID[alertID]
	if !ok {
		return SignalRecord{}, false
	}
	return s.signals[idx], true
}

func (s *memStore) SaveOrder(rec OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, rec)
	return nil
}

func (s *memStore) SaveFill(rec FillRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, rec)
	return nil
}

func (s *memStore) SaveEquitySnapshot(rec EquitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity = append(s.equity, rec)
	return nil
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, limit)
	copy(out, items[len(items)-limit:])
	return out
}

func (s *memStore) RecentSignals(limit int) []SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.signals, limit)
}

func (s *memStore) RecentOrders(limit int) []OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.orders, limit)
}

func (s *memStore) RecentFills(limit int) []FillRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.fills, limit)
}

func (s *memStore) RecentEquity(limit int) []EquitySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.equity, limit)
}

func (s *memStore) SeenAlertID(alertID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seenAlerts[alertID]
	return ok
}

func (s *memStore) RecordAlertID(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenAlerts[alertID] = struct{}{}
}
