// Package risk implements the fixed-priority risk gate that decides
// whether an order intent may be placed, and the stateful counters
// (guardrails) the gate and the strategy runtime both read.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Guardrails are the configured numeric limits.
type Guardrails struct {
	MaxNotionalUsd     decimal.Decimal
	MaxLeverage        decimal.Decimal
	MaxOpenPositions   int
	MaxDailyLossUsd    decimal.Decimal
	MaxTradesPerDay    int // 0 is a kill switch: always rejects
}

// absoluteNotionalCap is the hard ceiling applied regardless of config.
var absoluteNotionalCap = decimal.NewFromInt(100_000)

// priceDeviationTolerance is the maximum fractional deviation of entry
// price from current market price before the gate rejects on sanity.
var priceDeviationTolerance = decimal.NewFromFloat(0.05)

// Intent is the subset of an order intent the gate needs to evaluate.
// internal/order constructs this from its OrderIntent before placement.
type Intent struct {
	NotionalUsd decimal.Decimal
	Leverage    decimal.Decimal
	EntryPrice  decimal.Decimal
}

// State is the live counters evaluated alongside an Intent.
type State struct {
	OpenPositions int
	DailyLossUsd  decimal.Decimal
	TradesToday   int
	CurrentPrice  decimal.Decimal
}

// Evaluate runs the seven-step gate in fixed priority order and returns the
// first failing reason, or ok=true if every check passes. The gate is a
// pure function: identical (guardrails, intent, state) always produce the
// identical verdict, and tightening any guardrail can only turn a pass into
// a fail, never the reverse.
func Evaluate(g Guardrails, in Intent, st State) (ok bool, reason string) {
	if in.NotionalUsd.GreaterThan(g.MaxNotionalUsd) {
		return false, "Notional exceeds max"
	}
	if in.Leverage.GreaterThan(g.MaxLeverage) {
		return false, "Leverage exceeds max"
	}
	if st.OpenPositions >= g.MaxOpenPositions {
		return false, "Max open positions reached"
	}
	if st.DailyLossUsd.GreaterThanOrEqual(g.MaxDailyLossUsd) {
		return false, "Daily loss limit reached"
	}
	if g.MaxTradesPerDay == 0 {
		return false, "Trading disabled (kill switch)"
	}
	if st.TradesToday >= g.MaxTradesPerDay {
		return false, "Max trades per day reached"
	}
	if in.NotionalUsd.GreaterThanOrEqual(absoluteNotionalCap) {
		return false, "Notional exceeds absolute cap"
	}
	if st.CurrentPrice.IsPositive() {
		deviation := in.EntryPrice.Sub(st.CurrentPrice).Abs().Div(st.CurrentPrice)
		if deviation.GreaterThan(priceDeviationTolerance) {
			return false, "Entry price deviates from market"
		}
	}
	return true, ""
}

// Tracker holds the mutable per-symbol-set counters the gate reads: trades
// placed today and realized loss today, reset on UTC midnight crossings
// (computed on the UTC calendar date rather than local time, so month and
// year boundaries reset correctly too).
type Tracker struct {
	mu sync.Mutex

	tradesToday       int
	dailyLossUsd      decimal.Decimal
	consecutiveLosses int
	currentDay        time.Time
}

// NewTracker constructs a zeroed Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// RecordTrade updates the daily counters with a realized trade outcome.
func (t *Tracker) RecordTrade(at time.Time, pnlUsd decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked(at)
	t.tradesToday++
	if pnlUsd.IsNegative() {
		t.dailyLossUsd = t.dailyLossUsd.Add(pnlUsd.Abs())
		t.consecutiveLosses++
	} else {
		t.consecutiveLosses = 0
	}
}

// Snapshot returns the current counters as of `at`, rolling the day
// boundary first so a read immediately after UTC midnight sees zeroed
// counters even without an intervening trade.
func (t *Tracker) Snapshot(at time.Time) (tradesToday int, dailyLossUsd decimal.Decimal, consecutiveLosses int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked(at)
	return t.tradesToday, t.dailyLossUsd, t.consecutiveLosses
}

func (t *Tracker) rollDayLocked(at time.Time) {
	day := at.UTC().Truncate(24 * time.Hour)
	if t.currentDay.IsZero() {
		t.currentDay = day
		return
	}
	if day.After(t.currentDay) {
		t.currentDay = day
		t.tradesToday = 0
		t.dailyLossUsd = decimal.Zero
	}
}

// ValidationError reports a risk rejection with its fixed-priority reason,
// surfaced to the caller and persisted with risk_check_passed=false.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("risk check failed: %s", e.Reason) }
