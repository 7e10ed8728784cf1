// Package order translates a strategy Signal into a sized OrderIntent,
// evaluates it against the risk gate, and drives the multi-step acceptance
// sequence against an exchange.Adapter, recording the result in the Position
// Book. Placement never rolls back: a partially placed position is
// recorded as-is and flagged for the Reconciler instead of being unwound.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

// SizingMode selects how OrderIntent.Size is derived from a Signal.
type SizingMode string

const (
	SizingRisk SizingMode = "risk"
	SizingCash SizingMode = "cash"
)

// SizingPolicy configures the Translate sizing computation.
type SizingPolicy struct {
	Mode            SizingMode
	RiskPerTradeUsd decimal.Decimal // used when Mode == SizingRisk
	CashPerTrade    decimal.Decimal // used when Mode == SizingCash
}

// Size computes the position size for an entry/stop pair under the policy.
// Risk mode: riskPerTrade / |entry - stop|. Cash mode: cashPerTrade / entry.
func (p SizingPolicy) Size(entry, stopLoss decimal.Decimal) (decimal.Decimal, error) {
	switch p.Mode {
	case SizingCash:
		if !entry.IsPositive() {
			return decimal.Zero, fmt.Errorf("order: cash sizing requires a positive entry price")
		}
		return p.CashPerTrade.Div(entry), nil
	case SizingRisk:
		dist := entry.Sub(stopLoss).Abs()
		if !dist.IsPositive() {
			return decimal.Zero, fmt.Errorf("order: risk sizing requires entry and stopLoss to differ")
		}
		return p.RiskPerTradeUsd.Div(dist), nil
	default:
		return decimal.Zero, fmt.Errorf("order: unknown sizing mode %q", p.Mode)
	}
}

// OrderIntent is the fully-sized, not-yet-validated order derived from a
// Signal.
type OrderIntent struct {
	AlertID     string
	Symbol      string
	Direction   strategy.Direction
	Size        decimal.Decimal
	EntryPrice  decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfits []strategy.TakeProfit
	NotionalUsd decimal.Decimal
	Leverage    decimal.Decimal
	Comment     string
}

// IsBuy reports whether the entry order should be a buy (long) or sell (short).
func (o OrderIntent) IsBuy() bool { return o.Direction == strategy.Long }

// AcceptedOrder is the terminal record of a successfully (possibly partially)
// placed intent, ready to hand to the Position Book.
type AcceptedOrder struct {
	Intent          OrderIntent
	EntryOrderID    string
	StopLossOrderID string
	TakeProfitIDs   []string
	VenueIncomplete bool
	OpenedAt        time.Time
}

// RejectedOrder records a risk-gate or validation rejection for persistence.
type RejectedOrder struct {
	AlertID string
	Reason  string
}
