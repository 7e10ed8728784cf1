// Package backtest drives a Strategy bar-by-bar over a finite candle
// sequence with fixed execution semantics: fills with slippage and
// commission, SL/TP/trailing exit testing, and guardrail-gated re-entry.
// Live trading drives the same Strategy contract through
// internal/strategy.Runtime, which has its own loop and does not use this
// engine.
package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

// Execution carries the fill model: slippage in basis points and
// commission as a percentage of notional.
type Execution struct {
	SlippageBps   decimal.Decimal
	CommissionPct decimal.Decimal
}

// DefaultExecution matches the documented defaults: 2 bps slippage, 0.045%
// commission.
func DefaultExecution() Execution {
	return Execution{
		SlippageBps:   decimal.NewFromInt(2),
		CommissionPct: decimal.NewFromFloat(0.045),
	}
}

// Guardrails are the risk-state limits evaluated by canTrade before a bar's
// signal is evaluated.
type Guardrails struct {
	CooldownBars        int
	MaxConsecutiveLosses int
	MaxDailyLossR        decimal.Decimal
	MaxTradesPerDay      int
	MaxGlobalTradesDay   int
}

// Sizing is a tagged variant: Risk sizes by riskPerTrade / stopDistance,
// Cash sizes by cashPerTrade / entry.
type Sizing struct {
	Mode          SizingMode
	RiskPerTrade  decimal.Decimal
	CashPerTrade  decimal.Decimal
}

type SizingMode string

const (
	SizingRisk SizingMode = "risk"
	SizingCash SizingMode = "cash"
)

// Size computes position size for an entry/stop pair under this policy.
// Returns decimal.Zero if the policy's inputs don't allow a valid size
// (e.g. zero stop distance).
func (s Sizing) Size(entry, stopLoss decimal.Decimal) decimal.Decimal {
	switch s.Mode {
	case SizingCash:
		if entry.IsZero() {
			return decimal.Zero
		}
		return s.CashPerTrade.Div(entry)
	default: // SizingRisk
		dist := entry.Sub(stopLoss).Abs()
		if dist.IsZero() {
			return decimal.Zero
		}
		return s.RiskPerTrade.Div(dist)
	}
}

// Config is the full backtest run configuration.
type Config struct {
	InitialCapital decimal.Decimal
	Sizing         Sizing
	Execution      Execution
	Guardrails     Guardrails
	SourceInterval string // base candle interval, e.g. "1m"
}

// CompletedTrade is an immutable record produced when a position closes.
type CompletedTrade struct {
	Symbol          string
	Direction       strategy.Direction
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	Size            decimal.Decimal
	NetPnl          decimal.Decimal
	PnlPercent      decimal.Decimal
	RMultiple       decimal.Decimal
	BarsHeld        int
	ExitReason      string // "stop_loss", "take_profit", "signal", "end_of_data"
	EntryTime       time.Time
	ExitTime        time.Time
	InitialStopDist decimal.Decimal
}

// EquityPoint is one bar's mark-to-market equity sample.
type EquityPoint struct {
	Time         time.Time
	Equity       decimal.Decimal
	DrawdownPct  decimal.Decimal // (current - peak) / peak * 100, always <= 0
}

// Metrics summarizes a completed run.
type Metrics struct {
	TotalPnl      decimal.Decimal
	NumTrades     int
	ProfitFactor  decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	WinRate       decimal.Decimal
	AvgR          decimal.Decimal
}

// TradeAnalysis bundles the trade list with derived aggregates for
// reporting; Metrics is the compact summary, this is the detailed view.
type TradeAnalysis struct {
	Trades        []CompletedTrade
	WinningTrades int
	LosingTrades  int
	LargestWin    decimal.Decimal
	LargestLoss   decimal.Decimal
	AvgBarsHeld   decimal.Decimal
}

// Result is the full output of a backtest run.
type Result struct {
	Metrics       Metrics
	EquityCurve   []EquityPoint
	Trades        []CompletedTrade
	Analysis      TradeAnalysis
	Degraded      int // bars where onCandle exceeded the time budget (live-only; always 0 here)
	DiscardedSignals int // invalid-signal diagnostic counter
}
