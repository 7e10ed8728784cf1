// Package strategy defines the stateless strategy contract shared by the
// backtest engine and the live runtime: parameter tables, per-bar context,
// and the two pure callbacks a strategy implements to produce signals.
package strategy

import (
	"github.com/guyghost/perpcore/internal/candle"
	"github.com/shopspring/decimal"
)

// Direction is a position/signal side.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for Long, -1 for Short.
func (d Direction) Sign() decimal.Decimal {
	if d == Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Param is one named, bounded, optionally optimizable parameter.
type Param struct {
	Value       decimal.Decimal
	Min         decimal.Decimal
	Max         decimal.Decimal
	Step        decimal.Decimal
	Optimizable bool
}

// TakeProfit is one scaled take-profit level.
type TakeProfit struct {
	Price             decimal.Decimal
	FractionOfPosition decimal.Decimal // sums across all TPs to <= 1
}

// Signal is an entry intent produced by onCandle.
type Signal struct {
	Direction   Direction
	EntryPrice  *decimal.Decimal // nil => market at current close
	StopLoss    decimal.Decimal
	TakeProfits []TakeProfit
	Comment     string
}

// Valid enforces the ordering invariant: for long, stopLoss < entry < each
// TP price; symmetric for short. entry is the resolved price (signal.Entry
// or current close) since EntryPrice may be nil.
func (s Signal) Valid(entry decimal.Decimal) bool {
	frac := decimal.Zero
	for _, tp := range s.TakeProfits {
		frac = frac.Add(tp.FractionOfPosition)
		if s.Direction == Long && tp.Price.LessThanOrEqual(entry) {
			return false
		}
		if s.Direction == Short && tp.Price.GreaterThanOrEqual(entry) {
			return false
		}
	}
	if frac.GreaterThan(decimal.NewFromInt(1)) {
		return false
	}
	if s.Direction == Long {
		return s.StopLoss.LessThan(entry)
	}
	return s.StopLoss.GreaterThan(entry)
}

// ExitDecision is the result of shouldExit: exit=true with a reason, or a
// nil pointer meaning "no opinion, let SL/TP/trailing govern".
type ExitDecision struct {
	Exit   bool
	Reason string
}

// OpenPosition is the subset of position state exposed to a strategy via
// its context; nil when flat.
type OpenPosition struct {
	Direction  Direction
	EntryPrice decimal.Decimal
	EntryBar   int
}

// RiskState carries the counters a strategy may use to self-limit (most
// strategies ignore these; the risk gate enforces guardrails independently).
type RiskState struct {
	DailyPnL           decimal.Decimal
	TradesToday        int
	BarsSinceLastExit  int
	ConsecutiveLosses  int
}

// Context is the per-bar snapshot passed to a strategy's callbacks.
type Context struct {
	Base         []candle.Candle            // full base candle sequence
	Index        int                         // current index into Base
	HTF          map[string][]candle.Candle  // aggregated higher-timeframe sequences, keyed by interval string
	Position     *OpenPosition               // nil when flat
	Risk         RiskState
}

// Current returns the candle at the context's current index.
func (c Context) Current() candle.Candle { return c.Base[c.Index] }

// Warmup declares the minimum bar counts a strategy needs per timeframe,
// keyed "source" or an interval string (e.g. "1h").
type Warmup map[string]int

// Strategy is a stateless configuration object: a name, a parameter table,
// declared timeframe requirements, and two pure callbacks. Strategies carry
// no mutable state across bars; everything derivable must come from the
// Context or the Params table.
type Strategy struct {
	Name              string
	Params            map[string]Param
	Warmup            Warmup
	RequiredTimeframes []string
	TickSensitive     bool // if true, live runtime also calls OnCandle on in-progress bars

	// OnCandle evaluates entry logic for the current bar. Returns nil when
	// no signal fires.
	OnCandle func(ctx Context, params map[string]Param) *Signal

	// ShouldExit evaluates discretionary exit logic beyond SL/TP/trailing.
	// May be nil if the strategy relies solely on SL/TP.
	ShouldExit func(ctx Context, params map[string]Param) *ExitDecision
}

// Param looks up a parameter value by name, returning decimal.Zero if unset.
func (s Strategy) Param(name string) decimal.Decimal {
	p, ok := s.Params[name]
	if !ok {
		return decimal.Zero
	}
	return p.Value
}

// ParamInt is a convenience accessor for integer-valued parameters (periods).
func (s Strategy) ParamInt(name string) int {
	return int(s.Param(name).IntPart())
}
