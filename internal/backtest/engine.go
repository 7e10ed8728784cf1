package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/logger"
	"github.com/guyghost/perpcore/internal/strategy"
)

// openPosition is the engine's internal bookkeeping for the single open
// position (at most one may be open at a time).
type openPosition struct {
	direction       strategy.Direction
	entryPrice      decimal.Decimal
	entryBar        int
	entryTime       time.Time
	size            decimal.Decimal
	remaining       decimal.Decimal
	stopLoss        decimal.Decimal
	takeProfits     []strategy.TakeProfit
	tpFilled        []bool
	initialStopDist decimal.Decimal

	// realized accumulates net PnL across partial fills, seeded with the
	// entry commission, so the final CompletedTrade carries the trade's
	// true total.
	realized decimal.Decimal
}

// Engine drives strat bar-by-bar over candles under cfg. Entry fills at
// the current close of the signal bar; the live runtime matches because it
// only calls OnCandle on closed-candle events.
type Engine struct {
	cfg      Config
	strat    strategy.Strategy
	candles  []candle.Candle
	htf      map[string][]candle.Candle
	log      *logger.Logger

	capital decimal.Decimal
	pos     *openPosition
	trades  []CompletedTrade
	equity  []EquityPoint
	peak    decimal.Decimal

	tradesToday       int
	globalTradesToday int
	consecutiveLosses int
	barsSinceExit     int
	dailyPnlR         decimal.Decimal
	currentDay        time.Time

	discardedSignals int
}

// NewEngine constructs an Engine for one symbol's candle sequence. htf maps
// required-timeframe keys to their pre-aggregated sequences (see
// internal/aggregate); callers drive re-aggregation themselves so the
// engine stays a pure bar-stepper.
func NewEngine(cfg Config, strat strategy.Strategy, candles []candle.Candle, htf map[string][]candle.Candle) *Engine {
	if htf == nil {
		htf = map[string][]candle.Candle{}
	}
	return &Engine{
		cfg:     cfg,
		strat:   strat,
		candles: candles,
		htf:     htf,
		log:     logger.Component("backtest").Strategy(strat.Name),
		capital: cfg.InitialCapital,
		peak:    cfg.InitialCapital,
	}
}

// Run executes the full backtest and returns the result. Closing stop
// aborts at the next bar boundary and returns a partial result; a nil stop
// runs to the end of the candles.
func (e *Engine) Run(stop <-chan struct{}) Result {
	for i := range e.candles {
		select {
		case <-stop:
			return e.result()
		default:
		}
		e.step(i)
	}
	return e.result()
}

func (e *Engine) step(i int) {
	bar := e.candles[i]
	e.rollDayBoundary(bar.Timestamp)

	// 1. mark-to-market
	e.markToMarket(bar)

	// 2. test SL/TP/trailing
	e.testExits(i, bar)

	// 3. canTrade gate
	if !e.canTrade() {
		e.recordEquity(bar)
		e.barsSinceExit++
		return
	}

	// 4. evaluate strategy, open position if flat
	if e.pos == nil {
		ctx := e.buildContext(i)
		sig := e.strat.OnCandle(ctx, e.strat.Params)
		if sig != nil {
			e.openFromSignal(i, bar, *sig)
		}
	} else if e.strat.ShouldExit != nil {
		ctx := e.buildContext(i)
		if dec := e.strat.ShouldExit(ctx, e.strat.Params); dec != nil && dec.Exit {
			e.closePosition(i, bar, bar.Close, dec.Reason)
		}
	}

	// 5. advance / record equity
	e.recordEquity(bar)
}

func (e *Engine) rollDayBoundary(t time.Time) {
	day := t.UTC().Truncate(24 * time.Hour)
	if e.currentDay.IsZero() {
		e.currentDay = day
		return
	}
	if day.After(e.currentDay) {
		e.currentDay = day
		e.tradesToday = 0
		e.globalTradesToday = 0
		e.dailyPnlR = decimal.Zero
	}
}

func (e *Engine) markToMarket(bar candle.Candle) {
	// Equity recorded in recordEquity; mark-to-market here is implicit via
	// unrealizedPnl computed against bar.Close at record time.
	_ = bar
}

// testExits checks SL/TP against the bar's range; if both would trigger
// within the same bar, SL wins (worst-case tie-break). SL fills at SL price
// with sell-side slippage (i.e. against the closer); TP fills at TP price
// with no slippage in its favor.
func (e *Engine) testExits(i int, bar candle.Candle) {
	if e.pos == nil {
		return
	}
	p := e.pos
	long := p.direction == strategy.Long

	slHit := (long && bar.Low.LessThanOrEqual(p.stopLoss)) || (!long && bar.High.GreaterThanOrEqual(p.stopLoss))
	if slHit {
		exitSide := sideFor(p.direction, false) // closing side is opposite of entry
		fillPrice := applySlippage(p.stopLoss, exitSide, e.cfg.Execution.SlippageBps)
		e.closePosition(i, bar, fillPrice, "stop_loss")
		return
	}

	for idx, tp := range p.takeProfits {
		if p.tpFilled[idx] {
			continue
		}
		hit := (long && bar.High.GreaterThanOrEqual(tp.Price)) || (!long && bar.Low.LessThanOrEqual(tp.Price))
		if !hit {
			continue
		}
		p.tpFilled[idx] = true
		fillSize := p.size.Mul(tp.FractionOfPosition)
		if fillSize.GreaterThan(p.remaining) {
			fillSize = p.remaining
		}
		e.partialClose(i, bar, tp.Price, fillSize, "take_profit")
		if p.remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
	}
}

func sideFor(dir strategy.Direction, isEntry bool) string {
	long := dir == strategy.Long
	if isEntry {
		if long {
			return "buy"
		}
		return "sell"
	}
	if long {
		return "sell"
	}
	return "buy"
}

// applySlippage: buy moves price up, sell moves price down.
func applySlippage(price decimal.Decimal, side string, bps decimal.Decimal) decimal.Decimal {
	factor := bps.Div(decimal.NewFromInt(10000))
	if side == "buy" {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}

func commission(price, size, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(size).Abs().Mul(pct).Div(decimal.NewFromInt(100))
}

func (e *Engine) canTrade() bool {
	g := e.cfg.Guardrails
	if e.barsSinceExit < g.CooldownBars {
		return false
	}
	if g.MaxConsecutiveLosses > 0 && e.consecutiveLosses >= g.MaxConsecutiveLosses {
		return false
	}
	if !g.MaxDailyLossR.IsZero() && e.dailyPnlR.LessThanOrEqual(g.MaxDailyLossR.Neg()) {
		return false
	}
	if g.MaxTradesPerDay == 0 {
		return false // kill switch
	}
	if e.tradesToday >= g.MaxTradesPerDay {
		return false
	}
	if g.MaxGlobalTradesDay > 0 && e.globalTradesToday >= g.MaxGlobalTradesDay {
		return false
	}
	return true
}

func (e *Engine) buildContext(i int) strategy.Context {
	var openPos *strategy.OpenPosition
	if e.pos != nil {
		openPos = &strategy.OpenPosition{
			Direction:  e.pos.direction,
			EntryPrice: e.pos.entryPrice,
			EntryBar:   e.pos.entryBar,
		}
	}
	return strategy.Context{
		Base:     e.candles,
		Index:    i,
		HTF:      e.htf,
		Position: openPos,
		Risk: strategy.RiskState{
			DailyPnL:          e.dailyPnlR,
			TradesToday:       e.tradesToday,
			BarsSinceLastExit: e.barsSinceExit,
			ConsecutiveLosses: e.consecutiveLosses,
		},
	}
}

// openFromSignal validates and opens a position per the signal. Invalid
// signals (e.g. SL on wrong side of entry) are discarded silently with a
// diagnostic counter increment, never an exception.
func (e *Engine) openFromSignal(i int, bar candle.Candle, sig strategy.Signal) {
	entry := bar.Close
	if sig.EntryPrice != nil {
		entry = *sig.EntryPrice
	}
	if !sig.Valid(entry) {
		e.discardedSignals++
		return
	}

	size := e.cfg.Sizing.Size(entry, sig.StopLoss)
	if size.LessThanOrEqual(decimal.Zero) || !size.IsPositive() {
		e.discardedSignals++
		return
	}

	fillPrice := applySlippage(entry, sideFor(sig.Direction, true), e.cfg.Execution.SlippageBps)
	stopDist := entry.Sub(sig.StopLoss).Abs()

	e.pos = &openPosition{
		direction:       sig.Direction,
		entryPrice:      fillPrice,
		entryBar:        i,
		entryTime:       bar.Timestamp,
		size:            size,
		remaining:       size,
		stopLoss:        sig.StopLoss,
		takeProfits:     sig.TakeProfits,
		tpFilled:        make([]bool, len(sig.TakeProfits)),
		initialStopDist: stopDist,
	}

	fee := commission(fillPrice, size, e.cfg.Execution.CommissionPct)
	e.capital = e.capital.Sub(fee)
	e.pos.realized = fee.Neg()
}

// partialClose realizes PnL on fillSize units at fillPrice, reducing the
// open position; if it empties remaining size, the trade record is closed.
func (e *Engine) partialClose(i int, bar candle.Candle, fillPrice, fillSize decimal.Decimal, reason string) {
	p := e.pos
	sign := decimal.NewFromInt(1)
	if p.direction == strategy.Short {
		sign = decimal.NewFromInt(-1)
	}
	grossPnl := fillPrice.Sub(p.entryPrice).Mul(fillSize).Mul(sign)
	fee := commission(fillPrice, fillSize, e.cfg.Execution.CommissionPct)
	netPnl := grossPnl.Sub(fee)

	e.capital = e.capital.Add(netPnl)
	p.realized = p.realized.Add(netPnl)
	p.remaining = p.remaining.Sub(fillSize)

	if p.remaining.LessThanOrEqual(decimal.Zero) {
		e.finalizeTrade(i, bar, fillPrice, reason)
	}
}

func (e *Engine) closePosition(i int, bar candle.Candle, fillPrice decimal.Decimal, reason string) {
	p := e.pos
	sign := decimal.NewFromInt(1)
	if p.direction == strategy.Short {
		sign = decimal.NewFromInt(-1)
	}
	grossPnl := fillPrice.Sub(p.entryPrice).Mul(p.remaining).Mul(sign)
	fee := commission(fillPrice, p.remaining, e.cfg.Execution.CommissionPct)
	netPnl := grossPnl.Sub(fee)
	e.capital = e.capital.Add(netPnl)
	p.realized = p.realized.Add(netPnl)
	p.remaining = decimal.Zero
	e.finalizeTrade(i, bar, fillPrice, reason)
}

// finalizeTrade turns the position's accumulated realized PnL into one
// CompletedTrade record once the position has fully closed, and resets the
// risk-state counters. Partial-TP trades record the final fill's price as
// ExitPrice; NetPnl is the total across every fill including the entry
// commission, so summing trade PnLs always reproduces the equity delta.
func (e *Engine) finalizeTrade(i int, bar candle.Candle, lastFillPrice decimal.Decimal, reason string) {
	p := e.pos
	totalPnl := p.realized
	rMultiple := decimal.Zero
	if !p.initialStopDist.IsZero() && !p.size.IsZero() {
		riskAmount := p.initialStopDist.Mul(p.size)
		if !riskAmount.IsZero() {
			rMultiple = totalPnl.Div(riskAmount)
		}
	}
	pnlPct := decimal.Zero
	if !p.entryPrice.IsZero() {
		pnlPct = totalPnl.Div(p.entryPrice.Mul(p.size)).Mul(decimal.NewFromInt(100))
	}

	trade := CompletedTrade{
		Symbol:          bar.Symbol,
		Direction:       p.direction,
		EntryPrice:      p.entryPrice,
		ExitPrice:       lastFillPrice,
		Size:            p.size,
		NetPnl:          totalPnl,
		PnlPercent:      pnlPct,
		RMultiple:       rMultiple,
		BarsHeld:        i - p.entryBar,
		ExitReason:      reason,
		EntryTime:       p.entryTime,
		ExitTime:        bar.Timestamp,
		InitialStopDist: p.initialStopDist,
	}
	e.trades = append(e.trades, trade)

	e.tradesToday++
	e.globalTradesToday++
	e.barsSinceExit = 0
	e.dailyPnlR = e.dailyPnlR.Add(rMultiple)
	if totalPnl.IsNegative() {
		e.consecutiveLosses++
	} else {
		e.consecutiveLosses = 0
	}

	e.pos = nil
}

func (e *Engine) recordEquity(bar candle.Candle) {
	equity := e.capital
	if e.pos != nil {
		sign := decimal.NewFromInt(1)
		if e.pos.direction == strategy.Short {
			sign = decimal.NewFromInt(-1)
		}
		unrealized := bar.Close.Sub(e.pos.entryPrice).Mul(e.pos.remaining).Mul(sign)
		equity = equity.Add(unrealized)
	}
	if equity.GreaterThan(e.peak) {
		e.peak = equity
	}
	drawdownPct := decimal.Zero
	if e.peak.IsPositive() {
		drawdownPct = equity.Sub(e.peak).Div(e.peak).Mul(decimal.NewFromInt(100))
	}
	e.equity = append(e.equity, EquityPoint{Time: bar.Timestamp, Equity: equity, DrawdownPct: drawdownPct})
}

func (e *Engine) result() Result {
	if e.pos != nil && len(e.candles) > 0 {
		last := e.candles[len(e.candles)-1]
		e.closePosition(len(e.candles)-1, last, last.Close, "end_of_data")
		e.recordEquity(last)
	}

	analysis := TradeAnalysis{Trades: e.trades}
	var totalProfit, totalLoss, sumBars, sumR decimal.Decimal
	for _, tr := range e.trades {
		sumBars = sumBars.Add(decimal.NewFromInt(int64(tr.BarsHeld)))
		sumR = sumR.Add(tr.RMultiple)
		if tr.NetPnl.IsPositive() {
			analysis.WinningTrades++
			totalProfit = totalProfit.Add(tr.NetPnl)
			if tr.NetPnl.GreaterThan(analysis.LargestWin) {
				analysis.LargestWin = tr.NetPnl
			}
		} else {
			analysis.LosingTrades++
			totalLoss = totalLoss.Add(tr.NetPnl.Abs())
			if tr.NetPnl.Abs().GreaterThan(analysis.LargestLoss) {
				analysis.LargestLoss = tr.NetPnl.Abs()
			}
		}
	}
	if n := len(e.trades); n > 0 {
		analysis.AvgBarsHeld = sumBars.Div(decimal.NewFromInt(int64(n)))
	}

	metrics := Metrics{
		TotalPnl:  e.capital.Sub(e.cfg.InitialCapital),
		NumTrades: len(e.trades),
	}
	if len(e.trades) > 0 {
		metrics.WinRate = decimal.NewFromInt(int64(analysis.WinningTrades)).Div(decimal.NewFromInt(int64(len(e.trades)))).Mul(decimal.NewFromInt(100))
		metrics.AvgR = sumR.Div(decimal.NewFromInt(int64(len(e.trades))))
	}
	if !totalLoss.IsZero() {
		metrics.ProfitFactor = totalProfit.Div(totalLoss)
	}

	maxDD := decimal.Zero
	for _, pt := range e.equity {
		if pt.DrawdownPct.LessThan(maxDD) {
			maxDD = pt.DrawdownPct
		}
	}
	metrics.MaxDrawdownPct = maxDD

	return Result{
		Metrics:           metrics,
		EquityCurve:       e.equity,
		Trades:            e.trades,
		Analysis:          analysis,
		DiscardedSignals:  e.discardedSignals,
	}
}
