package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/strategy"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func baseCandle(ts time.Time, o, h, l, c float64) candle.Candle {
	return candle.Candle{
		Symbol: "ETH", Timestamp: ts,
		Open: d(o), High: d(h), Low: d(l), Close: d(c), Volume: d(1),
	}
}

func signalOnceStrategy(barIndex int, sig strategy.Signal) strategy.Strategy {
	return strategy.Strategy{
		Name: "fixture",
		OnCandle: func(ctx strategy.Context, _ map[string]strategy.Param) *strategy.Signal {
			if ctx.Index == barIndex {
				s := sig
				return &s
			}
			return nil
		},
	}
}

func defaultConfig() Config {
	return Config{
		InitialCapital: d(10000),
		Sizing:         Sizing{Mode: SizingRisk, RiskPerTrade: d(10)},
		Execution:      DefaultExecution(),
		Guardrails:     Guardrails{MaxTradesPerDay: 100, MaxGlobalTradesDay: 100},
	}
}

// Long entry that runs into TP1 on the following bar.
func TestEngine_LongWinsTP1(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []candle.Candle{
		baseCandle(start, 99, 101, 99, 100),
		baseCandle(start.Add(time.Minute), 100, 112, 100, 105),
	}
	sig := strategy.Signal{
		Direction: strategy.Long,
		StopLoss:  d(95),
		TakeProfits: []strategy.TakeProfit{
			{Price: d(110), FractionOfPosition: d(1)},
		},
	}
	strat := signalOnceStrategy(0, sig)
	eng := NewEngine(defaultConfig(), strat, candles, nil)
	res := eng.Run(nil)

	if len(res.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != "take_profit" {
		t.Fatalf("expected take_profit exit, got %s", tr.ExitReason)
	}
	wantEntry := d(100.02) // 2bps buy slippage on 100
	if !tr.EntryPrice.Sub(wantEntry).Abs().LessThan(d(0.0001)) {
		t.Errorf("expected entry ~%s, got %s", wantEntry, tr.EntryPrice)
	}
	if !tr.ExitPrice.Equal(d(110)) {
		t.Errorf("expected exit at TP price 110 (no slippage in its favor), got %s", tr.ExitPrice)
	}
	if !tr.Size.Equal(d(2)) {
		t.Errorf("expected size 2 (risk 10 / stop distance 5), got %s", tr.Size)
	}
	if res.Metrics.NumTrades != 1 {
		t.Errorf("expected NumTrades=1, got %d", res.Metrics.NumTrades)
	}
}

// Both SL and TP trigger in the same bar -> SL wins (worst-case tie-break).
func TestEngine_SLWinsOverTPSameBar(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []candle.Candle{
		baseCandle(start, 99, 101, 99, 100),
		baseCandle(start.Add(time.Minute), 100, 111, 94, 105),
	}
	sig := strategy.Signal{
		Direction: strategy.Long,
		StopLoss:  d(95),
		TakeProfits: []strategy.TakeProfit{
			{Price: d(110), FractionOfPosition: d(1)},
		},
	}
	strat := signalOnceStrategy(0, sig)
	eng := NewEngine(defaultConfig(), strat, candles, nil)
	res := eng.Run(nil)

	if len(res.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != "stop_loss" {
		t.Fatalf("expected stop_loss exit (SL wins tie-break), got %s", tr.ExitReason)
	}
	if !tr.NetPnl.IsNegative() {
		t.Errorf("expected negative PnL on stop loss, got %s", tr.NetPnl)
	}
}

func TestEngine_DiscardsInvalidSignal(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []candle.Candle{
		baseCandle(start, 99, 101, 99, 100),
		baseCandle(start.Add(time.Minute), 100, 101, 99, 100),
	}
	// Stop loss above entry for a long signal: invalid ordering.
	sig := strategy.Signal{
		Direction: strategy.Long,
		StopLoss:  d(105),
		TakeProfits: []strategy.TakeProfit{
			{Price: d(110), FractionOfPosition: d(1)},
		},
	}
	strat := signalOnceStrategy(0, sig)
	eng := NewEngine(defaultConfig(), strat, candles, nil)
	res := eng.Run(nil)

	if len(res.Trades) != 0 {
		t.Fatalf("expected invalid signal to be discarded, got %d trades", len(res.Trades))
	}
	if res.DiscardedSignals != 1 {
		t.Errorf("expected DiscardedSignals=1, got %d", res.DiscardedSignals)
	}
}

func TestEngine_EquityCurveMatchesCapitalPlusTrades(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []candle.Candle{
		baseCandle(start, 99, 101, 99, 100),
		baseCandle(start.Add(time.Minute), 100, 112, 100, 105),
	}
	sig := strategy.Signal{
		Direction: strategy.Long,
		StopLoss:  d(95),
		TakeProfits: []strategy.TakeProfit{
			{Price: d(110), FractionOfPosition: d(1)},
		},
	}
	strat := signalOnceStrategy(0, sig)
	cfg := defaultConfig()
	eng := NewEngine(cfg, strat, candles, nil)
	res := eng.Run(nil)

	finalEquity := res.EquityCurve[len(res.EquityCurve)-1].Equity
	sumTrades := decimal.Zero
	for _, tr := range res.Trades {
		sumTrades = sumTrades.Add(tr.NetPnl)
	}
	want := cfg.InitialCapital.Add(sumTrades)
	if !finalEquity.Sub(want).Abs().LessThan(d(0.0000001)) {
		t.Errorf("final equity must equal initialCapital + sum(trade pnl): got %s, want %s", finalEquity, want)
	}
}

func TestEngine_MaxDrawdownNeverPositive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []candle.Candle{
		baseCandle(start, 99, 101, 99, 100),
		baseCandle(start.Add(time.Minute), 100, 101, 94, 95),
		baseCandle(start.Add(2*time.Minute), 95, 96, 90, 92),
	}
	sig := strategy.Signal{
		Direction: strategy.Long,
		StopLoss:  d(90),
		TakeProfits: []strategy.TakeProfit{
			{Price: d(120), FractionOfPosition: d(1)},
		},
	}
	strat := signalOnceStrategy(0, sig)
	eng := NewEngine(defaultConfig(), strat, candles, nil)
	res := eng.Run(nil)
	if res.Metrics.MaxDrawdownPct.GreaterThan(decimal.Zero) {
		t.Errorf("maxDrawdownPct must be <= 0, got %s", res.Metrics.MaxDrawdownPct)
	}
}

func TestApplySlippage_BuyUpSellDown(t *testing.T) {
	up := applySlippage(d(100), "buy", d(2))
	if !up.Equal(d(100.02)) {
		t.Errorf("expected buy slippage to push price up to 100.02, got %s", up)
	}
	down := applySlippage(d(100), "sell", d(2))
	if !down.Equal(d(99.98)) {
		t.Errorf("expected sell slippage to push price down to 99.98, got %s", down)
	}
}
