package strategy

import (
	"testing"
	"time"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/shopspring/decimal"
)

func TestSignal_Valid_LongOrdering(t *testing.T) {
	sig := Signal{
		Direction: Long,
		StopLoss:  decimal.NewFromInt(95),
		TakeProfits: []TakeProfit{
			{Price: decimal.NewFromInt(110), FractionOfPosition: decimal.NewFromInt(1)},
		},
	}
	if !sig.Valid(decimal.NewFromInt(100)) {
		t.Fatal("expected valid long signal (sl < entry < tp)")
	}
}

func TestSignal_Valid_RejectsStopOnWrongSide(t *testing.T) {
	sig := Signal{
		Direction: Long,
		StopLoss:  decimal.NewFromInt(105), // above entry: invalid for long
		TakeProfits: []TakeProfit{
			{Price: decimal.NewFromInt(110), FractionOfPosition: decimal.NewFromInt(1)},
		},
	}
	if sig.Valid(decimal.NewFromInt(100)) {
		t.Fatal("expected invalid signal: stop loss on wrong side of entry")
	}
}

func TestSignal_Valid_RejectsFractionsOverOne(t *testing.T) {
	sig := Signal{
		Direction: Long,
		StopLoss:  decimal.NewFromInt(95),
		TakeProfits: []TakeProfit{
			{Price: decimal.NewFromInt(110), FractionOfPosition: decimal.NewFromFloat(0.7)},
			{Price: decimal.NewFromInt(120), FractionOfPosition: decimal.NewFromFloat(0.5)},
		},
	}
	if sig.Valid(decimal.NewFromInt(100)) {
		t.Fatal("expected invalid signal: fractions sum > 1")
	}
}

func TestAlertID_DeterministicForSameInputs(t *testing.T) {
	a := AlertID("ETH", "donchian_trend", 1700000000000, Long)
	b := AlertID("ETH", "donchian_trend", 1700000000000, Long)
	if a != b {
		t.Fatalf("expected deterministic alertId, got %s vs %s", a, b)
	}
	c := AlertID("ETH", "donchian_trend", 1700000000001, Long)
	if a == c {
		t.Fatal("expected different alertId for different bar timestamp")
	}
}

func mkTrendingCandles(n int, start float64) []candle.Candle {
	out := make([]candle.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		price += 1
		p := decimal.NewFromFloat(price)
		out[i] = candle.Candle{
			Symbol:    "ETH",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      p.Sub(decimal.NewFromFloat(0.5)),
			High:      p.Add(decimal.NewFromFloat(1)),
			Low:       p.Sub(decimal.NewFromFloat(1)),
			Close:     p,
			Volume:    decimal.NewFromInt(10),
		}
	}
	return out
}

func TestEMACrossoverRSI_NoSignalWithoutWarmup(t *testing.T) {
	strat := NewEMACrossoverRSI()
	candles := mkTrendingCandles(5, 100)
	ctx := Context{Base: candles, Index: len(candles) - 1}
	if sig := strat.OnCandle(ctx, strat.Params); sig != nil {
		t.Fatal("expected no signal before warmup satisfied")
	}
}

func TestEMACrossoverRSI_NoSignalWhenPositionOpen(t *testing.T) {
	strat := NewEMACrossoverRSI()
	candles := mkTrendingCandles(60, 100)
	ctx := Context{
		Base:     candles,
		Index:    len(candles) - 1,
		Position: &OpenPosition{Direction: Long, EntryPrice: decimal.NewFromInt(100)},
	}
	if sig := strat.OnCandle(ctx, strat.Params); sig != nil {
		t.Fatal("expected no new signal while a position is already open")
	}
}
