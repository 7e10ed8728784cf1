package exchange

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
)

// GetCandles delegates to the attached market-data Adapter when present;
// otherwise it generates a deterministic synthetic walk seeded from symbol
// and interval, so a dry run started with no venue credentials at all still
// has something to trade against.
func (a *DryRunAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, limit int) ([]candle.Candle, error) {
	a.mu.Lock()
	md := a.marketData
	a.mu.Unlock()
	if md != nil {
		return md.GetCandles(ctx, symbol, interval, limit)
	}
	return syntheticCandles(symbol, interval, limit, time.Now().UTC())
}

// SubscribeCandles delegates to the attached market-data Adapter when
// present; otherwise it emits one synthetic bar per poll tick, continuing
// the same deterministic walk GetCandles seeds from.
func (a *DryRunAdapter) SubscribeCandles(ctx context.Context, symbol string, interval candle.Interval, onUpdate func(candle.Candle)) error {
	a.mu.Lock()
	md := a.marketData
	a.mu.Unlock()
	if md != nil {
		return md.SubscribeCandles(ctx, symbol, interval, onUpdate)
	}

	ticker := time.NewTicker(candlePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			candles, err := syntheticCandles(symbol, interval, 1, time.Now().UTC())
			if err != nil || len(candles) == 0 {
				continue
			}
			onUpdate(candles[0])
		}
	}
}

// syntheticCandles produces a deterministic pseudo-random walk of limit
// bars ending at now, seeded from symbol+interval so repeated calls against
// the same (symbol, interval, now-bucket) are reproducible within a run.
func syntheticCandles(symbol string, interval candle.Interval, limit int, now time.Time) ([]candle.Candle, error) {
	dur, err := interval.Duration()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(interval))
	state := h.Sum64()
	next := func() float64 {
		// xorshift64*, deterministic, no math/rand dependency needed.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%10000)/10000.0 - 0.5
	}

	price := 100.0
	end := candle.AlignedBucket(now, interval)
	out := make([]candle.Candle, limit)
	for i := limit - 1; i >= 0; i-- {
		ts := end.Add(-dur * time.Duration(limit-1-i))
		open := price
		delta := next() * 0.5
		closeP := math.Max(0.01, open+delta)
		high := math.Max(open, closeP) + math.Abs(next())*0.1
		low := math.Max(0.01, math.Min(open, closeP)-math.Abs(next())*0.1)
		out[i] = candle.Candle{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closeP),
			Volume:    decimal.NewFromFloat(1 + math.Abs(next())*10),
		}
		price = closeP
	}
	return out, nil
}
