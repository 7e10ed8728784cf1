package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
)

// candlePollInterval is how often SubscribeCandles re-polls the venue in
// the absence of a native candle push channel.
const candlePollInterval = 2 * time.Second

// GetCandles fetches a historical candle window via Hyperliquid's
// candleSnapshot info request. limit trims to the most recent bars; the
// venue itself only understands a time range, so this requests a wide
// enough window ((2*limit + 5) * interval, covering bucket misalignment) and trims
// locally.
func (a *HyperliquidAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, limit int) ([]candle.Candle, error) {
	dur, err := interval.Duration()
	if err != nil {
		return nil, fmt.Errorf("exchange: get candles: %w", err)
	}
	if limit <= 0 {
		limit = 1
	}
	end := time.Now().UTC()
	start := end.Add(-dur * time.Duration(limit*2+5))

	req := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      coinFromSymbol(symbol),
			"interval":  string(interval),
			"startTime": start.UnixMilli(),
			"endTime":   end.UnixMilli(),
		},
	}

	var resp []struct {
		T int64  `json:"t"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		V string `json:"v"`
		N int64  `json:"n"`
	}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("exchange: get candles: %w", err)
	}

	out := make([]candle.Candle, 0, len(resp))
	for _, r := range resp {
		o, errO := decimal.NewFromString(r.O)
		h, errH := decimal.NewFromString(r.H)
		l, errL := decimal.NewFromString(r.L)
		c, errC := decimal.NewFromString(r.C)
		v, errV := decimal.NewFromString(r.V)
		if errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
			continue
		}
		out = append(out, candle.Candle{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(r.T).UTC(),
			Open:      o, High: h, Low: l, Close: c, Volume: v, Trades: r.N,
		})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SubscribeCandles synthesizes a push stream by polling GetCandles on a
// fixed interval: Hyperliquid exposes no native candle subscription
// channel, so polling is the adapter's best-effort substitute. onUpdate is called once per poll with the most recent candle;
// the Ingestor itself discriminates closed-vs-in-progress from the
// timestamp sequence, so this function need not know about that discipline.
func (a *HyperliquidAdapter) SubscribeCandles(ctx context.Context, symbol string, interval candle.Interval, onUpdate func(candle.Candle)) error {
	ticker := time.NewTicker(candlePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			candles, err := a.GetCandles(ctx, symbol, interval, 1)
			if err != nil {
				a.log.Warn("candle poll failed", "symbol", symbol, "error", err.Error())
				continue
			}
			if len(candles) == 0 {
				continue
			}
			onUpdate(candles[len(candles)-1])
		}
	}
}
