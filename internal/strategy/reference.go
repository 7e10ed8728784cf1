package strategy

import (
	"github.com/guyghost/perpcore/internal/indicator"
	"github.com/shopspring/decimal"
)

// NewEMACrossoverRSI builds the reference EMA-crossover + RSI strategy,
// adapted from this codebase's original scalping strategy: a fast EMA
// crossing a slow EMA, confirmed by RSI oversold/overbought, produces an
// entry with a percentage stop-loss and a single take-profit.
func NewEMACrossoverRSI() Strategy {
	params := map[string]Param{
		"shortEmaPeriod":    {Value: decimal.NewFromInt(9), Min: decimal.NewFromInt(3), Max: decimal.NewFromInt(20), Step: decimal.NewFromInt(1), Optimizable: true},
		"longEmaPeriod":     {Value: decimal.NewFromInt(21), Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(60), Step: decimal.NewFromInt(1), Optimizable: true},
		"rsiPeriod":         {Value: decimal.NewFromInt(14), Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(30), Step: decimal.NewFromInt(1), Optimizable: true},
		"rsiOversold":       {Value: decimal.NewFromInt(30), Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(45), Step: decimal.NewFromInt(1), Optimizable: true},
		"rsiOverbought":     {Value: decimal.NewFromInt(70), Min: decimal.NewFromInt(55), Max: decimal.NewFromInt(90), Step: decimal.NewFromInt(1), Optimizable: true},
		"stopLossPct":       {Value: decimal.NewFromFloat(0.015), Min: decimal.NewFromFloat(0.005), Max: decimal.NewFromFloat(0.05), Step: decimal.NewFromFloat(0.005), Optimizable: true},
		"takeProfitPct":     {Value: decimal.NewFromFloat(0.03), Min: decimal.NewFromFloat(0.01), Max: decimal.NewFromFloat(0.10), Step: decimal.NewFromFloat(0.005), Optimizable: true},
	}

	return Strategy{
		Name:          "ema_crossover_rsi",
		Params:        params,
		Warmup:        Warmup{"source": 60},
		TickSensitive: false,
		OnCandle:      emaCrossoverRSIOnCandle,
		ShouldExit:    nil,
	}
}

func emaCrossoverRSIOnCandle(ctx Context, params map[string]Param) *Signal {
	if ctx.Position != nil {
		return nil
	}
	shortP := int(params["shortEmaPeriod"].Value.IntPart())
	longP := int(params["longEmaPeriod"].Value.IntPart())
	rsiP := int(params["rsiPeriod"].Value.IntPart())

	closes := make([]decimal.Decimal, ctx.Index+1)
	for i := 0; i <= ctx.Index; i++ {
		closes[i] = ctx.Base[i].Close
	}
	if len(closes) < longP+1 || len(closes) < rsiP+1 {
		return nil
	}

	shortEMA, err := indicator.EMA(closes, shortP)
	if err != nil {
		return nil
	}
	longEMA, err := indicator.EMA(closes, longP)
	if err != nil {
		return nil
	}
	rsi, err := indicator.RSI(closes, rsiP)
	if err != nil {
		return nil
	}

	i := ctx.Index
	if !shortEMA[i].Valid || !longEMA[i].Valid || !rsi[i].Valid {
		return nil // NaN in indicator output => signal ignored
	}
	if i == 0 || !shortEMA[i-1].Valid || !longEMA[i-1].Valid {
		return nil
	}

	price := ctx.Current().Close
	oversold := params["rsiOversold"].Value
	overbought := params["rsiOverbought"].Value
	slPct := params["stopLossPct"].Value
	tpPct := params["takeProfitPct"].Value

	crossedUp := shortEMA[i-1].Value.LessThanOrEqual(longEMA[i-1].Value) && shortEMA[i].Value.GreaterThan(longEMA[i].Value)
	crossedDown := shortEMA[i-1].Value.GreaterThanOrEqual(longEMA[i-1].Value) && shortEMA[i].Value.LessThan(longEMA[i].Value)

	one := decimal.NewFromInt(1)
	if crossedUp && rsi[i].Value.LessThan(oversold) {
		return &Signal{
			Direction: Long,
			StopLoss:  price.Mul(one.Sub(slPct)),
			TakeProfits: []TakeProfit{
				{Price: price.Mul(one.Add(tpPct)), FractionOfPosition: decimal.NewFromInt(1)},
			},
			Comment: "EMA crossover up + RSI oversold",
		}
	}
	if crossedDown && rsi[i].Value.GreaterThan(overbought) {
		return &Signal{
			Direction: Short,
			StopLoss:  price.Mul(one.Add(slPct)),
			TakeProfits: []TakeProfit{
				{Price: price.Mul(one.Sub(tpPct)), FractionOfPosition: decimal.NewFromInt(1)},
			},
			Comment: "EMA crossover down + RSI overbought",
		}
	}
	return nil
}

// NewDonchianTrend builds a second reference strategy: a Donchian-channel
// breakout confirmed by ADX trend strength, with an ATR-scaled stop and two
// scaled take-profit levels. Exercises the higher-timeframe path by
// requiring a 4h trend filter alongside the base-interval breakout.
func NewDonchianTrend() Strategy {
	params := map[string]Param{
		"donchianPeriod": {Value: decimal.NewFromInt(20), Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(55), Step: decimal.NewFromInt(1), Optimizable: true},
		"atrPeriod":      {Value: decimal.NewFromInt(14), Min: decimal.NewFromInt(7), Max: decimal.NewFromInt(28), Step: decimal.NewFromInt(1), Optimizable: true},
		"adxPeriod":      {Value: decimal.NewFromInt(14), Min: decimal.NewFromInt(7), Max: decimal.NewFromInt(28), Step: decimal.NewFromInt(1), Optimizable: true},
		"adxThreshold":   {Value: decimal.NewFromInt(25), Min: decimal.NewFromInt(15), Max: decimal.NewFromInt(40), Step: decimal.NewFromInt(1), Optimizable: true},
		"atrStopMult":    {Value: decimal.NewFromFloat(2), Min: decimal.NewFromFloat(1), Max: decimal.NewFromFloat(4), Step: decimal.NewFromFloat(0.25), Optimizable: true},
	}

	return Strategy{
		Name:               "donchian_trend",
		Params:             params,
		Warmup:             Warmup{"source": 60, "4h": 22},
		RequiredTimeframes: []string{"4h"},
		TickSensitive:      false,
		OnCandle:           donchianTrendOnCandle,
	}
}

func donchianTrendOnCandle(ctx Context, params map[string]Param) *Signal {
	if ctx.Position != nil {
		return nil
	}
	htf, ok := ctx.HTF["4h"]
	if !ok || len(htf) < 2 {
		return nil
	}

	donchianP := int(params["donchianPeriod"].Value.IntPart())
	atrP := int(params["atrPeriod"].Value.IntPart())
	adxP := int(params["adxPeriod"].Value.IntPart())

	base := ctx.Base[:ctx.Index+1]
	if len(base) < donchianP+1 {
		return nil
	}

	upper, lower, _, err := indicator.Donchian(base, donchianP)
	if err != nil {
		return nil
	}
	atr, err := indicator.ATR(base, atrP)
	if err != nil {
		return nil
	}
	adx, _, _, err := indicator.ADX(base, adxP)
	if err != nil {
		return nil
	}

	i := ctx.Index
	if !upper[i].Valid || !lower[i].Valid || !atr[i].Valid || !adx[i].Valid {
		return nil
	}
	if adx[i].Value.LessThan(params["adxThreshold"].Value) {
		return nil
	}

	htfTrendUp := htf[len(htf)-1].Close.GreaterThan(htf[len(htf)-2].Close)
	price := ctx.Current().Close
	stopMult := params["atrStopMult"].Value
	atrVal := atr[i].Value

	if price.GreaterThanOrEqual(upper[i].Value) && htfTrendUp {
		stop := price.Sub(atrVal.Mul(stopMult))
		tp1 := price.Add(atrVal.Mul(stopMult))
		tp2 := price.Add(atrVal.Mul(stopMult).Mul(decimal.NewFromInt(2)))
		return &Signal{
			Direction: Long,
			StopLoss:  stop,
			TakeProfits: []TakeProfit{
				{Price: tp1, FractionOfPosition: decimal.NewFromFloat(0.5)},
				{Price: tp2, FractionOfPosition: decimal.NewFromFloat(0.5)},
			},
			Comment: "Donchian breakout up + 4h trend confirm",
		}
	}
	if price.LessThanOrEqual(lower[i].Value) && !htfTrendUp {
		stop := price.Add(atrVal.Mul(stopMult))
		tp1 := price.Sub(atrVal.Mul(stopMult))
		tp2 := price.Sub(atrVal.Mul(stopMult).Mul(decimal.NewFromInt(2)))
		return &Signal{
			Direction: Short,
			StopLoss:  stop,
			TakeProfits: []TakeProfit{
				{Price: tp1, FractionOfPosition: decimal.NewFromFloat(0.5)},
				{Price: tp2, FractionOfPosition: decimal.NewFromFloat(0.5)},
			},
			Comment: "Donchian breakdown + 4h trend confirm",
		}
	}
	return nil
}
