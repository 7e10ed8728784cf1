// Package indicator provides pure, deterministic numeric functions over
// candle and price sequences: moving averages, volatility, momentum, and
// channel indicators. Every function returns a slice the same length as its
// input; leading elements that are not yet stable are sentinel values with
// Valid=false rather than being dropped, so callers can zip indicator output
// against the candle sequence by index.
package indicator

import (
	"fmt"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/shopspring/decimal"
)

// Value is one indicator output slot: either a stable value, or an
// unstable/warmup sentinel (Valid=false, analogous to NaN).
type Value struct {
	Value decimal.Decimal
	Valid bool
}

func invalid() Value { return Value{} }

func valid(d decimal.Decimal) Value { return Value{Value: d, Valid: true} }

func closes(candles []candle.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func fill(n int) []Value {
	out := make([]Value, n)
	for i := range out {
		out[i] = invalid()
	}
	return out
}

// SMA computes the simple moving average over a window of p ending at each
// index. Warmup is p-1. p < 1 is an error.
func SMA(v []decimal.Decimal, p int) ([]Value, error) {
	if p < 1 {
		return nil, fmt.Errorf("indicator: SMA period must be >= 1, got %d", p)
	}
	out := fill(len(v))
	if len(v) < p {
		return out, nil
	}
	sum := decimal.Zero
	for i := 0; i < len(v); i++ {
		sum = sum.Add(v[i])
		if i >= p {
			sum = sum.Sub(v[i-p])
		}
		if i >= p-1 {
			out[i] = valid(sum.Div(decimal.NewFromInt(int64(p))))
		}
	}
	return out, nil
}

// EMA computes the exponential moving average, alpha = 2/(p+1), seeded by
// the first value. The first p-1 outputs are sentinel (not yet stable).
func EMA(v []decimal.Decimal, p int) ([]Value, error) {
	if p < 1 {
		return nil, fmt.Errorf("indicator: EMA period must be >= 1, got %d", p)
	}
	out := fill(len(v))
	if len(v) == 0 {
		return out, nil
	}
	alpha := decimal.NewFromFloat(2.0 / float64(p+1))
	oneMinusAlpha := decimal.NewFromInt(1).Sub(alpha)

	prev := v[0]
	if len(v) > 0 {
		if p-1 == 0 {
			out[0] = valid(prev)
		}
	}
	for i := 1; i < len(v); i++ {
		prev = v[i].Mul(alpha).Add(prev.Mul(oneMinusAlpha))
		if i >= p-1 {
			out[i] = valid(prev)
		}
	}
	return out, nil
}

// TrueRange computes max(h-l, |h-prevClose|, |l-prevClose|); with no
// previous candle it is simply h-l.
func TrueRange(c candle.Candle, prev *candle.Candle) decimal.Decimal {
	hl := c.High.Sub(c.Low)
	if prev == nil {
		return hl
	}
	hc := c.High.Sub(prev.Close).Abs()
	lc := c.Low.Sub(prev.Close).Abs()
	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// trueRanges computes the TrueRange series for a candle sequence.
func trueRanges(candles []candle.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		var prev *candle.Candle
		if i > 0 {
			prev = &candles[i-1]
		}
		out[i] = TrueRange(c, prev)
	}
	return out
}

// ATR computes the Average True Range: an SMA seed over the first p true
// ranges, then Wilder smoothing. First p outputs are sentinel.
func ATR(candles []candle.Candle, p int) ([]Value, error) {
	if p < 1 {
		return nil, fmt.Errorf("indicator: ATR period must be >= 1, got %d", p)
	}
	out := fill(len(candles))
	tr := trueRanges(candles)
	if len(tr) <= p {
		return out, nil
	}

	sum := decimal.Zero
	for i := 0; i < p; i++ {
		sum = sum.Add(tr[i])
	}
	prevATR := sum.Div(decimal.NewFromInt(int64(p)))
	out[p] = valid(prevATR)

	pd := decimal.NewFromInt(int64(p))
	pMinus1 := decimal.NewFromInt(int64(p - 1))
	for i := p + 1; i < len(tr); i++ {
		prevATR = prevATR.Mul(pMinus1).Add(tr[i]).Div(pd)
		out[i] = valid(prevATR)
	}
	return out, nil
}

// RSI computes the Relative Strength Index via Wilder smoothing of gains
// and losses. An all-up window yields 100, all-down yields 0, equal yields 50.
func RSI(v []decimal.Decimal, p int) ([]Value, error) {
	if p < 1 {
		return nil, fmt.Errorf("indicator: RSI period must be >= 1, got %d", p)
	}
	out := fill(len(v))
	if len(v) <= p {
		return out, nil
	}

	gainSum, lossSum := decimal.Zero, decimal.Zero
	for i := 1; i <= p; i++ {
		change := v[i].Sub(v[i-1])
		if change.IsPositive() {
			gainSum = gainSum.Add(change)
		} else {
			lossSum = lossSum.Add(change.Abs())
		}
	}
	pd := decimal.NewFromInt(int64(p))
	avgGain := gainSum.Div(pd)
	avgLoss := lossSum.Div(pd)
	out[p] = valid(rsiFromAverages(avgGain, avgLoss))

	pMinus1 := decimal.NewFromInt(int64(p - 1))
	for i := p + 1; i < len(v); i++ {
		change := v[i].Sub(v[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if change.IsPositive() {
			gain = change
		} else {
			loss = change.Abs()
		}
		avgGain = avgGain.Mul(pMinus1).Add(gain).Div(pd)
		avgLoss = avgLoss.Mul(pMinus1).Add(loss).Div(pd)
		out[i] = valid(rsiFromAverages(avgGain, avgLoss))
	}
	return out, nil
}

func rsiFromAverages(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() && avgGain.IsZero() {
		return decimal.NewFromInt(50)
	}
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	if avgGain.IsZero() {
		return decimal.Zero
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// ADX computes the Average Directional Index along with +DI/-DI. First
// valid DI appears at p-1, first valid ADX at 2p-2. Output is clamped to
// [0, 100].
func ADX(candles []candle.Candle, p int) (adx, plusDI, minusDI []Value, err error) {
	if p < 1 {
		return nil, nil, nil, fmt.Errorf("indicator: ADX period must be >= 1, got %d", p)
	}
	n := len(candles)
	adx, plusDI, minusDI = fill(n), fill(n), fill(n)
	if n < 2 {
		return adx, plusDI, minusDI, nil
	}

	plusDM := make([]decimal.Decimal, n)
	minusDM := make([]decimal.Decimal, n)
	tr := trueRanges(candles)

	for i := 1; i < n; i++ {
		upMove := candles[i].High.Sub(candles[i-1].High)
		downMove := candles[i-1].Low.Sub(candles[i].Low)
		if upMove.GreaterThan(downMove) && upMove.IsPositive() {
			plusDM[i] = upMove
		}
		if downMove.GreaterThan(upMove) && downMove.IsPositive() {
			minusDM[i] = downMove
		}
	}

	if n < p {
		return adx, plusDI, minusDI, nil
	}

	smoothedTR := sumRange(tr, 1, p)
	smoothedPlusDM := sumRange(plusDM, 1, p)
	smoothedMinusDM := sumRange(minusDM, 1, p)

	dxs := make([]decimal.Decimal, 0, n)
	hundred := decimal.NewFromInt(100)

	emitDI := func() (pdi, mdi decimal.Decimal) {
		if smoothedTR.IsZero() {
			return decimal.Zero, decimal.Zero
		}
		pdi = clamp(smoothedPlusDM.Div(smoothedTR).Mul(hundred))
		mdi = clamp(smoothedMinusDM.Div(smoothedTR).Mul(hundred))
		return pdi, mdi
	}

	firstADXIdx := 2*p - 2

	pdi, mdi := emitDI()
	plusDI[p-1] = valid(pdi)
	minusDI[p-1] = valid(mdi)
	dxs = append(dxs, dx(pdi, mdi))
	if p-1 == firstADXIdx {
		adx[p-1] = valid(clamp(dxs[0]))
	}

	pMinus1 := decimal.NewFromInt(int64(p - 1))
	pd := decimal.NewFromInt(int64(p))
	for i := p; i < n; i++ {
		smoothedTR = smoothedTR.Mul(pMinus1).Div(pd).Add(tr[i])
		smoothedPlusDM = smoothedPlusDM.Mul(pMinus1).Div(pd).Add(plusDM[i])
		smoothedMinusDM = smoothedMinusDM.Mul(pMinus1).Div(pd).Add(minusDM[i])

		pdi, mdi = emitDI()
		plusDI[i] = valid(pdi)
		minusDI[i] = valid(mdi)
		dxs = append(dxs, dx(pdi, mdi))

		if i == firstADXIdx {
			sum := decimal.Zero
			for _, d := range dxs {
				sum = sum.Add(d)
			}
			adx[i] = valid(clamp(sum.Div(decimal.NewFromInt(int64(len(dxs))))))
		} else if i > firstADXIdx {
			prevADX := adx[i-1].Value
			adx[i] = valid(clamp(prevADX.Mul(pMinus1).Add(dxs[len(dxs)-1]).Div(pd)))
		}
	}
	return adx, plusDI, minusDI, nil
}

func dx(pdi, mdi decimal.Decimal) decimal.Decimal {
	sum := pdi.Add(mdi)
	if sum.IsZero() {
		return decimal.Zero
	}
	return pdi.Sub(mdi).Abs().Div(sum).Mul(decimal.NewFromInt(100))
}

func sumRange(v []decimal.Decimal, from, to int) decimal.Decimal {
	sum := decimal.Zero
	for i := from; i < to && i < len(v); i++ {
		sum = sum.Add(v[i])
	}
	return sum
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return d
}

// Donchian computes the rolling channel: upper = highest high over p bars,
// lower = lowest low, mid = (upper+lower)/2.
func Donchian(candles []candle.Candle, p int) (upper, lower, mid []Value, err error) {
	if p < 1 {
		return nil, nil, nil, fmt.Errorf("indicator: Donchian period must be >= 1, got %d", p)
	}
	n := len(candles)
	upper, lower, mid = fill(n), fill(n), fill(n)
	for i := p - 1; i < n; i++ {
		hi := candles[i-p+1].High
		lo := candles[i-p+1].Low
		for j := i - p + 2; j <= i; j++ {
			if candles[j].High.GreaterThan(hi) {
				hi = candles[j].High
			}
			if candles[j].Low.LessThan(lo) {
				lo = candles[j].Low
			}
		}
		upper[i] = valid(hi)
		lower[i] = valid(lo)
		mid[i] = valid(hi.Add(lo).Div(decimal.NewFromInt(2)))
	}
	return upper, lower, mid, nil
}

// Keltner computes Keltner channels: mid = EMA(close, emaP), half-width =
// mult * EMA(TrueRange, trP). Note this uses EMA of true range, not ATR.
func Keltner(candles []candle.Candle, emaP, trP int, mult decimal.Decimal) (upper, mid, lower []Value, err error) {
	midEMA, err := EMA(closes(candles), emaP)
	if err != nil {
		return nil, nil, nil, err
	}
	trEMA, err := EMA(trueRanges(candles), trP)
	if err != nil {
		return nil, nil, nil, err
	}
	n := len(candles)
	upper, mid, lower = fill(n), fill(n), fill(n)
	for i := 0; i < n; i++ {
		if !midEMA[i].Valid || !trEMA[i].Valid {
			continue
		}
		halfWidth := mult.Mul(trEMA[i].Value)
		mid[i] = midEMA[i]
		upper[i] = valid(midEMA[i].Value.Add(halfWidth))
		lower[i] = valid(midEMA[i].Value.Sub(halfWidth))
	}
	return upper, mid, lower, nil
}
