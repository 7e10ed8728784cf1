// Package aggregate groups base-interval candles into higher-timeframe
// buckets and computes the minimum base-bar warmup a strategy needs across
// its declared timeframes.
package aggregate

import (
	"math"

	"github.com/guyghost/perpcore/internal/candle"
)

// Aggregate groups base candles into buckets aligned to target's interval
// boundaries in UTC. Each bucket yields a candle whose Open is the first
// bucket member's Open, High/Low are the extrema, Close is the last
// member's Close, Volume and Trades are sums, and Timestamp is the bucket
// start. An incomplete trailing bucket (one whose window has not yet
// closed relative to the last base candle) is dropped.
func Aggregate(base []candle.Candle, baseInterval, target candle.Interval) ([]candle.Candle, error) {
	targetMs, err := target.Duration()
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, nil
	}

	var out []candle.Candle
	var bucketStart int64
	var cur candle.Candle
	open := false

	flush := func() {
		if open {
			out = append(out, cur)
			open = false
		}
	}

	for _, c := range base {
		bs := candle.AlignedBucket(c.Timestamp, target).UnixMilli()
		if !open || bs != bucketStart {
			flush()
			bucketStart = bs
			cur = candle.Candle{
				Symbol:    c.Symbol,
				Timestamp: candle.AlignedBucket(c.Timestamp, target),
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
				Trades:    c.Trades,
			}
			open = true
			continue
		}
		if c.High.GreaterThan(cur.High) {
			cur.High = c.High
		}
		if c.Low.LessThan(cur.Low) {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume = cur.Volume.Add(c.Volume)
		cur.Trades += c.Trades
	}

	// Drop the trailing bucket unless it is fully covered by base candles.
	if open {
		bucketEnd := bucketStart + targetMs.Milliseconds()
		if isBucketComplete(base, bucketStart, bucketEnd, baseInterval) {
			out = append(out, cur)
		}
	}
	return out, nil
}

// isBucketComplete reports whether the base candles cover every expected
// sub-bucket boundary within [bucketStart, bucketEnd).
func isBucketComplete(base []candle.Candle, bucketStart, bucketEnd int64, baseInterval candle.Interval) bool {
	bd, err := baseInterval.Duration()
	if err != nil || bd <= 0 {
		return true
	}
	expected := int((bucketEnd - bucketStart) / bd.Milliseconds())
	if expected <= 0 {
		return true
	}
	count := 0
	for _, c := range base {
		ms := c.Timestamp.UnixMilli()
		if ms >= bucketStart && ms < bucketEnd {
			count++
		}
	}
	return count >= expected
}

// ComputeMinWarmup computes the minimum number of base-interval bars needed
// to satisfy every declared timeframe requirement. The "source" key is
// taken exact (no margin); every higher-timeframe requirement at interval H
// needs ceil(M * ceil(H/S) * 1.2) base bars. The result is the maximum
// across all declared requirements.
func ComputeMinWarmup(requirements map[string]int, sourceInterval candle.Interval) (int, error) {
	max := 0
	sourceMs, err := sourceInterval.Duration()
	if err != nil {
		return 0, err
	}

	for key, bars := range requirements {
		if bars <= 0 {
			continue
		}
		if key == "source" {
			if bars > max {
				max = bars
			}
			continue
		}
		htf := candle.Interval(key)
		htfMs, err := htf.Duration()
		if err != nil {
			return 0, err
		}
		barsPerHTF := int(math.Ceil(float64(htfMs.Milliseconds()) / float64(sourceMs.Milliseconds())))
		needed := int(math.Ceil(float64(bars*barsPerHTF) * 1.2))
		if needed > max {
			max = needed
		}
	}
	return max, nil
}
