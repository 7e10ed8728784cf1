// Package candle defines the Candle data model, the interval enumeration,
// and the per-symbol candle Ingestor.
package candle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar for a symbol.
type Candle struct {
	Symbol    string
	Timestamp time.Time // UTC, bucket-aligned
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Trades    int64 // n, may be 0
}

// TimestampMs returns the epoch-millisecond representation of t, matching
// the wire format used across the system.
func (c Candle) TimestampMs() int64 {
	return c.Timestamp.UnixMilli()
}

// Valid reports whether the candle satisfies the OHLCV invariants:
// l <= min(o,c) <= max(o,c) <= h, and all fields finite and non-negative.
func (c Candle) Valid() bool {
	if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) || !finite(c.Volume) {
		return false
	}
	if c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() || c.Close.IsNegative() || c.Volume.IsNegative() {
		return false
	}
	minOC := decimal.Min(c.Open, c.Close)
	maxOC := decimal.Max(c.Open, c.Close)
	if c.Low.GreaterThan(minOC) || maxOC.GreaterThan(c.High) {
		return false
	}
	return true
}

// finite treats decimal.Decimal as always finite (no NaN/Inf representable),
// but guards against the zero-value-with-wrong-exponent class of bugs by
// requiring the value round-trips through String without panicking.
func finite(d decimal.Decimal) bool {
	defer func() { recover() }()
	_ = d.String()
	return true
}

// Interval is the closed enumeration of supported candle intervals.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// durations maps each interval to its canonical millisecond duration.
// 1M is approximated as 30 days.
var durations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval3d:  3 * 24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour,
}

// Duration returns the canonical duration for i, or an error if i is not a
// recognized interval.
func (i Interval) Duration() (time.Duration, error) {
	d, ok := durations[i]
	if !ok {
		return 0, fmt.Errorf("candle: unknown interval %q", string(i))
	}
	return d, nil
}

// Milliseconds returns Duration() in epoch-millisecond units, ignoring the
// error (callers that already validated i can use this directly).
func (i Interval) Milliseconds() int64 {
	d, _ := i.Duration()
	return d.Milliseconds()
}

// AlignedBucket returns the start of the interval bucket containing t, in UTC.
func AlignedBucket(t time.Time, i Interval) time.Time {
	d, err := i.Duration()
	if err != nil {
		return t.UTC()
	}
	u := t.UTC()
	ms := u.UnixMilli()
	bucketMs := d.Milliseconds()
	aligned := (ms / bucketMs) * bucketMs
	return time.UnixMilli(aligned).UTC()
}
