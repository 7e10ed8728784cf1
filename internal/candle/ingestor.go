package candle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guyghost/perpcore/internal/logger"
)

// Source is the subset of the exchange adapter capability set the ingestor
// needs: fetching historical candles and subscribing to live updates. The
// concrete implementation lives in internal/exchange; this interface keeps
// the ingestor decoupled from any one venue.
type Source interface {
	GetCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
	SubscribeCandles(ctx context.Context, symbol string, interval Interval, onUpdate func(Candle)) error
}

// Ingestor owns the ordered candle sequence for one (symbol, interval, source)
// triple. It is the single writer; readers receive snapshots via Snapshot.
type Ingestor struct {
	symbol   string
	interval Interval
	source   Source
	log      *logger.Logger

	mu       sync.RWMutex
	sequence []Candle // strictly increasing timestamps among closed candles
}

// New creates an Ingestor for symbol/interval backed by source.
func New(symbol string, interval Interval, source Source) *Ingestor {
	return &Ingestor{
		symbol:   symbol,
		interval: interval,
		source:   source,
		log:      logger.Component("candle-ingestor").Symbol(symbol),
	}
}

// Warmup fetches the last `bars` candles from the remote source, discards
// any candle failing validation, and returns the retained sequence. It also
// seeds the ingestor's internal sequence.
func (ing *Ingestor) Warmup(ctx context.Context, bars int) ([]Candle, error) {
	raw, err := ing.source.GetCandles(ctx, ing.symbol, ing.interval, bars)
	if err != nil {
		return nil, fmt.Errorf("candle: warmup fetch failed: %w", err)
	}

	retained := make([]Candle, 0, len(raw))
	for _, c := range raw {
		if !isRetainable(c) {
			ing.log.Warn("discarding invalid candle during warmup", "timestamp", c.Timestamp)
			continue
		}
		retained = append(retained, c)
	}

	ing.mu.Lock()
	ing.sequence = retained
	ing.mu.Unlock()

	return retained, nil
}

// isRetainable applies the warmup validation rule: c not finite or <= 0,
// o not finite or <= 0, or h < l, discards the candle.
func isRetainable(c Candle) bool {
	if !finite(c.Close) || c.Close.Sign() <= 0 {
		return false
	}
	if !finite(c.Open) || c.Open.Sign() <= 0 {
		return false
	}
	if c.High.LessThan(c.Low) {
		return false
	}
	return true
}

// Poll fetches candles strictly newer than the last known timestamp plus the
// in-progress bucket; each returned candle either replaces an existing
// sequence entry with a matching timestamp (in-progress update) or is
// appended. Returns the latest candle, or ok=false if nothing new arrived.
func (ing *Ingestor) Poll(ctx context.Context) (Candle, bool, error) {
	ing.mu.RLock()
	var since time.Time
	if n := len(ing.sequence); n > 0 {
		since = ing.sequence[n-1].Timestamp
	}
	ing.mu.RUnlock()

	fresh, err := ing.source.GetCandles(ctx, ing.symbol, ing.interval, 2)
	if err != nil {
		return Candle{}, false, fmt.Errorf("candle: poll failed: %w", err)
	}
	if len(fresh) == 0 {
		return Candle{}, false, nil
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()

	var latest Candle
	got := false
	for _, c := range fresh {
		if !since.IsZero() && c.Timestamp.Before(since) {
			ing.log.Warn("rejecting out-of-order candle from source", "timestamp", c.Timestamp, "since", since)
			continue
		}
		ing.merge(c)
		latest = c
		got = true
	}
	return latest, got, nil
}

// merge replaces a same-timestamp entry (in-progress update) or appends a
// new one. Caller must hold ing.mu.
func (ing *Ingestor) merge(c Candle) {
	for i := len(ing.sequence) - 1; i >= 0; i-- {
		if ing.sequence[i].Timestamp.Equal(c.Timestamp) {
			ing.sequence[i] = c
			return
		}
		if ing.sequence[i].Timestamp.Before(c.Timestamp) {
			break
		}
	}
	ing.sequence = append(ing.sequence, c)
}

// StreamLive opens a push subscription on the source and invokes onCandle
// with (candle, isClosed): isClosed=false on every update to the
// in-progress bucket, and isClosed=true exactly once, with the previous
// candle, the first time a strictly greater timestamp is observed.
func (ing *Ingestor) StreamLive(ctx context.Context, onCandle func(c Candle, isClosed bool)) error {
	var mu sync.Mutex
	var inProgress *Candle

	handler := func(c Candle) {
		mu.Lock()
		defer mu.Unlock()

		ing.mu.Lock()
		ing.merge(c)
		ing.mu.Unlock()

		if inProgress == nil {
			cp := c
			inProgress = &cp
			onCandle(c, false)
			return
		}

		if c.Timestamp.After(inProgress.Timestamp) {
			closed := *inProgress
			onCandle(closed, true)
			cp := c
			inProgress = &cp
			onCandle(c, false)
			return
		}

		*inProgress = c
		onCandle(c, false)
	}

	if err := ing.source.SubscribeCandles(ctx, ing.symbol, ing.interval, handler); err != nil {
		return fmt.Errorf("candle: stream subscribe failed: %w", err)
	}
	return nil
}

// Snapshot returns an immutable copy of the current sequence.
func (ing *Ingestor) Snapshot() []Candle {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	out := make([]Candle, len(ing.sequence))
	copy(out, ing.sequence)
	return out
}

// Len returns the number of candles currently held.
func (ing *Ingestor) Len() int {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	return len(ing.sequence)
}
