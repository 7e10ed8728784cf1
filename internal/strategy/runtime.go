package strategy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/guyghost/perpcore/internal/aggregate"
	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/logger"
)

// Dispatcher is the subset of the signal-to-order pipeline the runtime
// needs: hand off a produced signal for translation and risk gating.
type Dispatcher interface {
	Dispatch(ctx context.Context, symbol string, strategyName string, alertID string, sig Signal)
}

// Source is the ingestor capability the runtime drives: a live candle
// stream with closed/in-progress discrimination.
type Source interface {
	StreamLive(ctx context.Context, onCandle func(c candle.Candle, isClosed bool)) error
	Snapshot() []candle.Candle
}

// HistoryProvider supplies counters derived from persisted trade history,
// used to build RiskState for context (bars since last exit, consecutive
// losses, etc). The persistence layer implements this; the runtime only
// consumes it.
type HistoryProvider interface {
	RiskState(symbol string) RiskState
	OpenPosition(symbol string) *OpenPosition
}

// Runtime drives one Strategy against one symbol's live candle stream. It
// is the same Strategy object the backtest engine drives; the contract is
// shared, only the candle source differs.
type Runtime struct {
	Symbol       string
	BaseInterval candle.Interval
	Strategy     Strategy
	Source       Source
	History      HistoryProvider
	Dispatcher   Dispatcher
	Capacity     int // rolling buffer capacity; NewRuntime sets max(warmup,500); 0 disables trimming

	log *logger.Logger

	mu     sync.Mutex
	buffer []candle.Candle
	htf    map[string][]candle.Candle
}

// NewRuntime constructs a Runtime with its rolling buffer capacity resolved
// max(warmup, N), N defaulting to 500.
func NewRuntime(symbol string, base candle.Interval, strat Strategy, src Source, hist HistoryProvider, disp Dispatcher) (*Runtime, error) {
	warmup, err := aggregate.ComputeMinWarmup(strat.Warmup, base)
	if err != nil {
		return nil, fmt.Errorf("strategy: compute warmup: %w", err)
	}
	capacity := 500
	if warmup > capacity {
		capacity = warmup
	}
	return &Runtime{
		Symbol:       symbol,
		BaseInterval: base,
		Strategy:     strat,
		Source:       src,
		History:      hist,
		Dispatcher:   disp,
		Capacity:     capacity,
		log:          logger.Component("strategy-runtime").Symbol(symbol),
		htf:          make(map[string][]candle.Candle),
	}, nil
}

// Run subscribes to the live stream and drives the strategy until ctx is
// cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	r.buffer = r.Source.Snapshot()
	r.trimLocked()
	r.mu.Unlock()

	return r.Source.StreamLive(ctx, func(c candle.Candle, isClosed bool) {
		if isClosed {
			r.onClosedCandle(ctx, c)
			return
		}
		if r.Strategy.TickSensitive {
			r.onTickCandle(ctx, c)
		}
	})
}

func (r *Runtime) onClosedCandle(ctx context.Context, c candle.Candle) {
	r.mu.Lock()
	r.appendLocked(c)
	r.refreshHTFLocked()
	candleCtx, ok := r.buildContextLocked()
	r.mu.Unlock()
	if !ok {
		return
	}
	r.evaluate(ctx, candleCtx, c)
}

func (r *Runtime) onTickCandle(ctx context.Context, c candle.Candle) {
	r.mu.Lock()
	snapshot := append(append([]candle.Candle{}, r.buffer...), c)
	htfCopy := r.htf
	r.mu.Unlock()

	candleCtx := Context{
		Base:     snapshot,
		Index:    len(snapshot) - 1,
		HTF:      htfCopy,
		Position: r.History.OpenPosition(r.Symbol),
		Risk:     r.History.RiskState(r.Symbol),
	}
	r.evaluate(ctx, candleCtx, c)
}

// appendLocked merges a closed candle into the rolling buffer, honoring
// same-timestamp replace semantics and enforcing Capacity.
func (r *Runtime) appendLocked(c candle.Candle) {
	if n := len(r.buffer); n > 0 && r.buffer[n-1].Timestamp.Equal(c.Timestamp) {
		r.buffer[n-1] = c
		return
	}
	r.buffer = append(r.buffer, c)
	r.trimLocked()
}

func (r *Runtime) trimLocked() {
	if r.Capacity > 0 && len(r.buffer) > r.Capacity {
		r.buffer = r.buffer[len(r.buffer)-r.Capacity:]
	}
}

func (r *Runtime) refreshHTFLocked() {
	for _, tfKey := range r.Strategy.RequiredTimeframes {
		out, err := aggregate.Aggregate(r.buffer, r.BaseInterval, candle.Interval(tfKey))
		if err != nil {
			r.log.Warn("failed to aggregate required timeframe", "timeframe", tfKey, "error", err)
			continue
		}
		r.htf[tfKey] = out
	}
}

func (r *Runtime) buildContextLocked() (Context, bool) {
	if len(r.buffer) == 0 {
		return Context{}, false
	}
	htfCopy := make(map[string][]candle.Candle, len(r.htf))
	for k, v := range r.htf {
		htfCopy[k] = v
	}
	return Context{
		Base:     append([]candle.Candle{}, r.buffer...),
		Index:    len(r.buffer) - 1,
		HTF:      htfCopy,
		Position: r.History.OpenPosition(r.Symbol),
		Risk:     r.History.RiskState(r.Symbol),
	}, true
}

func (r *Runtime) evaluate(ctx context.Context, candleCtx Context, bar candle.Candle) {
	if candleCtx.Position == nil {
		if sig := r.Strategy.OnCandle(candleCtx, r.Strategy.Params); sig != nil {
			alertID := AlertID(r.Symbol, r.Strategy.Name, bar.Timestamp.UnixMilli(), sig.Direction)
			r.Dispatcher.Dispatch(ctx, r.Symbol, r.Strategy.Name, alertID, *sig)
		}
		return
	}
	if r.Strategy.ShouldExit != nil {
		if dec := r.Strategy.ShouldExit(candleCtx, r.Strategy.Params); dec != nil && dec.Exit {
			r.log.Info("strategy requested discretionary exit", "reason", dec.Reason)
		}
	}
}

// AlertID derives a stable, deterministic idempotency identifier from
// (symbol, strategy, bar timestamp, direction).
func AlertID(symbol, strategyName string, barTimestampMs int64, dir Direction) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", symbol, strategyName, barTimestampMs, dir)))
	return hex.EncodeToString(h[:16])
}
