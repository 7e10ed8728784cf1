package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/corerr"
	"github.com/guyghost/perpcore/internal/exchange"
	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/risk"
	"github.com/guyghost/perpcore/internal/strategy"
)

// Processor wires the translator, the risk gate, the Session, an
// exchange.Adapter, and the Position Book into the end-to-end submit path.
type Processor struct {
	Adapter    exchange.Adapter
	Session    *Session
	Book       *position.Book
	Guardrails risk.Guardrails
	Tracker    *risk.Tracker
	Dedup      AlertDeduper
	Sizing     SizingPolicy
	Wallet     string
	MarginMode exchange.MarginMode
}

// SubmitResult is the outcome of one Submit call: exactly one of Accepted or
// Rejected is non-nil, unless err is non-nil (a hard failure before a
// verdict could be reached).
type SubmitResult struct {
	Accepted *AcceptedOrder
	Rejected *RejectedOrder
}

// Submit runs the full translate -> risk gate -> place pipeline for one
// incoming signal. Duplicate alertIds short-circuit before translation so
// a replayed alert never places a second set of orders.
func (p *Processor) Submit(ctx context.Context, sig strategy.Signal, currentPrice decimal.Decimal, symbol string, leverage int, alertID string) (SubmitResult, error) {
	if p.Dedup.SeenAlertID(alertID) {
		return SubmitResult{Rejected: &RejectedOrder{AlertID: alertID, Reason: "Duplicate alert_id"}}, nil
	}

	intent, err := Translate(sig, currentPrice, symbol, decimal.NewFromInt(int64(leverage)), p.Sizing, alertID)
	if err != nil {
		p.Dedup.RecordAlertID(alertID)
		return SubmitResult{Rejected: &RejectedOrder{AlertID: alertID, Reason: err.Error()}}, nil
	}

	tradesToday, dailyLossUsd, _ := p.Tracker.Snapshot(time.Now())
	st := risk.State{
		OpenPositions: p.Book.Count(),
		DailyLossUsd:  dailyLossUsd,
		TradesToday:   tradesToday,
		CurrentPrice:  currentPrice,
	}
	ok, reason := risk.Evaluate(p.Guardrails, risk.Intent{
		NotionalUsd: intent.NotionalUsd,
		Leverage:    intent.Leverage,
		EntryPrice:  intent.EntryPrice,
	}, st)
	if !ok {
		p.Dedup.RecordAlertID(alertID)
		return SubmitResult{Rejected: &RejectedOrder{AlertID: alertID, Reason: reason}}, nil
	}

	p.Dedup.RecordAlertID(alertID)
	accepted, err := p.accept(ctx, intent)
	if err != nil {
		return SubmitResult{}, corerr.NewError(corerr.VenueFatal, "order.Submit", err)
	}
	return SubmitResult{Accepted: &accepted}, nil
}
