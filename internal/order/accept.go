package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/position"
)

// accept drives the acceptance sequence for an already risk-approved
// intent:
//  1. ensure leverage set on the venue for this symbol
//  2. place the entry as a market order
//  3. place the stop-loss as a reduce-only trigger on the opposite side
//  4. place each take-profit as a reduce-only limit on the opposite side
//  5. record the Position in the Book and return the AcceptedOrder
//
// A failure placing the stop-loss or a take-profit does NOT cancel the
// entry.
// The Position is recorded anyway with VenueIncomplete=true (and
// StopLoss=decimal.Zero if the SL placement itself failed), leaving recovery
// to the Reconciler's next pass.
func (p *Processor) accept(ctx context.Context, intent OrderIntent) (AcceptedOrder, error) {
	meta, err := p.Session.SymbolMeta(ctx, p.Adapter, intent.Symbol)
	if err != nil {
		return AcceptedOrder{}, err
	}
	size := FloorToSzDecimals(intent.Size, meta.SzDecimals)
	entryPrice := RoundPrice(intent.EntryPrice)

	leverage := int(intent.Leverage.IntPart())
	if leverage <= 0 {
		leverage = 1
	}
	if err := p.Session.EnsureLeverage(ctx, p.Adapter, intent.Symbol, leverage, p.MarginMode); err != nil {
		return AcceptedOrder{}, err
	}

	entry, err := p.Adapter.PlaceMarket(ctx, intent.Symbol, intent.IsBuy(), size)
	if err != nil {
		return AcceptedOrder{}, err
	}

	accepted := AcceptedOrder{
		Intent:       intent,
		EntryOrderID: entry.VenueOrderID,
		OpenedAt:     time.Now(),
	}

	stopLoss := intent.StopLoss
	slID, slErr := p.Adapter.PlaceStopTrigger(ctx, intent.Symbol, !intent.IsBuy(), size, RoundPrice(stopLoss), true)
	if slErr != nil {
		accepted.VenueIncomplete = true
		stopLoss = decimal.Zero
	} else {
		accepted.StopLossOrderID = slID.VenueOrderID
	}

	for _, tp := range intent.TakeProfits {
		tpSize := FloorToSzDecimals(size.Mul(tp.FractionOfPosition), meta.SzDecimals)
		if !tpSize.IsPositive() {
			continue
		}
		tpOrder, tpErr := p.Adapter.PlaceLimit(ctx, intent.Symbol, !intent.IsBuy(), tpSize, RoundPrice(tp.Price), true)
		if tpErr != nil {
			accepted.VenueIncomplete = true
			continue
		}
		accepted.TakeProfitIDs = append(accepted.TakeProfitIDs, tpOrder.VenueOrderID)
	}

	pos := position.Position{
		Symbol:          intent.Symbol,
		Direction:       intent.Direction,
		EntryPrice:      entryPrice,
		Size:            size,
		StopLoss:        stopLoss,
		TakeProfits:     intent.TakeProfits,
		OpenedAt:        accepted.OpenedAt,
		VenueIncomplete: accepted.VenueIncomplete,
		EntryOrderID:    accepted.EntryOrderID,
	}
	if err := p.Book.Open(pos); err != nil {
		return AcceptedOrder{}, err
	}

	return accepted, nil
}
