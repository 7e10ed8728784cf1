package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

// Translate converts a strategy Signal into an OrderIntent under the given
// sizing policy. entryPrice resolves to signal.EntryPrice when set,
// otherwise currentPrice. Size <= 0 or the sizing computation failing (e.g.
// non-finite) is a translation failure.
func Translate(sig strategy.Signal, currentPrice decimal.Decimal, symbol string, leverage decimal.Decimal, sizing SizingPolicy, alertID string) (OrderIntent, error) {
	entry := currentPrice
	if sig.EntryPrice != nil {
		entry = *sig.EntryPrice
	}
	if !entry.IsPositive() {
		return OrderIntent{}, fmt.Errorf("order: translate: resolved entry price must be positive, got %s", entry)
	}

	size, err := sizing.Size(entry, sig.StopLoss)
	if err != nil {
		return OrderIntent{}, fmt.Errorf("order: translate: %w", err)
	}
	if !size.IsPositive() {
		return OrderIntent{}, fmt.Errorf("order: translate: computed size must be positive, got %s", size)
	}

	return OrderIntent{
		AlertID:     alertID,
		Symbol:      symbol,
		Direction:   sig.Direction,
		Size:        size,
		EntryPrice:  entry,
		StopLoss:    sig.StopLoss,
		TakeProfits: sig.TakeProfits,
		NotionalUsd: size.Mul(entry),
		Leverage:    leverage,
		Comment:     sig.Comment,
	}, nil
}

// sigFigs is the number of significant figures prices are rounded to before
// placement.
const sigFigs = 5

// RoundPrice rounds a price to 5 significant figures.
func RoundPrice(price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return price
	}
	neg := price.IsNegative()
	abs := price.Abs()
	places := int32(sigFigs) - int32(abs.NumDigits()) - abs.Exponent()
	rounded := abs.Round(places)
	if neg {
		return rounded.Neg()
	}
	return rounded
}

// FloorToSzDecimals truncates size toward zero at szDecimals precision
// (never rounds up past what the venue allows).
func FloorToSzDecimals(size decimal.Decimal, szDecimals int32) decimal.Decimal {
	return size.Truncate(szDecimals)
}
