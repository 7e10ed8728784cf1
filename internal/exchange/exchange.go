// Package exchange defines the single-venue capability set the rest of the
// system trades against, a dry-run adapter that satisfies it in memory, and
// a Hyperliquid wire implementation over its REST and WebSocket endpoints.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
)

// Sanity ranges applied to every price/size/equity value before placement,
// independent of which venue is behind the Adapter.
var (
	maxPrice  = decimal.New(10_000_000, 0)
	maxSize   = decimal.New(1_000_000, 0)
	minEquity = decimal.New(-1_000_000, 0)
	maxEquity = decimal.New(100_000_000, 0)
)

// ValidatePrice rejects non-positive prices and prices outside the sanity range.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("exchange: price must be positive, got %s", price)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("exchange: price %s exceeds sanity bound", price)
	}
	return nil
}

// ValidateSize rejects negative sizes and sizes outside the sanity range.
func ValidateSize(size decimal.Decimal) error {
	if size.IsNegative() {
		return fmt.Errorf("exchange: size must be non-negative, got %s", size)
	}
	if size.GreaterThanOrEqual(maxSize) {
		return fmt.Errorf("exchange: size %s exceeds sanity bound", size)
	}
	return nil
}

// ValidateEquity rejects equity values outside the sanity range.
func ValidateEquity(equity decimal.Decimal) error {
	if equity.LessThanOrEqual(minEquity) || equity.GreaterThanOrEqual(maxEquity) {
		return fmt.Errorf("exchange: equity %s outside sanity bound", equity)
	}
	return nil
}

// MarginMode selects cross or isolated margin for setLeverage.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// OrderStatus is the internal, venue-independent status of a placed order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// PlacedOrder is the adapter's normalized return value for any placement call.
type PlacedOrder struct {
	VenueOrderID string
	Symbol       string
	IsBuy        bool
	Size         decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	ReduceOnly   bool
	Status       OrderStatus
	CreatedAt    time.Time
}

// OpenOrder is a resting order as reported by the venue, used both for
// routine book reconciliation and for protective-order recovery on restart.
type OpenOrder struct {
	VenueOrderID string
	Symbol       string
	IsBuy        bool
	Size         decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal // zero for plain limit orders
	IsTrigger    bool
	ReduceOnly   bool
	CreatedAt    time.Time
}

// Position is a venue-reported open position.
type Position struct {
	Symbol        string
	IsLong        bool
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	Leverage      decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// HistoricalOrder is a closed/cancelled/rejected order from venue history,
// used to reconcile against pending local orders.
type HistoricalOrder struct {
	VenueOrderID string
	Symbol       string
	Status       OrderStatus
	FilledSize   decimal.Decimal
	AvgPrice     decimal.Decimal
	ClosedAt     time.Time
}

// SymbolMeta describes venue-specific precision for a symbol.
type SymbolMeta struct {
	Symbol     string
	SzDecimals int32
}

// Adapter is the capability set every venue implementation and the dry-run
// variant must satisfy.
type Adapter interface {
	Connect(ctx context.Context) error
	SetLeverage(ctx context.Context, symbol string, value int, mode MarginMode) error
	PlaceMarket(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) (PlacedOrder, error)
	PlaceStopTrigger(ctx context.Context, symbol string, isBuy bool, size, triggerPrice decimal.Decimal, reduceOnly bool) (PlacedOrder, error)
	PlaceLimit(ctx context.Context, symbol string, isBuy bool, size, price decimal.Decimal, reduceOnly bool) (PlacedOrder, error)
	Cancel(ctx context.Context, symbol, orderID string) error
	GetPositions(ctx context.Context, wallet string) ([]Position, error)
	GetOpenOrders(ctx context.Context, wallet string) ([]OpenOrder, error)
	GetHistoricalOrders(ctx context.Context, wallet string, limit int) ([]HistoricalOrder, error)
	GetAccountEquity(ctx context.Context, wallet string) (decimal.Decimal, error)
	GetSymbolMeta(ctx context.Context, symbol string) (SymbolMeta, error)

	// GetCandles and SubscribeCandles let an Adapter double as the candle
	// Ingestor's Source:
	// Hyperliquid has no native candle push channel, so SubscribeCandles is
	// expected to be backed by polling GetCandles under the hood.
	GetCandles(ctx context.Context, symbol string, interval candle.Interval, limit int) ([]candle.Candle, error)
	SubscribeCandles(ctx context.Context, symbol string, interval candle.Interval, onUpdate func(candle.Candle)) error
}

// MapOrderStatus implements the venue -> internal order status mapping.
// hasLocalPosition matters only when the order is absent from the
// venue's open-order set: with a local position still present, the order is
// treated as too-recent and left unchanged (signalled by ok=false).
func MapOrderStatus(venueStatus string, presentAtVenue, hasLocalPosition bool) (status OrderStatus, ok bool) {
	if !presentAtVenue {
		if hasLocalPosition {
			return "", false
		}
		return OrderCancelled, true
	}
	switch venueStatus {
	case "filled", "triggered":
		return OrderFilled, true
	case "canceled", "cancelled", "marginCanceled":
		return OrderCancelled, true
	case "rejected":
		return OrderRejected, true
	default:
		return OrderPending, true
	}
}
