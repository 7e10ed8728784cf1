package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DryRunAdapter honors the Adapter contract against an in-memory book,
// producing simulated order ids and reporting empty account state. It
// backs replay-equivalence testing and operators running without venue
// credentials.
type DryRunAdapter struct {
	mu       sync.Mutex
	seq      int64
	leverage map[string]int
	orders   map[string]OpenOrder // keyed by symbol+orderID
	history  []HistoricalOrder
	szDec    map[string]int32

	// marketData, when set, is delegated to for GetCandles/SubscribeCandles
	// so a dry run can trade against real market data with simulated fills
	// (paper trading). When nil, a synthetic deterministic walk stands in,
	// for operators with no venue connectivity at all.
	marketData Adapter
}

// NewDryRunAdapter constructs a DryRunAdapter. szDecimals, if non-nil,
// overrides the default szDecimals=4 reported by GetSymbolMeta.
func NewDryRunAdapter(szDecimals map[string]int32) *DryRunAdapter {
	return &DryRunAdapter{
		leverage: make(map[string]int),
		orders:   make(map[string]OpenOrder),
		szDec:    szDecimals,
	}
}

// WithMarketData attaches a real Adapter whose GetCandles/SubscribeCandles
// the dry run delegates to, so simulated orders fill against real prices
// instead of a synthetic walk.
func (a *DryRunAdapter) WithMarketData(source Adapter) *DryRunAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marketData = source
	return a
}

func (a *DryRunAdapter) nextID() string {
	a.seq++
	return fmt.Sprintf("dryrun-%d", a.seq)
}

func (a *DryRunAdapter) Connect(ctx context.Context) error { return nil }

func (a *DryRunAdapter) SetLeverage(ctx context.Context, symbol string, value int, mode MarginMode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leverage[symbol] = value
	return nil
}

func (a *DryRunAdapter) place(symbol string, isBuy bool, size, price, trigger decimal.Decimal, isTrigger, reduceOnly bool) (PlacedOrder, error) {
	if err := ValidateSize(size); err != nil {
		return PlacedOrder{}, err
	}
	if !price.IsZero() {
		if err := ValidatePrice(price); err != nil {
			return PlacedOrder{}, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID()
	now := time.Now()
	// A market order (no price, no trigger) fills at once and never rests.
	if isTrigger || !price.IsZero() {
		a.orders[symbol+"/"+id] = OpenOrder{
			VenueOrderID: id, Symbol: symbol, IsBuy: isBuy, Size: size,
			Price: price, TriggerPrice: trigger, IsTrigger: isTrigger,
			ReduceOnly: reduceOnly, CreatedAt: now,
		}
	}
	return PlacedOrder{
		VenueOrderID: id, Symbol: symbol, IsBuy: isBuy, Size: size,
		Price: price, TriggerPrice: trigger, ReduceOnly: reduceOnly,
		Status: OrderFilled, CreatedAt: now,
	}, nil
}

func (a *DryRunAdapter) PlaceMarket(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) (PlacedOrder, error) {
	return a.place(symbol, isBuy, size, decimal.Zero, decimal.Zero, false, false)
}

func (a *DryRunAdapter) PlaceStopTrigger(ctx context.Context, symbol string, isBuy bool, size, triggerPrice decimal.Decimal, reduceOnly bool) (PlacedOrder, error) {
	po, err := a.place(symbol, isBuy, size, decimal.Zero, triggerPrice, true, reduceOnly)
	if err == nil {
		po.Status = OrderPending
	}
	return po, err
}

func (a *DryRunAdapter) PlaceLimit(ctx context.Context, symbol string, isBuy bool, size, price decimal.Decimal, reduceOnly bool) (PlacedOrder, error) {
	po, err := a.place(symbol, isBuy, size, price, decimal.Zero, false, reduceOnly)
	if err == nil {
		po.Status = OrderPending
	}
	return po, err
}

func (a *DryRunAdapter) Cancel(ctx context.Context, symbol, orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := symbol + "/" + orderID
	o, ok := a.orders[key]
	if !ok {
		return fmt.Errorf("exchange: dry-run order %s not found", orderID)
	}
	delete(a.orders, key)
	a.history = append(a.history, HistoricalOrder{
		VenueOrderID: orderID, Symbol: symbol, Status: OrderCancelled, ClosedAt: time.Now(),
	})
	_ = o
	return nil
}

// GetPositions always reports an empty book: the dry-run adapter never
// maintains venue-side position state, leaving that to the caller's own
// Position Book.
func (a *DryRunAdapter) GetPositions(ctx context.Context, wallet string) ([]Position, error) {
	return nil, nil
}

func (a *DryRunAdapter) GetOpenOrders(ctx context.Context, wallet string) ([]OpenOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OpenOrder, 0, len(a.orders))
	for _, o := range a.orders {
		out = append(out, o)
	}
	return out, nil
}

func (a *DryRunAdapter) GetHistoricalOrders(ctx context.Context, wallet string, limit int) ([]HistoricalOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit <= 0 || limit > len(a.history) {
		limit = len(a.history)
	}
	out := make([]HistoricalOrder, limit)
	copy(out, a.history[len(a.history)-limit:])
	return out, nil
}

// GetAccountEquity always reports zero: a dry run has no funded account.
func (a *DryRunAdapter) GetAccountEquity(ctx context.Context, wallet string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (a *DryRunAdapter) GetSymbolMeta(ctx context.Context, symbol string) (SymbolMeta, error) {
	dec := int32(4)
	if a.szDec != nil {
		if d, ok := a.szDec[symbol]; ok {
			dec = d
		}
	}
	return SymbolMeta{Symbol: symbol, SzDecimals: dec}, nil
}
