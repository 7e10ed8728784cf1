package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/exchange"
	"github.com/guyghost/perpcore/internal/strategy"
)

// fakeAdapter implements exchange.Adapter with fixed canned responses, enough
// to exercise the Reconciler without a live venue.
type fakeAdapter struct {
	positions []exchange.Position
	history   []exchange.HistoricalOrder
}

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) SetLeverage(ctx context.Context, symbol string, value int, mode exchange.MarginMode) error {
	return nil
}
func (f *fakeAdapter) PlaceMarket(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) (exchange.PlacedOrder, error) {
	return exchange.PlacedOrder{}, nil
}
func (f *fakeAdapter) PlaceStopTrigger(ctx context.Context, symbol string, isBuy bool, size, triggerPrice decimal.Decimal, reduceOnly bool) (exchange.PlacedOrder, error) {
	return exchange.PlacedOrder{}, nil
}
func (f *fakeAdapter) PlaceLimit(ctx context.Context, symbol string, isBuy bool, size, price decimal.Decimal, reduceOnly bool) (exchange.PlacedOrder, error) {
	return exchange.PlacedOrder{}, nil
}
func (f *fakeAdapter) Cancel(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeAdapter) GetPositions(ctx context.Context, wallet string) ([]exchange.Position, error) {
	return f.positions, nil
}
func (f *fakeAdapter) GetOpenOrders(ctx context.Context, wallet string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (f *fakeAdapter) GetHistoricalOrders(ctx context.Context, wallet string, limit int) ([]exchange.HistoricalOrder, error) {
	return f.history, nil
}
func (f *fakeAdapter) GetAccountEquity(ctx context.Context, wallet string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeAdapter) GetSymbolMeta(ctx context.Context, symbol string) (exchange.SymbolMeta, error) {
	return exchange.SymbolMeta{Symbol: symbol, SzDecimals: 4}, nil
}
func (f *fakeAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, limit int) ([]candle.Candle, error) {
	return nil, nil
}
func (f *fakeAdapter) SubscribeCandles(ctx context.Context, symbol string, interval candle.Interval, onUpdate func(candle.Candle)) error {
	return nil
}

func TestReconciler_GhostLocal(t *testing.T) {
	book := NewBook()
	_ = book.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(1)})
	r := NewReconciler(book, &fakeAdapter{}, "wallet")

	drifts, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Kind != DriftGhostLocal {
		t.Fatalf("expected a single ghost_local drift, got %+v", drifts)
	}
}

func TestReconciler_GhostRemote(t *testing.T) {
	book := NewBook()
	adapter := &fakeAdapter{positions: []exchange.Position{{Symbol: "ETH-USD", IsLong: true, Size: d(1)}}}
	r := NewReconciler(book, adapter, "wallet")

	drifts, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Kind != DriftGhostRemote {
		t.Fatalf("expected a single ghost_remote drift, got %+v", drifts)
	}
}

func TestReconciler_SizeMismatchBeyondTolerance(t *testing.T) {
	book := NewBook()
	_ = book.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(10)})
	adapter := &fakeAdapter{positions: []exchange.Position{{Symbol: "ETH-USD", IsLong: true, Size: d(8)}}}
	r := NewReconciler(book, adapter, "wallet")

	drifts, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(drifts) != 1 || drifts[0].Kind != DriftSizeMismatch {
		t.Fatalf("expected a single size_mismatch drift, got %+v", drifts)
	}
}

func TestReconciler_NoDriftWithinTolerance(t *testing.T) {
	book := NewBook()
	_ = book.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(10)})
	adapter := &fakeAdapter{positions: []exchange.Position{{Symbol: "ETH-USD", IsLong: true, Size: d(9.995)}}}
	r := NewReconciler(book, adapter, "wallet")

	drifts, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected no drift within tolerance, got %+v", drifts)
	}
}

func TestReconciler_NoDriftWhenBothFlat(t *testing.T) {
	book := NewBook()
	r := NewReconciler(book, &fakeAdapter{}, "wallet")
	drifts, err := r.Reconcile(context.Background())
	if err != nil || len(drifts) != 0 {
		t.Fatalf("expected no drift, got %+v, err=%v", drifts, err)
	}
}

func TestReconciler_ReconcileOrdersFindsResolved(t *testing.T) {
	book := NewBook()
	since := time.Now().Add(-time.Hour)
	adapter := &fakeAdapter{history: []exchange.HistoricalOrder{
		{VenueOrderID: "abc", Status: exchange.OrderFilled, ClosedAt: time.Now()},
		{VenueOrderID: "old", Status: exchange.OrderFilled, ClosedAt: since.Add(-time.Hour)},
	}}
	r := NewReconciler(book, adapter, "wallet")
	pending := map[string]struct{}{"abc": {}, "other": {}}

	resolved, err := r.ReconcileOrders(context.Background(), pending, since)
	if err != nil {
		t.Fatalf("ReconcileOrders: %v", err)
	}
	if len(resolved) != 1 || resolved[0].VenueOrderID != "abc" {
		t.Fatalf("expected only 'abc' resolved, got %+v", resolved)
	}
}
