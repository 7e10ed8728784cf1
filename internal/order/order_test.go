package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/exchange"
	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/risk"
	"github.com/guyghost/perpcore/internal/strategy"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestTranslate_RiskSizing(t *testing.T) {
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(95)}
	intent, err := Translate(sig, d(100), "ETH-USD", d(3), SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)}, "alert-1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	// risk 50 / |100-95| = 10
	if !intent.Size.Equal(d(10)) {
		t.Errorf("expected size 10, got %s", intent.Size)
	}
	if !intent.NotionalUsd.Equal(d(1000)) {
		t.Errorf("expected notional 1000, got %s", intent.NotionalUsd)
	}
}

func TestTranslate_CashSizing(t *testing.T) {
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(95)}
	intent, err := Translate(sig, d(100), "ETH-USD", d(3), SizingPolicy{Mode: SizingCash, CashPerTrade: d(500)}, "alert-1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !intent.Size.Equal(d(5)) {
		t.Errorf("expected size 5, got %s", intent.Size)
	}
}

func TestTranslate_UsesExplicitEntryPrice(t *testing.T) {
	sig := strategy.Signal{Direction: strategy.Long, EntryPrice: ptr(d(90)), StopLoss: d(85)}
	intent, err := Translate(sig, d(100), "ETH-USD", d(1), SizingPolicy{Mode: SizingCash, CashPerTrade: d(90)}, "alert-1")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !intent.EntryPrice.Equal(d(90)) {
		t.Errorf("expected entry price 90, got %s", intent.EntryPrice)
	}
}

func TestTranslate_RejectsZeroSize(t *testing.T) {
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(100)} // entry == stop => risk sizing fails
	_, err := Translate(sig, d(100), "ETH-USD", d(1), SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)}, "alert-1")
	if err == nil {
		t.Error("expected translation to fail when entry equals stop loss")
	}
}

func TestRoundPrice(t *testing.T) {
	cases := []struct {
		in, want decimal.Decimal
	}{
		{d(123.456), d(123.46)},
		{d(12345), d(12345)},
		{decimal.NewFromInt(123456), decimal.NewFromInt(123460)},
		{d(0.0001234), decimal.NewFromFloat(0.0001234)},
	}
	for _, c := range cases {
		got := RoundPrice(c.in)
		if !got.Equal(c.want) {
			t.Errorf("RoundPrice(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestFloorToSzDecimals(t *testing.T) {
	got := FloorToSzDecimals(d(1.23456), 2)
	if !got.Equal(d(1.23)) {
		t.Errorf("expected 1.23, got %s", got)
	}
}

func TestSession_EnsureLeverageIsIdempotent(t *testing.T) {
	calls := 0
	a := newFakeAdapter()
	a.setLeverageFn = func() { calls++ }
	s := NewSession()
	ctx := context.Background()
	if err := s.EnsureLeverage(ctx, a, "ETH-USD", 5, exchange.MarginCross); err != nil {
		t.Fatalf("EnsureLeverage: %v", err)
	}
	if err := s.EnsureLeverage(ctx, a, "ETH-USD", 5, exchange.MarginCross); err != nil {
		t.Fatalf("EnsureLeverage: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 SetLeverage call, got %d", calls)
	}
	if err := s.EnsureLeverage(ctx, a, "ETH-USD", 10, exchange.MarginCross); err != nil {
		t.Fatalf("EnsureLeverage: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a new call when leverage value changes, got %d", calls)
	}
}

// fakeAdapter is a minimal exchange.Adapter double for processor/accept tests.
type fakeAdapter struct {
	setLeverageFn    func()
	failStopTrigger  bool
	failLimit        bool
	seq              int
	placed           []string
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{} }

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) SetLeverage(ctx context.Context, symbol string, value int, mode exchange.MarginMode) error {
	if f.setLeverageFn != nil {
		f.setLeverageFn()
	}
	return nil
}
func (f *fakeAdapter) nextID() string {
	f.seq++
	return "fake-order"
}
func (f *fakeAdapter) PlaceMarket(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) (exchange.PlacedOrder, error) {
	id := f.nextID()
	f.placed = append(f.placed, id)
	return exchange.PlacedOrder{VenueOrderID: id, Symbol: symbol, IsBuy: isBuy, Size: size, Status: exchange.OrderFilled, CreatedAt: time.Now()}, nil
}
func (f *fakeAdapter) PlaceStopTrigger(ctx context.Context, symbol string, isBuy bool, size, triggerPrice decimal.Decimal, reduceOnly bool) (exchange.PlacedOrder, error) {
	if f.failStopTrigger {
		return exchange.PlacedOrder{}, context.DeadlineExceeded
	}
	id := f.nextID()
	return exchange.PlacedOrder{VenueOrderID: id, Symbol: symbol, IsBuy: isBuy, Size: size, TriggerPrice: triggerPrice, Status: exchange.OrderPending}, nil
}
func (f *fakeAdapter) PlaceLimit(ctx context.Context, symbol string, isBuy bool, size, price decimal.Decimal, reduceOnly bool) (exchange.PlacedOrder, error) {
	if f.failLimit {
		return exchange.PlacedOrder{}, context.DeadlineExceeded
	}
	id := f.nextID()
	return exchange.PlacedOrder{VenueOrderID: id, Symbol: symbol, IsBuy: isBuy, Size: size, Price: price, Status: exchange.OrderPending}, nil
}
func (f *fakeAdapter) Cancel(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeAdapter) GetPositions(ctx context.Context, wallet string) ([]exchange.Position, error) {
	return nil, nil
}
func (f *fakeAdapter) GetOpenOrders(ctx context.Context, wallet string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (f *fakeAdapter) GetHistoricalOrders(ctx context.Context, wallet string, limit int) ([]exchange.HistoricalOrder, error) {
	return nil, nil
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

func defaultGuardrails() risk.Guardrails {
	return risk.Guardrails{
		MaxNotionalUsd:   d(50000),
		MaxLeverage:      d(20),
		MaxOpenPositions: 5,
		MaxDailyLossUsd:  d(1000),
		MaxTradesPerDay:  10,
	}
}

func TestProcessor_Submit_AcceptsAndOpensPosition(t *testing.T) {
	a := newFakeAdapter()
	p := &Processor{
		Adapter:    a,
		Session:    NewSession(),
		Book:       position.NewBook(),
		Guardrails: defaultGuardrails(),
		Tracker:    risk.NewTracker(),
		Dedup:      NewMemoryDeduper(),
		Sizing:     SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)},
		MarginMode: exchange.MarginCross,
	}
	sig := strategy.Signal{
		Direction:   strategy.Long,
		StopLoss:    d(95),
		TakeProfits: []strategy.TakeProfit{{Price: d(110), FractionOfPosition: d(1)}},
	}
	res, err := p.Submit(context.Background(), sig, d(100), "ETH-USD", 3, "alert-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted == nil {
		t.Fatalf("expected acceptance, got rejection %+v", res.Rejected)
	}
	if p.Book.Count() != 1 {
		t.Errorf("expected 1 open position, got %d", p.Book.Count())
	}
	pos, ok := p.Book.Get("ETH-USD")
	if !ok || pos.VenueIncomplete {
		t.Errorf("expected a fully-placed position, got %+v ok=%v", pos, ok)
	}
}

func TestProcessor_Submit_DuplicateAlertIDRejectedSecondTime(t *testing.T) {
	a := newFakeAdapter()
	p := &Processor{
		Adapter:    a,
		Session:    NewSession(),
		Book:       position.NewBook(),
		Guardrails: defaultGuardrails(),
		Tracker:    risk.NewTracker(),
		Dedup:      NewMemoryDeduper(),
		Sizing:     SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)},
		MarginMode: exchange.MarginCross,
	}
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(95)}
	ctx := context.Background()

	first, err := p.Submit(ctx, sig, d(100), "ETH-USD", 3, "dup-1")
	if err != nil || first.Accepted == nil {
		t.Fatalf("expected first submit to be accepted: %+v, err=%v", first, err)
	}

	second, err := p.Submit(ctx, sig, d(100), "ETH-USD", 3, "dup-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.Rejected == nil || second.Rejected.Reason != "Duplicate alert_id" {
		t.Fatalf("expected duplicate rejection, got %+v", second)
	}
	if len(a.placed) != 1 {
		t.Errorf("expected exactly 1 order placed despite 2 submits, got %d", len(a.placed))
	}
}

func TestProcessor_Submit_RiskGateRejectsAbsoluteNotionalCap(t *testing.T) {
	a := newFakeAdapter()
	g := defaultGuardrails()
	g.MaxNotionalUsd = d(1_000_000)
	p := &Processor{
		Adapter:    a,
		Session:    NewSession(),
		Book:       position.NewBook(),
		Guardrails: g,
		Tracker:    risk.NewTracker(),
		Dedup:      NewMemoryDeduper(),
		Sizing:     SizingPolicy{Mode: SizingCash, CashPerTrade: d(200000)},
		MarginMode: exchange.MarginCross,
	}
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(95)}
	res, err := p.Submit(context.Background(), sig, d(100), "ETH-USD", 3, "alert-big")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Rejected == nil {
		t.Fatalf("expected rejection for oversized notional, got %+v", res.Accepted)
	}
	if res.Rejected.Reason != "Notional exceeds absolute cap" {
		t.Errorf("expected absolute cap rejection, got %q", res.Rejected.Reason)
	}
	if p.Book.Count() != 0 {
		t.Error("expected no position opened on rejection")
	}
}

func TestProcessor_Submit_NoRollbackOnStopLossFailure(t *testing.T) {
	a := newFakeAdapter()
	a.failStopTrigger = true
	p := &Processor{
		Adapter:    a,
		Session:    NewSession(),
		Book:       position.NewBook(),
		Guardrails: defaultGuardrails(),
		Tracker:    risk.NewTracker(),
		Dedup:      NewMemoryDeduper(),
		Sizing:     SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)},
		MarginMode: exchange.MarginCross,
	}
	sig := strategy.Signal{Direction: strategy.Long, StopLoss: d(95)}
	res, err := p.Submit(context.Background(), sig, d(100), "ETH-USD", 3, "alert-sl-fail")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted == nil {
		t.Fatalf("expected the entry to still be accepted despite SL failure, got %+v", res.Rejected)
	}
	if !res.Accepted.VenueIncomplete {
		t.Error("expected VenueIncomplete=true when SL placement fails")
	}
	pos, ok := p.Book.Get("ETH-USD")
	if !ok {
		t.Fatal("expected the position to still be recorded despite the SL failure")
	}
	if !pos.StopLoss.IsZero() {
		t.Errorf("expected stopLoss to be zeroed when SL placement fails, got %s", pos.StopLoss)
	}
	if !pos.VenueIncomplete {
		t.Error("expected the recorded position to carry VenueIncomplete=true")
	}
}

func TestProcessor_Submit_NoRollbackOnTakeProfitFailure(t *testing.T) {
	a := newFakeAdapter()
	a.failLimit = true
	p := &Processor{
		Adapter:    a,
		Session:    NewSession(),
		Book:       position.NewBook(),
		Guardrails: defaultGuardrails(),
		Tracker:    risk.NewTracker(),
		Dedup:      NewMemoryDeduper(),
		Sizing:     SizingPolicy{Mode: SizingRisk, RiskPerTradeUsd: d(50)},
		MarginMode: exchange.MarginCross,
	}
	sig := strategy.Signal{
		Direction:   strategy.Long,
		StopLoss:    d(95),
		TakeProfits: []strategy.TakeProfit{{Price: d(110), FractionOfPosition: d(1)}},
	}
	res, err := p.Submit(context.Background(), sig, d(100), "ETH-USD", 3, "alert-tp-fail")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted == nil {
		t.Fatalf("expected entry+SL to still be accepted despite TP failure, got %+v", res.Rejected)
	}
	if !res.Accepted.VenueIncomplete {
		t.Error("expected VenueIncomplete=true when a TP placement fails")
	}
	if res.Accepted.StopLossOrderID == "" {
		t.Error("expected the stop loss to have been placed successfully")
	}
	if len(res.Accepted.TakeProfitIDs) != 0 {
		t.Error("expected no take-profit ids recorded when placement failed")
	}
}
