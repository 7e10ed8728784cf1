package exchange

import (
	"context"
	"testing"
)

func TestDryRunAdapter_PlaceAndCancel(t *testing.T) {
	ctx := context.Background()
	a := NewDryRunAdapter(nil)

	if err := a.SetLeverage(ctx, "ETH-USD", 5, MarginCross); err != nil {
		t.Fatalf("SetLeverage: %v", err)
	}

	po, err := a.PlaceMarket(ctx, "ETH-USD", true, d(2))
	if err != nil {
		t.Fatalf("PlaceMarket: %v", err)
	}
	if po.Status != OrderFilled {
		t.Errorf("expected market order to report filled, got %s", po.Status)
	}

	sl, err := a.PlaceStopTrigger(ctx, "ETH-USD", false, d(2), d(95), true)
	if err != nil {
		t.Fatalf("PlaceStopTrigger: %v", err)
	}
	if sl.Status != OrderPending {
		t.Errorf("expected stop trigger to be pending until struck, got %s", sl.Status)
	}

	orders, err := a.GetOpenOrders(ctx, "wallet")
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 resting order (the SL trigger), got %d", len(orders))
	}

	if err := a.Cancel(ctx, "ETH-USD", sl.VenueOrderID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	orders, _ = a.GetOpenOrders(ctx, "wallet")
	if len(orders) != 0 {
		t.Errorf("expected 0 resting orders after cancel, got %d", len(orders))
	}

	hist, err := a.GetHistoricalOrders(ctx, "wallet", 0)
	if err != nil {
		t.Fatalf("GetHistoricalOrders: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != OrderCancelled {
		t.Errorf("expected 1 cancelled historical order, got %+v", hist)
	}
}

func TestDryRunAdapter_RejectsInvalidSize(t *testing.T) {
	a := NewDryRunAdapter(nil)
	if _, err := a.PlaceMarket(context.Background(), "ETH-USD", true, d(-1)); err == nil {
		t.Error("expected negative size to be rejected")
	}
}

func TestDryRunAdapter_SymbolMetaOverride(t *testing.T) {
	a := NewDryRunAdapter(map[string]int32{"ETH-USD": 3})
	meta, err := a.GetSymbolMeta(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("GetSymbolMeta: %v", err)
	}
	if meta.SzDecimals != 3 {
		t.Errorf("expected overridden szDecimals=3, got %d", meta.SzDecimals)
	}

	meta, err = a.GetSymbolMeta(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("GetSymbolMeta: %v", err)
	}
	if meta.SzDecimals != 4 {
		t.Errorf("expected default szDecimals=4 for unconfigured symbol, got %d", meta.SzDecimals)
	}
}

func TestDryRunAdapter_EmptyAccountState(t *testing.T) {
	a := NewDryRunAdapter(nil)
	positions, err := a.GetPositions(context.Background(), "wallet")
	if err != nil || positions != nil {
		t.Errorf("expected empty positions, got %v / %v", positions, err)
	}
	equity, err := a.GetAccountEquity(context.Background(), "wallet")
	if err != nil || !equity.IsZero() {
		t.Errorf("expected zero equity, got %v / %v", equity, err)
	}
}
