package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestValidatePrice(t *testing.T) {
	if err := ValidatePrice(d(100)); err != nil {
		t.Errorf("expected 100 to be valid, got %v", err)
	}
	if err := ValidatePrice(d(0)); err == nil {
		t.Error("expected zero price to be rejected")
	}
	if err := ValidatePrice(d(-5)); err == nil {
		t.Error("expected negative price to be rejected")
	}
	if err := ValidatePrice(decimal.New(10_000_000, 0)); err == nil {
		t.Error("expected price at the sanity bound to be rejected")
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(d(0)); err != nil {
		t.Errorf("expected zero size to be valid, got %v", err)
	}
	if err := ValidateSize(d(-1)); err == nil {
		t.Error("expected negative size to be rejected")
	}
	if err := ValidateSize(decimal.New(1_000_000, 0)); err == nil {
		t.Error("expected size at the sanity bound to be rejected")
	}
}

func TestValidateEquity(t *testing.T) {
	if err := ValidateEquity(d(0)); err != nil {
		t.Errorf("expected zero equity to be valid, got %v", err)
	}
	if err := ValidateEquity(decimal.New(-1_000_000, 0)); err == nil {
		t.Error("expected equity at the lower sanity bound to be rejected")
	}
	if err := ValidateEquity(decimal.New(100_000_000, 0)); err == nil {
		t.Error("expected equity at the upper sanity bound to be rejected")
	}
}

func TestMapOrderStatus_FilledAndTriggered(t *testing.T) {
	for _, raw := range []string{"filled", "triggered"} {
		status, ok := MapOrderStatus(raw, true, true)
		if !ok || status != OrderFilled {
			t.Errorf("%s: expected filled/ok, got %s/%v", raw, status, ok)
		}
	}
}

func TestMapOrderStatus_Cancelled(t *testing.T) {
	for _, raw := range []string{"canceled", "cancelled", "marginCanceled"} {
		status, ok := MapOrderStatus(raw, true, true)
		if !ok || status != OrderCancelled {
			t.Errorf("%s: expected cancelled/ok, got %s/%v", raw, status, ok)
		}
	}
}

func TestMapOrderStatus_AbsentNoLocalPosition(t *testing.T) {
	status, ok := MapOrderStatus("", false, false)
	if !ok || status != OrderCancelled {
		t.Errorf("expected absent+no-local-position to map to cancelled, got %s/%v", status, ok)
	}
}

func TestMapOrderStatus_AbsentWithLocalPosition(t *testing.T) {
	_, ok := MapOrderStatus("", false, true)
	if ok {
		t.Error("expected absent+local-position present to be left unchanged (ok=false)")
	}
}

func TestMapOrderStatus_Rejected(t *testing.T) {
	status, ok := MapOrderStatus("rejected", true, false)
	if !ok || status != OrderRejected {
		t.Errorf("expected rejected/ok, got %s/%v", status, ok)
	}
}

func mkTrigger(id string, trigger float64) OpenOrder {
	return OpenOrder{VenueOrderID: id, TriggerPrice: d(trigger), IsTrigger: true, ReduceOnly: true}
}

func TestClassifyProtectiveOrders_SingleTriggerIsStopLoss(t *testing.T) {
	orders := []OpenOrder{mkTrigger("1", 95)}
	rec := ClassifyProtectiveOrders(orders, d(10), true)
	if rec.StopLoss == nil || rec.StopLoss.Order.VenueOrderID != "1" {
		t.Fatalf("expected single trigger classified as stop loss, got %+v", rec.StopLoss)
	}
	if rec.TrailingStop != nil {
		t.Error("expected no trailing stop inferred from a single trigger")
	}
}

func TestClassifyProtectiveOrders_TwoTriggersLong(t *testing.T) {
	orders := []OpenOrder{mkTrigger("lower", 90), mkTrigger("higher", 98)}
	rec := ClassifyProtectiveOrders(orders, d(10), true)
	if rec.StopLoss == nil || rec.StopLoss.Order.VenueOrderID != "lower" {
		t.Fatalf("expected long SL to be the lower trigger, got %+v", rec.StopLoss)
	}
	if rec.TrailingStop == nil || rec.TrailingStop.Order.VenueOrderID != "higher" {
		t.Fatalf("expected long trailing stop to be the higher trigger, got %+v", rec.TrailingStop)
	}
}

func TestClassifyProtectiveOrders_TwoTriggersShort(t *testing.T) {
	orders := []OpenOrder{mkTrigger("lower", 90), mkTrigger("higher", 98)}
	rec := ClassifyProtectiveOrders(orders, d(10), false)
	if rec.StopLoss == nil || rec.StopLoss.Order.VenueOrderID != "higher" {
		t.Fatalf("expected short SL to be the higher trigger, got %+v", rec.StopLoss)
	}
	if rec.TrailingStop == nil || rec.TrailingStop.Order.VenueOrderID != "lower" {
		t.Fatalf("expected short trailing stop to be the lower trigger, got %+v", rec.TrailingStop)
	}
}

func TestClassifyProtectiveOrders_TakeProfitsByPct(t *testing.T) {
	orders := []OpenOrder{
		{VenueOrderID: "tp1", Size: d(4), ReduceOnly: true, IsTrigger: false},
		{VenueOrderID: "tp2", Size: d(6), ReduceOnly: true, IsTrigger: false},
	}
	rec := ClassifyProtectiveOrders(orders, d(10), true)
	if len(rec.TakeProfits) != 2 {
		t.Fatalf("expected 2 take profits, got %d", len(rec.TakeProfits))
	}
	if !rec.TakeProfits[0].PctOfPosition.Equal(d(0.4)) {
		t.Errorf("expected first TP pct 0.4, got %s", rec.TakeProfits[0].PctOfPosition)
	}
	if !rec.TakeProfits[1].PctOfPosition.Equal(d(0.6)) {
		t.Errorf("expected second TP pct 0.6, got %s", rec.TakeProfits[1].PctOfPosition)
	}
}

func TestClassifyProtectiveOrders_IgnoresNonReduceOnly(t *testing.T) {
	orders := []OpenOrder{
		{VenueOrderID: "entry", Size: d(10), ReduceOnly: false},
	}
	rec := ClassifyProtectiveOrders(orders, d(10), true)
	if rec.StopLoss != nil || len(rec.TakeProfits) != 0 {
		t.Error("expected non-reduce-only orders to be ignored entirely")
	}
}
