package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/strategy"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestBook_OpenGetClose(t *testing.T) {
	b := NewBook()
	p := Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(2), OpenedAt: time.Now()}
	if err := b.Open(p); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !b.IsFlat("BTC-USD") {
		t.Error("expected BTC-USD to be flat")
	}
	if b.IsFlat("ETH-USD") {
		t.Error("expected ETH-USD to have an open position")
	}
	got, ok := b.Get("ETH-USD")
	if !ok || !got.EntryPrice.Equal(d(100)) {
		t.Fatalf("Get: %+v, ok=%v", got, ok)
	}
	if b.Count() != 1 {
		t.Errorf("expected count 1, got %d", b.Count())
	}
	closed, ok := b.Close("ETH-USD")
	if !ok || !closed.Size.Equal(d(2)) {
		t.Fatalf("Close: %+v, ok=%v", closed, ok)
	}
	if !b.IsFlat("ETH-USD") {
		t.Error("expected ETH-USD flat after close")
	}
}

func TestBook_OpenRejectsDuplicateSymbol(t *testing.T) {
	b := NewBook()
	p := Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(1)}
	if err := b.Open(p); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := b.Open(p); err == nil {
		t.Error("expected second Open for same symbol to fail")
	}
}

func TestBook_OpenRejectsNonPositiveSize(t *testing.T) {
	b := NewBook()
	p := Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(0)}
	if err := b.Open(p); err == nil {
		t.Error("expected zero size to be rejected")
	}
}

func TestBook_UpdatePriceRecomputesPnlLong(t *testing.T) {
	b := NewBook()
	_ = b.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(2)})
	b.UpdatePrice("ETH-USD", d(110))
	got, _ := b.Get("ETH-USD")
	if !got.UnrealizedPnl.Equal(d(20)) {
		t.Errorf("expected unrealized pnl 20, got %s", got.UnrealizedPnl)
	}
}

func TestBook_UpdatePriceRecomputesPnlShort(t *testing.T) {
	b := NewBook()
	_ = b.Open(Position{Symbol: "ETH-USD", Direction: strategy.Short, EntryPrice: d(100), Size: d(2)})
	b.UpdatePrice("ETH-USD", d(90))
	got, _ := b.Get("ETH-USD")
	if !got.UnrealizedPnl.Equal(d(20)) {
		t.Errorf("expected unrealized pnl 20 for short price drop, got %s", got.UnrealizedPnl)
	}
}

func TestBook_MarkVenueIncomplete(t *testing.T) {
	b := NewBook()
	_ = b.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(1)})
	b.MarkVenueIncomplete("ETH-USD", true)
	got, _ := b.Get("ETH-USD")
	if !got.VenueIncomplete {
		t.Error("expected VenueIncomplete to be set")
	}
}

func TestBook_GetAll(t *testing.T) {
	b := NewBook()
	_ = b.Open(Position{Symbol: "ETH-USD", Direction: strategy.Long, EntryPrice: d(100), Size: d(1)})
	_ = b.Open(Position{Symbol: "BTC-USD", Direction: strategy.Short, EntryPrice: d(50000), Size: d(1)})
	all := b.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(all))
	}
}
