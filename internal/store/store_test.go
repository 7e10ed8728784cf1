package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSaveSignal_IdempotentOnAlertID(t *testing.T) {
	s := New()

	rec := SignalRecord{AlertID: "abc", Symbol: "BTC-USD", RiskCheckPassed: true, CreatedAt: time.Now()}
	require.NoError(t, s.SaveSignal(rec))

	updated := rec
	updated.RiskCheckPassed = false
	updated.RiskCheckReason = "notional_cap"
	require.NoError(t, s.SaveSignal(updated))

	got, ok := s.FindSignalByAlertID("abc")
	require.True(t, ok)
	require.False(t, got.RiskCheckPassed)
	require.Equal(t, "notional_cap", got.RiskCheckReason)
	require.Len(t, s.RecentSignals(10), 1, "re-submission must update in place, not duplicate")
}

func TestFindSignalByAlertID_Missing(t *testing.T) {
	s := New()
	_, ok := s.FindSignalByAlertID("nope")
	require.False(t, ok)
}

func TestAlertDeduper(t *testing.T) {
	s := New()
	require.False(t, s.SeenAlertID("x"))
	s.RecordAlertID("x")
	require.True(t, s.SeenAlertID("x"))
}

func TestRecentX_BoundedAndOrdered(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveOrder(OrderRecord{VenueOrderID: string(rune('a' + i)), CreatedAt: time.Now()}))
	}
	recent := s.RecentOrders(3)
	require.Len(t, recent, 3)
	require.Equal(t, "c", recent[0].VenueOrderID)
	require.Equal(t, "e", recent[2].VenueOrderID)
}

func TestSaveFillAndEquitySnapshot(t *testing.T) {
	s := New()
	require.NoError(t, s.SaveFill(FillRecord{VenueOrderID: "1", Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}))
	require.NoError(t, s.SaveEquitySnapshot(EquitySnapshot{Equity: decimal.NewFromInt(1000), OpenPositions: 1}))
	require.Len(t, s.RecentFills(10), 1)
	require.Len(t, s.RecentEquity(10), 1)
}
