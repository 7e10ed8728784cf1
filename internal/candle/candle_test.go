package candle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func mk(ts time.Time, o, h, l, c float64) Candle {
	return Candle{Symbol: "BTC", Timestamp: ts, Open: d(o), High: d(h), Low: d(l), Close: d(c), Volume: d(1)}
}

func TestInterval_Duration(t *testing.T) {
	tests := []struct {
		interval Interval
		want     time.Duration
	}{
		{Interval1m, time.Minute},
		{Interval15m, 15 * time.Minute},
		{Interval1h, time.Hour},
		{Interval1d, 24 * time.Hour},
		{Interval1w, 7 * 24 * time.Hour},
		{Interval1M, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := tt.interval.Duration()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.interval, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.interval, tt.want, got)
		}
	}

	if _, err := Interval("7m").Duration(); err == nil {
		t.Error("expected an error for an unknown interval")
	}
}

func TestAlignedBucket(t *testing.T) {
	ts := time.Date(2024, 6, 1, 13, 47, 12, 0, time.UTC)
	got := AlignedBucket(ts, Interval15m)
	want := time.Date(2024, 6, 1, 13, 45, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}

	already := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	if got := AlignedBucket(already, Interval1h); !got.Equal(already) {
		t.Errorf("an aligned timestamp must map to itself, got %s", got)
	}
}

func TestCandle_Valid(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !mk(ts, 100, 105, 99, 104).Valid() {
		t.Error("well-formed candle should be valid")
	}
	if mk(ts, 100, 99, 98, 100).Valid() {
		t.Error("high below open should be invalid")
	}
	if mk(ts, 100, 105, 101, 104).Valid() {
		t.Error("low above open should be invalid")
	}
	neg := mk(ts, 100, 105, 99, 104)
	neg.Volume = d(-1)
	if neg.Valid() {
		t.Error("negative volume should be invalid")
	}
}

// stubSource feeds canned candle batches to the Ingestor, one per GetCandles
// call, and replays pushes synchronously through SubscribeCandles.
type stubSource struct {
	batches [][]Candle
	pushes  []Candle
}

func (s *stubSource) GetCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error) {
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *stubSource) SubscribeCandles(ctx context.Context, symbol string, interval Interval, onUpdate func(Candle)) error {
	for _, c := range s.pushes {
		onUpdate(c)
	}
	return nil
}

func TestIngestor_WarmupDiscardsInvalid(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bad := mk(start.Add(time.Minute), 100, 99, 101, 100) // h < l
	src := &stubSource{batches: [][]Candle{{
		mk(start, 100, 101, 99, 100),
		bad,
		mk(start.Add(2*time.Minute), 100, 102, 99, 101),
	}}}
	ing := New("BTC", Interval1m, src)

	got, err := ing.Warmup(context.Background(), 3)
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the malformed candle to be discarded, got %d candles", len(got))
	}
	if ing.Len() != 2 {
		t.Errorf("expected internal sequence of 2, got %d", ing.Len())
	}
}

func TestIngestor_PollAppendsAndReplaces(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &stubSource{batches: [][]Candle{
		{mk(start, 100, 101, 99, 100)},
		// Same timestamp, updated values: an in-progress rewrite.
		{mk(start, 100, 103, 99, 102)},
		// Next bucket appears.
		{mk(start.Add(time.Minute), 102, 104, 101, 103)},
		// Nothing new.
		nil,
	}}
	ing := New("BTC", Interval1m, src)
	ctx := context.Background()

	if _, ok, err := ing.Poll(ctx); err != nil || !ok {
		t.Fatalf("first poll: ok=%v err=%v", ok, err)
	}
	if _, ok, err := ing.Poll(ctx); err != nil || !ok {
		t.Fatalf("second poll: ok=%v err=%v", ok, err)
	}
	if ing.Len() != 1 {
		t.Fatalf("duplicate timestamp must overwrite, not append: len=%d", ing.Len())
	}
	if got := ing.Snapshot()[0]; !got.Close.Equal(d(102)) {
		t.Errorf("expected in-progress close to be rewritten to 102, got %s", got.Close)
	}

	if _, ok, err := ing.Poll(ctx); err != nil || !ok {
		t.Fatalf("third poll: ok=%v err=%v", ok, err)
	}
	if ing.Len() != 2 {
		t.Fatalf("new timestamp must append: len=%d", ing.Len())
	}

	if _, ok, err := ing.Poll(ctx); err != nil || ok {
		t.Fatalf("empty response must be a no-op: ok=%v err=%v", ok, err)
	}
}

func TestIngestor_PollRejectsOutOfOrder(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &stubSource{batches: [][]Candle{
		{mk(start.Add(time.Minute), 100, 101, 99, 100)},
		{mk(start, 90, 91, 89, 90)}, // older than the last known timestamp
	}}
	ing := New("BTC", Interval1m, src)
	ctx := context.Background()

	if _, _, err := ing.Poll(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if _, ok, err := ing.Poll(ctx); err != nil || ok {
		t.Fatalf("out-of-order candle must be rejected: ok=%v err=%v", ok, err)
	}
	if ing.Len() != 1 {
		t.Errorf("sequence must be unchanged after rejection, len=%d", ing.Len())
	}
}

func TestIngestor_StreamLiveEmitsClosedOnce(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &stubSource{pushes: []Candle{
		mk(start, 100, 101, 99, 100),
		mk(start, 100, 102, 99, 101), // in-progress update
		mk(start.Add(time.Minute), 101, 103, 100, 102), // new bucket closes the previous
	}}
	ing := New("BTC", Interval1m, src)

	type event struct {
		close  decimal.Decimal
		closed bool
	}
	var events []event
	err := ing.StreamLive(context.Background(), func(c Candle, isClosed bool) {
		events = append(events, event{close: c.Close, closed: isClosed})
	})
	if err != nil {
		t.Fatalf("StreamLive: %v", err)
	}

	var closedCount int
	for _, e := range events {
		if e.closed {
			closedCount++
			if !e.close.Equal(d(101)) {
				t.Errorf("closed event must carry the previous candle's final state, got close=%s", e.close)
			}
		}
	}
	if closedCount != 1 {
		t.Errorf("expected exactly one closed emission, got %d", closedCount)
	}
	if len(events) != 4 {
		t.Errorf("expected 4 emissions (3 in-progress + 1 closed), got %d", len(events))
	}
}
