package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
)

// LoadCandlesFromCSV loads a historical candle sequence from a CSV file,
// one of `cmd/backtest`'s two input paths (the other being a live venue
// warmup fetch through internal/candle.Ingestor). Expected columns:
// timestamp,open,high,low,close,volume[,trades]. timestamp accepts Unix
// seconds, Unix milliseconds, or RFC3339.
func LoadCandlesFromCSV(filename, symbol string) ([]candle.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("backtest: open csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv header: %w", err)
	}
	if _, err := strconv.ParseFloat(header[1], 64); err == nil {
		// First row was actually data, not a header; rewind.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("backtest: seek csv: %w", err)
		}
		reader = csv.NewReader(file)
		reader.FieldsPerRecord = -1
	}

	var candles []candle.Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: read csv record: %w", err)
		}
		if len(record) < 6 {
			continue
		}
		c, err := parseCSVCandle(record, symbol)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func parseCSVCandle(record []string, symbol string) (candle.Candle, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return candle.Candle{}, err
	}
	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		v, err := decimal.NewFromString(record[i+1])
		if err != nil {
			return candle.Candle{}, fmt.Errorf("backtest: invalid numeric field %d: %w", i+1, err)
		}
		fields[i] = v
	}
	c := candle.Candle{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}
	if len(record) > 6 {
		if n, err := strconv.ParseInt(record[6], 10, 64); err == nil {
			c.Trades = n
		}
	}
	return c, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 10_000_000_000 {
			return time.UnixMilli(ts).UTC(), nil
		}
		return time.Unix(ts, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, format := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("backtest: unrecognized timestamp format %q", s)
}
