package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_WritesOneJSONLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	require.NoError(t, w.Log(SignalReceived, map[string]string{"symbol": "BTC-USD"}))
	require.NoError(t, w.Log(OrderPlaced, map[string]string{"venueOrderId": "1"}))

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, SignalReceived, rec.Type)
}

func TestLogAt_UsesGivenTimestamp(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, w.LogAt(DaemonStarted, ts, nil))

	var rec Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.True(t, rec.Timestamp.Equal(ts))
}
