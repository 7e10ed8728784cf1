// Package eventlog implements the append-only NDJSON event log: one JSON
// object per line, each carrying a type drawn from a closed enumeration, a
// timestamp, and an opaque data payload. It is the system's
// audit trail, distinct from internal/logger's operational log stream.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Type is the closed enumeration of event kinds the log may carry.
type Type string

const (
	SignalReceived   Type = "signal_received"
	RiskCheckPassed  Type = "risk_check_passed"
	RiskCheckFailed  Type = "risk_check_failed"
	OrderPlaced      Type = "order_placed"
	PositionOpened   Type = "position_opened"
	PositionClosed   Type = "position_closed"
	ReconcileOK      Type = "reconcile_ok"
	ReconcileDrift   Type = "reconcile_drift"
	NotificationSent Type = "notification_sent"
	NotificationFail Type = "notification_failed"
	DaemonStarted    Type = "daemon_started"
)

// Record is one event log line.
type Record struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Writer appends Records as NDJSON to an underlying io.Writer. Safe for
// concurrent use: every Log/LogAt call takes the same mutex so lines never
// interleave.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// New constructs a Writer appending to out (typically an *os.File opened
// O_APPEND, or any io.Writer a test wants to assert against).
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	w.enc = json.NewEncoder(out)
	return w
}

// Log appends one event record with the given type and data, stamped with
// the current time.
func (w *Writer) Log(typ Type, data any) error {
	return w.LogAt(typ, time.Now().UTC(), data)
}

// LogAt appends one event record stamped with an explicit timestamp, for
// callers replaying historical events or under test.
func (w *Writer) LogAt(typ Type, ts time.Time, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(Record{Type: typ, Timestamp: ts, Data: data}); err != nil {
		return fmt.Errorf("eventlog: write %s: %w", typ, err)
	}
	return nil
}
