// Package telemetry exposes process counters and gauges in Prometheus text
// exposition format, plus liveness/readiness endpoints.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder is the write-side of the metrics store. Production code uses the
// package-level functions (backed by defaultRecorder); tests can construct
// their own Recorder to assert on counts without touching global state.
type Recorder interface {
	RecordOrderPlaced(symbol, side string)
	RecordStopLossPlaced(symbol string)
	RecordTakeProfitPlaced(symbol string)
	RecordCallbackPanic()
	RecordSignal(signalType string)
	RecordRiskRejection(reason string)
	RecordReconcileDrift(symbol, kind string)
	RecordError(errorType string)
	RecordWebSocketReconnect(exchange string)
	RecordAPIRequest(exchange, endpoint string, latency time.Duration)
}

type memRecorder struct {
	mu                  sync.RWMutex
	orderCounts         map[string]map[string]uint64
	stopLossCounts      map[string]uint64
	takeProfitCounts    map[string]uint64
	callbackPanics      uint64
	signalCounts        map[string]uint64
	riskRejections      map[string]uint64
	reconcileDrift      map[string]map[string]uint64
	errorCounts         map[string]uint64
	websocketReconnects map[string]uint64
	apiRequestCounts    map[string]map[string]uint64
	apiRequestLatency   map[string]map[string][]time.Duration
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		orderCounts:         make(map[string]map[string]uint64),
		stopLossCounts:      make(map[string]uint64),
		takeProfitCounts:    make(map[string]uint64),
		signalCounts:        make(map[string]uint64),
		riskRejections:      make(map[string]uint64),
		reconcileDrift:      make(map[string]map[string]uint64),
		errorCounts:         make(map[string]uint64),
		websocketReconnects: make(map[string]uint64),
		apiRequestCounts:    make(map[string]map[string]uint64),
		apiRequestLatency:   make(map[string]map[string][]time.Duration),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func (m *memRecorder) RecordOrderPlaced(symbol, side string) {
	symbol, side = orUnknown(symbol), orUnknown(side)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orderCounts[symbol]; !ok {
		m.orderCounts[symbol] = make(map[string]uint64)
	}
	m.orderCounts[symbol][side]++
}

func (m *memRecorder) RecordStopLossPlaced(symbol string) {
	symbol = orUnknown(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLossCounts[symbol]++
}

func (m *memRecorder) RecordTakeProfitPlaced(symbol string) {
	symbol = orUnknown(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeProfitCounts[symbol]++
}

func (m *memRecorder) RecordCallbackPanic() {
	atomic.AddUint64(&m.callbackPanics, 1)
}

func (m *memRecorder) RecordSignal(signalType string) {
	signalType = orUnknown(signalType)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalCounts[signalType]++
}

func (m *memRecorder) RecordRiskRejection(reason string) {
	reason = orUnknown(reason)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskRejections[reason]++
}

func (m *memRecorder) RecordReconcileDrift(symbol, kind string) {
	symbol, kind = orUnknown(symbol), orUnknown(kind)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reconcileDrift[symbol]; !ok {
		m.reconcileDrift[symbol] = make(map[string]uint64)
	}
	m.reconcileDrift[symbol][kind]++
}

func (m *memRecorder) RecordError(errorType string) {
	errorType = orUnknown(errorType)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCounts[errorType]++
}

func (m *memRecorder) RecordWebSocketReconnect(exchange string) {
	exchange = orUnknown(exchange)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.websocketReconnects[exchange]++
}

func (m *memRecorder) RecordAPIRequest(exchange, endpoint string, latency time.Duration) {
	exchange, endpoint = orUnknown(exchange), orUnknown(endpoint)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiRequestCounts[exchange]; !ok {
		m.apiRequestCounts[exchange] = make(map[string]uint64)
	}
	m.apiRequestCounts[exchange][endpoint]++

	if _, ok := m.apiRequestLatency[exchange]; !ok {
		m.apiRequestLatency[exchange] = make(map[string][]time.Duration)
	}
	latencies := m.apiRequestLatency[exchange][endpoint]
	if len(latencies) >= 100 {
		latencies = latencies[1:]
	}
	m.apiRequestLatency[exchange][endpoint] = append(latencies, latency)
}

// render writes the full exposition text under a single read lock.
func (m *memRecorder) render(b *strings.Builder) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	writeCounterMap2(b, "perpcore_orders_total", "Total number of orders placed", "symbol", "side", m.orderCounts)
	writeCounterMap1(b, "perpcore_stop_loss_total", "Total number of stop loss orders placed", "symbol", m.stopLossCounts)
	writeCounterMap1(b, "perpcore_take_profit_total", "Total number of take profit orders placed", "symbol", m.takeProfitCounts)

	b.WriteString("# HELP perpcore_callback_panics_total Number of recovered panics from callbacks\n")
	b.WriteString("# TYPE perpcore_callback_panics_total counter\n")
	fmt.Fprintf(b, "perpcore_callback_panics_total %d\n", atomic.LoadUint64(&m.callbackPanics))

	writeCounterMap1(b, "perpcore_signals_total", "Total trading signals generated by type", "type", m.signalCounts)
	writeCounterMap1(b, "perpcore_risk_rejections_total", "Total risk gate rejections by reason", "reason", m.riskRejections)
	writeCounterMap2(b, "perpcore_reconcile_drift_total", "Total reconcile drift events by symbol and kind", "symbol", "kind", m.reconcileDrift)
	writeCounterMap1(b, "perpcore_errors_total", "Total errors by type", "type", m.errorCounts)
	writeCounterMap1(b, "perpcore_websocket_reconnects_total", "Total WebSocket reconnections by exchange", "exchange", m.websocketReconnects)
	writeCounterMap2(b, "perpcore_api_requests_total", "Total API requests by exchange and endpoint", "exchange", "endpoint", m.apiRequestCounts)

	b.WriteString("# HELP perpcore_api_latency_seconds Average API request latency by exchange and endpoint\n")
	b.WriteString("# TYPE perpcore_api_latency_seconds gauge\n")
	for _, exchange := range sortedKeys(m.apiRequestLatency) {
		for _, endpoint := range sortedKeys(m.apiRequestLatency[exchange]) {
			latencies := m.apiRequestLatency[exchange][endpoint]
			if len(latencies) == 0 {
				continue
			}
			var sum time.Duration
			for _, lat := range latencies {
				sum += lat
			}
			avg := sum / time.Duration(len(latencies))
			fmt.Fprintf(b, "perpcore_api_latency_seconds{exchange=%q,endpoint=%q} %f\n", exchange, endpoint, avg.Seconds())
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeCounterMap1(b *strings.Builder, name, help, label string, m map[string]uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, m[k])
	}
}

func writeCounterMap2(b *strings.Builder, name, help, label1, label2 string, m map[string]map[string]uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	for _, k1 := range sortedKeys(m) {
		inner := m[k1]
		for _, k2 := range sortedKeys(inner) {
			fmt.Fprintf(b, "%s{%s=%q,%s=%q} %d\n", name, label1, k1, label2, k2, inner[k2])
		}
	}
}

var defaultRecorder = newMemRecorder()

// DefaultRecorder returns the process-wide metrics recorder used by the
// package-level Record* functions.
func DefaultRecorder() Recorder { return defaultRecorder }

func RecordOrderPlaced(symbol, side string) { defaultRecorder.RecordOrderPlaced(symbol, side) }
func RecordStopLossPlaced(symbol string)    { defaultRecorder.RecordStopLossPlaced(symbol) }
func RecordTakeProfitPlaced(symbol string)  { defaultRecorder.RecordTakeProfitPlaced(symbol) }
func RecordCallbackPanic()                  { defaultRecorder.RecordCallbackPanic() }
func RecordSignal(signalType string)        { defaultRecorder.RecordSignal(signalType) }
func RecordRiskRejection(reason string)     { defaultRecorder.RecordRiskRejection(reason) }
func RecordReconcileDrift(symbol, kind string) {
	defaultRecorder.RecordReconcileDrift(symbol, kind)
}
func RecordError(errorType string)              { defaultRecorder.RecordError(errorType) }
func RecordWebSocketReconnect(exchange string)   { defaultRecorder.RecordWebSocketReconnect(exchange) }
func RecordAPIRequest(exchange, endpoint string, latency time.Duration) {
	defaultRecorder.RecordAPIRequest(exchange, endpoint, latency)
}

// Server exposes metrics and health endpoints.
type Server struct {
	srv        *http.Server
	readyState atomic.Bool
}

// NewServer creates a new telemetry server bound to addr. Returns nil if
// addr is empty, signalling "telemetry disabled" to callers.
func NewServer(addr string) *Server {
	if addr == "" {
		return nil
	}

	server := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", server.metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if server.readyState.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	server.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return server
}

func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	var b strings.Builder
	defaultRecorder.render(&b)
	_, _ = w.Write([]byte(b.String()))
}

// Start begins serving metrics and health endpoints in a separate goroutine.
func (s *Server) Start() error {
	if s == nil || s.srv == nil {
		return nil
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SetReady updates the readiness state exposed on /readyz.
func (s *Server) SetReady(ready bool) {
	if s == nil {
		return
	}
	s.readyState.Store(ready)
}
