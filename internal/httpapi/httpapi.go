// Package httpapi implements the HTTP and WebSocket surface: POST /signal
// for inbound trading signals, read-only GETs over
// positions/orders/equity/candles/config, and a WS /ws push feed. It is a
// thin transport over the core's own types; it holds no trading state of
// its own.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/config"
	"github.com/guyghost/perpcore/internal/logger"
	"github.com/guyghost/perpcore/internal/order"
	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/store"
	"github.com/guyghost/perpcore/internal/strategy"
)

// PriceProvider resolves the current mark price for a symbol, used to
// resolve a null entryPrice and to run the risk gate's price-sanity check.
type PriceProvider interface {
	CurrentPrice(symbol string) (decimal.Decimal, bool)
}

// CandleProvider serves recent candles for GET /candles.
type CandleProvider interface {
	Snapshot(symbol string) []candle.Candle
}

// LeverageResolver returns the configured leverage for a symbol, used to
// evaluate the risk gate's leverage check.
type LeverageResolver interface {
	Leverage(symbol string) int
}

// Server is the HTTP+WS surface bound to the core's live state. It holds no
// authoritative state itself: every handler reads through to the
// Position Book, Store, or Processor it wraps.
type Server struct {
	Book      *position.Book
	Store     store.Store
	Processor *order.Processor
	Prices    PriceProvider
	Candles   CandleProvider
	Leverage  LeverageResolver
	Config    *config.Config
	Hub       *Hub

	log     *logger.Logger
	srv     *http.Server
	limiter *rate.Limiter
}

// NewServer wires a Server over the given addr and collaborators. addr=""
// disables the server, mirroring internal/telemetry.NewServer's convention.
func NewServer(addr string, s *Server) *Server {
	if addr == "" {
		return nil
	}
	s.log = logger.Component("httpapi")
	if s.Hub == nil {
		s.Hub = NewHub()
	}
	// Intake backstop: a misconfigured alert source re-firing in a tight
	// loop should be shed here, before it reaches the risk gate.
	s.limiter = rate.NewLimiter(rate.Limit(5), 10)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /signal", s.handleSignal)
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("GET /orders", s.handleOrders)
	mux.HandleFunc("GET /open-orders", s.handleOpenOrders)
	mux.HandleFunc("GET /equity", s.handleEquity)
	mux.HandleFunc("GET /candles", s.handleCandles)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	if s == nil || s.srv == nil {
		return nil
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server stopped", "error", err)
		}
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Config)
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Book.GetAll())
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.RecentOrders(limitParam(r, 200)))
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	var open []store.OrderRecord
	for _, o := range s.Store.RecentOrders(limitParam(r, 1000)) {
		if o.Status == "pending" {
			open = append(open, o)
		}
	}
	writeJSON(w, http.StatusOK, open)
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.RecentEquity(limitParam(r, 500)))
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" || s.Candles == nil {
		writeJSON(w, http.StatusOK, []candle.Candle{})
		return
	}
	series := s.Candles.Snapshot(symbol)

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		if beforeMs, err := strconv.ParseInt(beforeStr, 10, 64); err == nil {
			before := time.UnixMilli(beforeMs)
			cut := len(series)
			for i, c := range series {
				if !c.Timestamp.Before(before) {
					cut = i
					break
				}
			}
			series = series[:cut]
		}
	}

	limit := limitParam(r, len(series))
	if limit < len(series) {
		series = series[len(series)-limit:]
	}
	writeJSON(w, http.StatusOK, series)
}

// signalRequest is the POST /signal body. Symbol is required even though
// single-symbol deployments could imply it: a multi-symbol daemon cannot
// route a signal without naming the instrument it targets.
type signalRequest struct {
	Symbol      string          `json:"symbol"`
	Direction   string          `json:"direction"`
	EntryPrice  *decimal.Decimal `json:"entryPrice"`
	StopLoss    decimal.Decimal `json:"stopLoss"`
	TakeProfits []tpRequest     `json:"takeProfits"`
	Comment     string          `json:"comment"`
	AlertID     string          `json:"alertId"`
}

type tpRequest struct {
	Price              decimal.Decimal `json:"price"`
	FractionOfPosition decimal.Decimal `json:"fractionOfPosition"`
}

type signalResponse struct {
	Status  string `json:"status"` // "executed" | "rejected"
	Reason  string `json:"reason,omitempty"`
	AlertID string `json:"alertId"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, signalResponse{Status: "rejected", Reason: "signal intake rate limit exceeded"})
		return
	}
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: "malformed body: " + err.Error()})
		return
	}
	if req.Symbol == "" {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: "symbol is required"})
		return
	}

	dir := strategy.Direction(req.Direction)
	if dir != strategy.Long && dir != strategy.Short {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: "direction must be long or short"})
		return
	}

	sig := strategy.Signal{
		Direction:  dir,
		EntryPrice: req.EntryPrice,
		StopLoss:   req.StopLoss,
		Comment:    req.Comment,
	}
	for _, tp := range req.TakeProfits {
		sig.TakeProfits = append(sig.TakeProfits, strategy.TakeProfit{Price: tp.Price, FractionOfPosition: tp.FractionOfPosition})
	}

	currentPrice := decimal.Zero
	if s.Prices != nil {
		if p, ok := s.Prices.CurrentPrice(req.Symbol); ok {
			currentPrice = p
		}
	}
	resolvedEntry := currentPrice
	if sig.EntryPrice != nil {
		resolvedEntry = *sig.EntryPrice
	}
	if !sig.Valid(resolvedEntry) {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: "signal fails stop/takeProfit ordering invariant"})
		return
	}

	alertID := req.AlertID
	if alertID == "" {
		alertID = deriveBodyAlertID(req)
	}

	leverage := 1
	if s.Leverage != nil {
		leverage = s.Leverage.Leverage(req.Symbol)
	}

	result, err := s.Processor.Submit(r.Context(), sig, currentPrice, req.Symbol, leverage, alertID)
	_ = s.Store.SaveSignal(store.SignalRecord{
		AlertID:         alertID,
		Source:          "http",
		Symbol:          req.Symbol,
		Direction:       dir,
		EntryPrice:      resolvedEntry,
		StopLoss:        sig.StopLoss,
		TakeProfits:     sig.TakeProfits,
		RiskCheckPassed: result.Rejected == nil && err == nil,
		RiskCheckReason: rejectReason(result),
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: err.Error(), AlertID: alertID})
		return
	}
	if result.Rejected != nil {
		writeJSON(w, http.StatusUnprocessableEntity, signalResponse{Status: "rejected", Reason: result.Rejected.Reason, AlertID: alertID})
		return
	}
	writeJSON(w, http.StatusOK, signalResponse{Status: "executed", AlertID: alertID})
}

func rejectReason(r order.SubmitResult) string {
	if r.Rejected != nil {
		return r.Rejected.Reason
	}
	return ""
}

func deriveBodyAlertID(req signalRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", req.Symbol, req.Direction, req.StopLoss.String(), req.Comment)
	if req.EntryPrice != nil {
		fmt.Fprintf(h, "|%s", req.EntryPrice.String())
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan Frame, 32)}
	s.Hub.register(c)

	c.send <- Frame{Type: FrameSnapshot, Timestamp: time.Now().UTC(), Data: map[string]any{
		"positions": s.Book.GetAll(),
	}}

	go func() {
		defer s.Hub.unregister(c)
		defer conn.Close()
		c.writeLoop()
	}()

	// Drain and discard inbound messages; this feed is push-only. Reading
	// keeps the connection's close/ping handling alive.
	go func() {
		defer s.Hub.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
