// Command daemon is the live trading entrypoint: it loads a deployment
// config, wires an exchange adapter (dry-run, testnet, or live Hyperliquid),
// starts one candle Ingestor and one strategy Runtime per configured
// (symbol, strategy) pair, connects the order-update/fill event stream into
// the Position Book, and runs the Reconciler on a ticker. Everything the
// daemon does is driven by the config document; no symbol or strategy is
// hardcoded.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/config"
	"github.com/guyghost/perpcore/internal/corerr"
	"github.com/guyghost/perpcore/internal/eventlog"
	"github.com/guyghost/perpcore/internal/exchange"
	"github.com/guyghost/perpcore/internal/httpapi"
	"github.com/guyghost/perpcore/internal/lifecycle"
	"github.com/guyghost/perpcore/internal/logger"
	"github.com/guyghost/perpcore/internal/order"
	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/risk"
	"github.com/guyghost/perpcore/internal/store"
	"github.com/guyghost/perpcore/internal/strategy"
	"github.com/guyghost/perpcore/internal/telemetry"
)

var configPath = flag.String("config", "config.json", "Path to the deployment config document")

func main() {
	flag.Parse()
	_ = godotenv.Load()

	log := logger.Component("daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		log.Error("failed to build exchange adapter", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := adapter.Connect(ctx); err != nil {
		log.Error("failed to connect exchange adapter", "error", err)
		os.Exit(1)
	}

	d := newDaemon(cfg, adapter, log)
	if err := d.run(ctx); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func buildAdapter(cfg *config.Config) (exchange.Adapter, error) {
	switch cfg.Mode {
	case config.ModeLive, config.ModeTestnet:
		return exchange.NewHyperliquidAdapter(
			"",
			cfg.Credentials.WalletAddress,
			cfg.Credentials.PrivateKey,
			cfg.Mode == config.ModeLive,
		)
	default:
		return exchange.NewDryRunAdapter(nil), nil
	}
}

// priceCache is the daemon's PriceProvider: the last known price per
// symbol, seeded from venue mark prices during startup recovery and updated
// on each fill. Candle polls and stream ticks do not update it.
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newPriceCache() *priceCache { return &priceCache{prices: make(map[string]decimal.Decimal)} }

func (p *priceCache) set(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *priceCache) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.prices[symbol]
	return v, ok
}

// candleRegistry exposes per-symbol ingestors to the HTTP surface.
type candleRegistry struct {
	mu        sync.RWMutex
	ingestors map[string]*candle.Ingestor
}

func newCandleRegistry() *candleRegistry {
	return &candleRegistry{ingestors: make(map[string]*candle.Ingestor)}
}

func (r *candleRegistry) add(symbol string, ing *candle.Ingestor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingestors[symbol] = ing
}

func (r *candleRegistry) Snapshot(symbol string) []candle.Candle {
	r.mu.RLock()
	ing, ok := r.ingestors[symbol]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return ing.Snapshot()
}

// leverageTable answers httpapi.LeverageResolver from the loaded config.
type leverageTable map[string]int

func (t leverageTable) Leverage(symbol string) int {
	if v, ok := t[symbol]; ok {
		return v
	}
	return 1
}

// daemon wires together one running instance: one Runtime per (symbol,
// strategy) binding sharing a single Position Book, order Session, risk
// Tracker, and exchange Adapter, plus the Reconciler and HTTP/WS surface.
type daemon struct {
	cfg     *config.Config
	adapter exchange.Adapter
	log     *logger.Logger

	book      *position.Book
	tracker   *risk.Tracker
	session   *order.Session
	st        store.Store
	events    *eventlog.Writer
	prices    *priceCache
	candles   *candleRegistry
	reconcile *position.Reconciler

	runners []*lifecycle.Runner
}

func newDaemon(cfg *config.Config, adapter exchange.Adapter, log *logger.Logger) *daemon {
	book := position.NewBook()
	return &daemon{
		cfg:       cfg,
		adapter:   adapter,
		log:       log,
		book:      book,
		tracker:   risk.NewTracker(),
		session:   order.NewSession(),
		st:        store.New(),
		events:    eventlog.New(os.Stdout),
		prices:    newPriceCache(),
		candles:   newCandleRegistry(),
		reconcile: position.NewReconciler(book, adapter, cfg.Credentials.WalletAddress),
	}
}

func (d *daemon) run(ctx context.Context) error {
	runID := uuid.NewString()
	d.log = d.log.WithField("run_id", runID)
	_ = d.events.Log(eventlog.DaemonStarted, map[string]any{"mode": d.cfg.Mode, "runId": runID})

	d.recoverPositions(ctx)

	guardrails := risk.Guardrails{
		MaxNotionalUsd:   d.cfg.Guardrails.MaxNotionalUsd,
		MaxLeverage:      d.cfg.Guardrails.MaxLeverage,
		MaxOpenPositions: d.cfg.Guardrails.MaxOpenPositions,
		MaxDailyLossUsd:  d.cfg.Guardrails.MaxDailyLossUsd,
		MaxTradesPerDay:  d.cfg.Guardrails.MaxTradesPerDay,
	}
	sizing := order.SizingPolicy{
		Mode:            order.SizingMode(d.cfg.Sizing.Mode),
		RiskPerTradeUsd: d.cfg.Sizing.RiskPerTradeUsd,
		CashPerTrade:    d.cfg.Sizing.CashPerTrade,
	}

	processor := &order.Processor{
		Adapter:    d.adapter,
		Session:    d.session,
		Book:       d.book,
		Guardrails: guardrails,
		Tracker:    d.tracker,
		Dedup:      d.st,
		Sizing:     sizing,
		Wallet:     d.cfg.Credentials.WalletAddress,
		MarginMode: exchange.MarginCross,
	}

	leverage := make(leverageTable)
	hist := &historyProvider{book: d.book, tracker: d.tracker}

	telemetrySrv := telemetry.NewServer(d.cfg.TelemetryAddr)
	_ = telemetrySrv.Start()
	defer telemetrySrv.Shutdown(context.Background())

	httpSrv := httpapi.NewServer(d.cfg.HTTPAddr, &httpapi.Server{
		Book:      d.book,
		Store:     d.st,
		Processor: processor,
		Prices:    d.prices,
		Candles:   d.candles,
		Leverage:  leverage,
		Config:    d.cfg,
	})
	if err := httpSrv.Start(); err != nil {
		return fmt.Errorf("daemon: http server: %w", err)
	}
	defer httpSrv.Shutdown(context.Background())

	for _, sym := range d.cfg.Symbols {
		if !sym.Enabled {
			continue
		}
		leverage[sym.Coin] = int(sym.Leverage.IntPart())
		if err := d.session.EnsureLeverage(ctx, d.adapter, sym.Coin, leverage[sym.Coin], exchange.MarginMode(sym.MarginType)); err != nil {
			d.log.Warn("failed to set leverage at startup", "symbol", sym.Coin, "error", err)
		}

		for _, binding := range sym.Strategies {
			if err := d.startBinding(ctx, sym, binding, processor, hist); err != nil {
				d.log.Error("failed to start strategy binding", "symbol", sym.Coin, "strategy", binding.Name, "error", err)
			}
		}
	}

	d.startEventStream(ctx)
	d.startReconciler(ctx)

	<-ctx.Done()
	d.log.Info("stopping")
	for _, r := range d.runners {
		r.Stop()
	}
	return nil
}

func (d *daemon) startBinding(ctx context.Context, sym config.SymbolConfig, binding config.StrategyBinding, processor *order.Processor, hist *historyProvider) error {
	strat, err := selectStrategy(binding.Name)
	if err != nil {
		return err
	}

	baseInterval := candle.Interval(binding.Interval)
	ing := candle.New(sym.Coin, baseInterval, d.adapter)
	if _, err := ing.Warmup(ctx, max(binding.WarmupBars, 500)); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	d.candles.add(sym.Coin, ing)

	disp := &dispatcher{
		symbol:    sym.Coin,
		processor: processor,
		prices:    d.prices,
		events:    d.events,
		autoTrade: binding.AutoTradingEnabled,
		leverage:  int(sym.Leverage.IntPart()),
		log:       d.log,
	}

	rt, err := strategy.NewRuntime(sym.Coin, baseInterval, strat, ing, hist, disp)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	runner := &lifecycle.Runner{}
	d.runners = append(d.runners, runner)
	return runner.Start(ctx, func(rctx context.Context) {
		if err := rt.Run(rctx); err != nil && rctx.Err() == nil {
			d.log.Error("strategy runtime stopped", "symbol", sym.Coin, "strategy", binding.Name, "error", err)
		}
	})
}

// recoverPositions seeds the Position Book from venue state on startup: for
// each venue-reported position, its reduce-only open orders are classified
// into stop-loss / trailing stop / take-profits and the position is adopted
// locally, so a restart never loses track of exposure placed by a previous
// run. A position whose stop-loss cannot be identified is adopted with
// VenueIncomplete set so the reconciler keeps surfacing it.
func (d *daemon) recoverPositions(ctx context.Context) {
	wallet := d.cfg.Credentials.WalletAddress
	remote, err := d.adapter.GetPositions(ctx, wallet)
	if err != nil {
		d.log.Warn("startup position recovery failed, relying on reconciler", "error", err)
		return
	}
	if len(remote) == 0 {
		return
	}

	open, err := d.adapter.GetOpenOrders(ctx, wallet)
	if err != nil {
		d.log.Warn("startup open-order fetch failed, recovering positions without protection", "error", err)
	}
	ordersBySymbol := make(map[string][]exchange.OpenOrder)
	for _, o := range open {
		ordersBySymbol[o.Symbol] = append(ordersBySymbol[o.Symbol], o)
	}

	for _, rp := range remote {
		rec := exchange.ClassifyProtectiveOrders(ordersBySymbol[rp.Symbol], rp.Size, rp.IsLong)
		dir := strategy.Short
		if rp.IsLong {
			dir = strategy.Long
		}
		p := position.Position{
			Symbol:        rp.Symbol,
			Direction:     dir,
			EntryPrice:    rp.EntryPrice,
			Size:          rp.Size,
			OpenedAt:      time.Now().UTC(),
			CurrentPrice:  rp.MarkPrice,
			UnrealizedPnl: rp.UnrealizedPnl,
		}
		if rec.StopLoss != nil {
			p.StopLoss = rec.StopLoss.Order.TriggerPrice
		} else {
			p.VenueIncomplete = true
		}
		if rec.TrailingStop != nil {
			p.TrailingStopLoss = rec.TrailingStop.Order.TriggerPrice
		}
		for _, tp := range rec.TakeProfits {
			p.TakeProfits = append(p.TakeProfits, strategy.TakeProfit{Price: tp.Order.Price, FractionOfPosition: tp.PctOfPosition})
		}

		if err := d.book.Open(p); err != nil {
			d.log.Warn("failed to adopt venue position on startup", "symbol", rp.Symbol, "error", err)
			continue
		}
		if rp.MarkPrice.IsPositive() {
			d.prices.set(rp.Symbol, rp.MarkPrice)
		}
		d.log.Info("recovered venue position on startup",
			"symbol", rp.Symbol, "size", rp.Size,
			"stop_loss_found", rec.StopLoss != nil,
			"take_profits", len(rec.TakeProfits))
	}
}

func (d *daemon) startEventStream(ctx context.Context) {
	stream := exchange.NewEventStream(eventStreamURL(d.cfg.Mode))
	stream.OnOrderUpdate(func(evt exchange.OrderUpdateEvent) {
		d.handleOrderUpdate(evt)
	})
	stream.OnFill(func(evt exchange.FillEvent) {
		d.handleFill(evt)
	})
	if err := stream.Connect(ctx, d.cfg.Credentials.WalletAddress); err != nil {
		d.log.Warn("event stream connect failed, relying on reconciler polling", "error", err)
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
}

func (d *daemon) handleOrderUpdate(evt exchange.OrderUpdateEvent) {
	_, hasLocal := d.book.Get(evt.Symbol)
	status, ok := exchange.MapOrderStatus(evt.Status, true, hasLocal)
	if !ok {
		return
	}
	_ = d.st.SaveOrder(store.OrderRecord{
		VenueOrderID: evt.VenueOrderID,
		Symbol:       evt.Symbol,
		Status:       string(status),
		CreatedAt:    evt.Timestamp,
	})
}

func (d *daemon) handleFill(evt exchange.FillEvent) {
	d.prices.set(evt.Symbol, evt.Price)
	d.book.UpdatePrice(evt.Symbol, evt.Price)
	_ = d.st.SaveFill(store.FillRecord{
		VenueOrderID: evt.VenueOrderID,
		Price:        evt.Price,
		Size:         evt.Size,
		Timestamp:    evt.Timestamp,
	})
}

func (d *daemon) startReconciler(ctx context.Context) {
	runner := &lifecycle.Runner{}
	d.runners = append(d.runners, runner)
	_ = runner.Start(ctx, func(rctx context.Context) {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				return
			case <-ticker.C:
				d.tick(rctx)
			}
		}
	})
}

func (d *daemon) tick(ctx context.Context) {
	drifts, err := d.reconcile.Reconcile(ctx)
	if err != nil {
		ce := corerr.NewError(corerr.VenueTransient, "reconcile", err)
		d.log.Warn("reconcile failed", "error", ce)
		return
	}
	if len(drifts) == 0 {
		_ = d.events.Log(eventlog.ReconcileOK, nil)
		return
	}
	for _, dr := range drifts {
		_ = d.events.Log(eventlog.ReconcileDrift, dr)
		d.log.Warn("reconcile drift detected", "symbol", dr.Symbol, "kind", dr.Kind)
	}
}

func selectStrategy(name string) (strategy.Strategy, error) {
	switch name {
	case "ema_crossover_rsi":
		return strategy.NewEMACrossoverRSI(), nil
	case "donchian_trend":
		return strategy.NewDonchianTrend(), nil
	default:
		return strategy.Strategy{}, fmt.Errorf("daemon: unknown strategy %q", name)
	}
}

func eventStreamURL(mode config.Mode) string {
	if mode == config.ModeLive {
		return "wss://api.hyperliquid.xyz/ws"
	}
	return "wss://api.hyperliquid-testnet.xyz/ws"
}

// historyProvider answers strategy.HistoryProvider from the Position Book
// and risk Tracker, so a strategy's Context carries real counters instead
// of zero values.
type historyProvider struct {
	book    *position.Book
	tracker *risk.Tracker
}

func (h *historyProvider) RiskState(symbol string) strategy.RiskState {
	tradesToday, dailyLoss, consecutiveLosses := h.tracker.Snapshot(time.Now())
	return strategy.RiskState{
		DailyPnL:          dailyLoss.Neg(),
		TradesToday:       tradesToday,
		ConsecutiveLosses: consecutiveLosses,
	}
}

func (h *historyProvider) OpenPosition(symbol string) *strategy.OpenPosition {
	p, ok := h.book.Get(symbol)
	if !ok {
		return nil
	}
	return &strategy.OpenPosition{Direction: p.Direction, EntryPrice: p.EntryPrice}
}

// dispatcher bridges strategy.Runtime's produced Signals into the order
// Processor, gated by the strategy binding's autoTradingEnabled flag: when
// false the signal is logged and persisted but never submitted, letting an
// operator watch a new strategy in shadow mode before trusting it to trade.
type dispatcher struct {
	symbol    string
	processor *order.Processor
	prices    *priceCache
	events    *eventlog.Writer
	autoTrade bool
	leverage  int
	log       *logger.Logger
}

func (d *dispatcher) Dispatch(ctx context.Context, symbol string, strategyName string, alertID string, sig strategy.Signal) {
	_ = d.events.Log(eventlog.SignalReceived, map[string]any{"symbol": symbol, "strategy": strategyName, "alertId": alertID})

	if !d.autoTrade {
		d.log.Info("signal received in shadow mode, not trading", "symbol", symbol, "strategy", strategyName, "alertId", alertID)
		return
	}

	currentPrice, ok := d.prices.CurrentPrice(symbol)
	if !ok && sig.EntryPrice != nil {
		// No market observation yet for this symbol; the deviation check
		// degrades to a no-op rather than blocking the first signal.
		currentPrice = *sig.EntryPrice
	}

	result, err := d.processor.Submit(ctx, sig, currentPrice, symbol, d.leverage, alertID)
	if err != nil {
		d.log.Error("failed to submit signal", "symbol", symbol, "error", err)
		return
	}
	if result.Rejected != nil {
		_ = d.events.Log(eventlog.RiskCheckFailed, map[string]any{"symbol": symbol, "alertId": alertID, "reason": result.Rejected.Reason})
		return
	}
	_ = d.events.Log(eventlog.RiskCheckPassed, map[string]any{"symbol": symbol, "alertId": alertID})
	_ = d.events.Log(eventlog.PositionOpened, map[string]any{"symbol": symbol, "alertId": alertID})
}
