// Command backtest drives the shared bar-by-bar engine (internal/backtest)
// against a CSV candle file for one symbol and one reference strategy, and
// prints the resulting report to stdout. It exercises the exact same
// Strategy contract the live daemon runs, so a live strategy behaves
// exactly as its backtest did.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/aggregate"
	"github.com/guyghost/perpcore/internal/backtest"
	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/strategy"
)

var (
	dataFile       = flag.String("data", "", "Path to CSV file with historical data (required)")
	symbol         = flag.String("symbol", "BTC-USD", "Trading symbol")
	sourceInterval = flag.String("interval", "1h", "Base candle interval of the CSV data")
	initialCapital = flag.Float64("capital", 10000, "Initial capital for backtesting")
	commissionPct  = flag.Float64("commission", 0.045, "Commission percentage (e.g. 0.045 for 0.045%)")
	slippageBps    = flag.Float64("slippage-bps", 2, "Slippage in basis points")
	riskPerTrade   = flag.Float64("risk", 100, "Risk per trade in USD (risk sizing mode)")
	sizingMode     = flag.String("sizing", "risk", "Sizing mode: risk|cash")
	cashPerTrade   = flag.Float64("cash", 1000, "Cash committed per trade (cash sizing mode)")

	strategyName = flag.String("strategy", "ema_crossover_rsi", "Reference strategy: ema_crossover_rsi|donchian_trend")

	cooldownBars         = flag.Int("cooldown-bars", 0, "Bars to wait after an exit before re-entry")
	maxConsecutiveLosses = flag.Int("max-consecutive-losses", 0, "0 disables the guardrail")
	maxTradesPerDay      = flag.Int("max-trades-per-day", 0, "0 disables the guardrail")

	verbose = flag.Bool("verbose", false, "Print the full trade log")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *dataFile == "" {
		return fmt.Errorf("backtest: -data is required")
	}

	log.Printf("loading candles from %s...", *dataFile)
	candles, err := backtest.LoadCandlesFromCSV(*dataFile, *symbol)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles loaded")
	}
	log.Printf("loaded %d candles, %s to %s", len(candles), candles[0].Timestamp.Format(time.RFC3339), candles[len(candles)-1].Timestamp.Format(time.RFC3339))

	strat, err := selectStrategy(*strategyName)
	if err != nil {
		return err
	}

	baseInterval := candle.Interval(*sourceInterval)
	htf := map[string][]candle.Candle{}
	for _, tf := range strat.RequiredTimeframes {
		series, err := aggregate.Aggregate(candles, baseInterval, candle.Interval(tf))
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", tf, err)
		}
		htf[tf] = series
	}

	cfg := backtest.Config{
		InitialCapital: decimal.NewFromFloat(*initialCapital),
		Sizing:         buildSizing(),
		Execution: backtest.Execution{
			SlippageBps:   decimal.NewFromFloat(*slippageBps),
			CommissionPct: decimal.NewFromFloat(*commissionPct),
		},
		Guardrails: backtest.Guardrails{
			CooldownBars:         *cooldownBars,
			MaxConsecutiveLosses: *maxConsecutiveLosses,
			MaxDailyLossR:        decimal.NewFromInt(1_000_000),
			MaxTradesPerDay:      orUnlimited(*maxTradesPerDay),
			MaxGlobalTradesDay:   orUnlimited(*maxTradesPerDay),
		},
		SourceInterval: *sourceInterval,
	}

	log.Printf("running %s over %d bars...", strat.Name, len(candles))
	start := time.Now()
	engine := backtest.NewEngine(cfg, strat, candles, htf)
	result := engine.Run(nil)
	log.Printf("completed in %s", time.Since(start).Round(time.Millisecond))

	fmt.Println(backtest.GenerateReport(result))
	if *verbose {
		fmt.Println(backtest.GenerateTradeLog(result))
	}
	return nil
}

func orUnlimited(n int) int {
	if n == 0 {
		return 1_000_000
	}
	return n
}

func selectStrategy(name string) (strategy.Strategy, error) {
	switch name {
	case "ema_crossover_rsi":
		return strategy.NewEMACrossoverRSI(), nil
	case "donchian_trend":
		return strategy.NewDonchianTrend(), nil
	default:
		return strategy.Strategy{}, fmt.Errorf("unknown strategy %q", name)
	}
}

func buildSizing() backtest.Sizing {
	mode := backtest.SizingRisk
	if *sizingMode == "cash" {
		mode = backtest.SizingCash
	}
	return backtest.Sizing{
		Mode:         mode,
		RiskPerTrade: decimal.NewFromFloat(*riskPerTrade),
		CashPerTrade: decimal.NewFromFloat(*cashPerTrade),
	}
}
