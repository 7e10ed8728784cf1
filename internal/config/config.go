// Package config loads the deployment configuration document: operating
// mode, per-symbol strategy bindings, guardrails, sizing, and execution
// assumptions. Venue credentials are never part of the JSON document; they
// stay in environment variables so secrets never land in committed or
// shipped config files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode selects how the daemon talks to the venue.
type Mode string

const (
	ModeDryRun  Mode = "dry-run"
	ModeTestnet Mode = "testnet"
	ModeLive    Mode = "live"
)

// MarginType selects cross or isolated margin for a symbol.
type MarginType string

const (
	MarginCross    MarginType = "cross"
	MarginIsolated MarginType = "isolated"
)

// SizingMode selects fixed-risk or fixed-cash position sizing.
type SizingMode string

const (
	SizingRisk SizingMode = "risk"
	SizingCash SizingMode = "cash"
)

// StrategyBinding attaches a named reference strategy to a symbol at a given
// base interval, with its own warmup and an opt-in auto-trading flag (a
// strategy can run in shadow/log-only mode before being trusted to trade).
type StrategyBinding struct {
	Name               string `json:"name"`
	Interval           string `json:"interval"`
	WarmupBars         int    `json:"warmupBars"`
	AutoTradingEnabled bool   `json:"autoTradingEnabled"`
}

// SymbolConfig configures one traded symbol: its venue coin identifier,
// leverage, margin mode, the strategies bound to it, and where its candles
// come from. Every ratio/monetary field is decimal.Decimal; float64 never
// carries money anywhere in the module.
type SymbolConfig struct {
	Coin       string            `json:"coin"`
	Leverage   decimal.Decimal   `json:"leverage"`
	MarginType MarginType        `json:"marginType"`
	Strategies []StrategyBinding `json:"strategies"`
	DataSource string            `json:"dataSource"`
	Enabled    bool              `json:"enabled"`
}

// Guardrails mirrors internal/risk.Guardrails in the wire format so the
// config document is the single source of truth for risk limits; the daemon
// converts this into a risk.Guardrails at startup.
type Guardrails struct {
	MaxNotionalUsd   decimal.Decimal `json:"maxNotionalUsd"`
	MaxLeverage      decimal.Decimal `json:"maxLeverage"`
	MaxOpenPositions int             `json:"maxOpenPositions"`
	MaxDailyLossUsd  decimal.Decimal `json:"maxDailyLossUsd"`
	MaxTradesPerDay  int             `json:"maxTradesPerDay"`
}

// Sizing configures the order translator's SizingPolicy.
type Sizing struct {
	Mode            SizingMode      `json:"mode"`
	RiskPerTradeUsd decimal.Decimal `json:"riskPerTradeUsd"`
	CashPerTrade    decimal.Decimal `json:"cashPerTrade"`
}

// Execution configures backtest/live fill assumptions; defaults are 2bps
// slippage and 0.045% commission.
type Execution struct {
	SlippageBps   decimal.Decimal `json:"slippageBps"`
	CommissionPct decimal.Decimal `json:"commissionPct"`
}

// DefaultExecution returns the standard fill assumptions.
func DefaultExecution() Execution {
	return Execution{
		SlippageBps:   decimal.NewFromInt(2),
		CommissionPct: decimal.NewFromFloat(0.045),
	}
}

// Config is the full deployment document: mode, symbols, guardrails,
// sizing, execution.
type Config struct {
	Mode       Mode           `json:"mode"`
	Symbols    []SymbolConfig `json:"symbols"`
	Guardrails Guardrails     `json:"guardrails"`
	Sizing     Sizing         `json:"sizing"`
	Execution  Execution      `json:"execution"`

	// TelemetryAddr and HTTPAddr are deployment knobs every entrypoint
	// needs; kept here rather than as separate env-only globals so the
	// whole runtime configuration lives in one place.
	TelemetryAddr string `json:"telemetryAddr"`
	HTTPAddr      string `json:"httpAddr"`

	// Credentials is populated from the environment after Load unmarshals
	// the document, never from the JSON file itself.
	Credentials Credentials `json:"-"`
}

// Credentials holds venue secrets sourced from the environment, kept out of
// the JSON config document.
type Credentials struct {
	WalletAddress string
	PrivateKey    string
}

// Load reads and validates a deployment Config from path, then overlays
// venue credentials from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		Execution: DefaultExecution(),
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.TelemetryAddr = getEnv("TELEMETRY_ADDR", orDefault(cfg.TelemetryAddr, ":9100"))
	cfg.HTTPAddr = getEnv("HTTP_ADDR", orDefault(cfg.HTTPAddr, ":8080"))
	cfg.Credentials = Credentials{
		WalletAddress: os.Getenv("HYPERLIQUID_WALLET_ADDRESS"),
		PrivateKey:    os.Getenv("HYPERLIQUID_PRIVATE_KEY"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// validate checks the required fields at load time and reports every
// missing field in one error.
func (c *Config) validate() error {
	var problems []string

	switch c.Mode {
	case ModeDryRun, ModeTestnet, ModeLive:
	default:
		problems = append(problems, fmt.Sprintf("mode: unrecognized %q", c.Mode))
	}

	if len(c.Symbols) == 0 {
		problems = append(problems, "symbols: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, s := range c.Symbols {
		if s.Coin == "" {
			problems = append(problems, fmt.Sprintf("symbols[%d].coin: required", i))
		}
		if seen[s.Coin] {
			problems = append(problems, fmt.Sprintf("symbols[%d].coin: duplicate %q", i, s.Coin))
		}
		seen[s.Coin] = true
		switch s.MarginType {
		case MarginCross, MarginIsolated:
		default:
			problems = append(problems, fmt.Sprintf("symbols[%d].marginType: unrecognized %q", i, s.MarginType))
		}
		if len(s.Strategies) == 0 {
			problems = append(problems, fmt.Sprintf("symbols[%d].strategies: at least one required", i))
		}
	}

	switch c.Sizing.Mode {
	case SizingRisk, SizingCash:
	default:
		problems = append(problems, fmt.Sprintf("sizing.mode: unrecognized %q", c.Sizing.Mode))
	}

	if c.Mode == ModeLive {
		if c.Credentials.WalletAddress == "" {
			problems = append(problems, "HYPERLIQUID_WALLET_ADDRESS is required in live mode")
		}
		if c.Credentials.PrivateKey == "" {
			problems = append(problems, "HYPERLIQUID_PRIVATE_KEY is required in live mode")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid document: %s", strings.Join(problems, "; "))
	}
	return nil
}
