package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validDoc = `{
	"mode": "dry-run",
	"symbols": [
		{
			"coin": "BTC",
			"leverage": "5",
			"marginType": "isolated",
			"enabled": true,
			"dataSource": "hyperliquid",
			"strategies": [
				{"name": "ema_crossover_rsi", "interval": "5m", "warmupBars": 60, "autoTradingEnabled": false}
			]
		}
	],
	"guardrails": {
		"maxNotionalUsd": "5000",
		"maxLeverage": "10",
		"maxOpenPositions": 3,
		"maxDailyLossUsd": "200",
		"maxTradesPerDay": 20
	},
	"sizing": {
		"mode": "risk",
		"riskPerTradeUsd": "25"
	}
}`

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad_SucceedsWithValidDocument(t *testing.T) {
	path := writeDoc(t, validDoc)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}
	if cfg.Mode != ModeDryRun {
		t.Fatalf("expected dry-run mode, got %q", cfg.Mode)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0].Coin != "BTC" {
		t.Fatalf("symbols not populated correctly: %+v", cfg.Symbols)
	}
	if cfg.Execution.SlippageBps.IsZero() {
		t.Fatal("expected default execution slippage to be populated")
	}
}

func TestLoad_FailsWithNoSymbols(t *testing.T) {
	path := writeDoc(t, `{"mode":"dry-run","sizing":{"mode":"risk"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when symbols is empty")
	}
}

func TestLoad_FailsWithUnrecognizedMode(t *testing.T) {
	path := writeDoc(t, `{"mode":"bogus","symbols":[{"coin":"BTC","marginType":"isolated","strategies":[{"name":"x"}]}],"sizing":{"mode":"risk"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized mode")
	}
}

func TestLoad_FailsWhenLiveModeMissingCredentials(t *testing.T) {
	path := writeDoc(t, `{"mode":"live","symbols":[{"coin":"BTC","marginType":"isolated","strategies":[{"name":"x"}]}],"sizing":{"mode":"risk"}}`)
	t.Setenv("HYPERLIQUID_WALLET_ADDRESS", "")
	t.Setenv("HYPERLIQUID_PRIVATE_KEY", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when live mode lacks credentials")
	}
}

func TestLoad_SucceedsInLiveModeWithCredentials(t *testing.T) {
	path := writeDoc(t, `{"mode":"live","symbols":[{"coin":"BTC","marginType":"isolated","strategies":[{"name":"x"}]}],"sizing":{"mode":"risk"}}`)
	t.Setenv("HYPERLIQUID_WALLET_ADDRESS", "0xabc")
	t.Setenv("HYPERLIQUID_PRIVATE_KEY", "deadbeef")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}
	if cfg.Credentials.WalletAddress != "0xabc" {
		t.Fatalf("expected wallet address to be sourced from env, got %q", cfg.Credentials.WalletAddress)
	}
}
