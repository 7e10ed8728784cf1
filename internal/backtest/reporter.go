package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateReport renders a human-readable performance report from a Result
// as boxed sections.
func GenerateReport(res Result) string {
	var sb strings.Builder

	sb.WriteString("═══════════════════════════════════════════════════════\n")
	sb.WriteString("           BACKTEST PERFORMANCE REPORT\n")
	sb.WriteString("═══════════════════════════════════════════════════════\n\n")

	sb.WriteString("OVERALL PERFORMANCE\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Total PnL:            $%s\n", res.Metrics.TotalPnl.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Max Drawdown:         %.2f%%\n", res.Metrics.MaxDrawdownPct.InexactFloat64()))
	sb.WriteString(fmt.Sprintf("Profit Factor:        %.2f\n\n", res.Metrics.ProfitFactor.InexactFloat64()))

	sb.WriteString("TRADE STATISTICS\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Total Trades:         %d\n", res.Metrics.NumTrades))
	sb.WriteString(fmt.Sprintf("Winning Trades:       %d\n", res.Analysis.WinningTrades))
	sb.WriteString(fmt.Sprintf("Losing Trades:        %d\n", res.Analysis.LosingTrades))
	sb.WriteString(fmt.Sprintf("Win Rate:             %.2f%%\n", res.Metrics.WinRate.InexactFloat64()))
	sb.WriteString(fmt.Sprintf("Avg R-Multiple:       %.2f\n", res.Metrics.AvgR.InexactFloat64()))
	sb.WriteString(fmt.Sprintf("Avg Bars Held:        %s\n", res.Analysis.AvgBarsHeld.StringFixed(1)))
	sb.WriteString(fmt.Sprintf("Discarded Signals:    %d\n\n", res.DiscardedSignals))

	sb.WriteString("PROFIT/LOSS ANALYSIS\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Largest Win:          $%s\n", res.Analysis.LargestWin.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Largest Loss:         $%s\n\n", res.Analysis.LargestLoss.StringFixed(2)))

	if n := len(res.Trades); n > 0 {
		sb.WriteString("RECENT TRADES (last 10)\n")
		sb.WriteString("───────────────────────────────────────────────────────\n")
		start := n - 10
		if start < 0 {
			start = 0
		}
		for i := start; i < n; i++ {
			tr := res.Trades[i]
			marker := "+"
			if tr.NetPnl.LessThan(decimal.Zero) {
				marker = "-"
			}
			sb.WriteString(fmt.Sprintf("%s %s %s: entry=%s exit=%s pnl=%s (%.2f%%) R=%.2f %s\n",
				marker,
				tr.EntryTime.Format("01-02 15:04"),
				tr.Direction,
				tr.EntryPrice.StringFixed(2),
				tr.ExitPrice.StringFixed(2),
				tr.NetPnl.StringFixed(2),
				tr.PnlPercent.InexactFloat64(),
				tr.RMultiple.InexactFloat64(),
				tr.ExitReason,
			))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("═══════════════════════════════════════════════════════\n")
	return sb.String()
}

// GenerateSummary renders a single-line summary, for log lines and CLI
// status output.
func GenerateSummary(res Result) string {
	return fmt.Sprintf(
		"pnl=$%s trades=%d winRate=%.2f%% maxDD=%.2f%% profitFactor=%.2f avgR=%.2f",
		res.Metrics.TotalPnl.StringFixed(2),
		res.Metrics.NumTrades,
		res.Metrics.WinRate.InexactFloat64(),
		res.Metrics.MaxDrawdownPct.InexactFloat64(),
		res.Metrics.ProfitFactor.InexactFloat64(),
		res.Metrics.AvgR.InexactFloat64(),
	)
}

// GenerateTradeLog renders one detailed block per completed trade.
func GenerateTradeLog(res Result) string {
	var sb strings.Builder
	sb.WriteString("TRADE LOG\n")
	sb.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	for i, tr := range res.Trades {
		status := "PROFIT"
		if tr.NetPnl.LessThan(decimal.Zero) {
			status = "LOSS"
		}
		sb.WriteString(fmt.Sprintf("Trade #%d  %s  %s  duration=%s  R=%.2f  pnl=$%s (%.2f%%) [%s]\n",
			i+1, tr.Symbol, tr.Direction,
			formatDuration(tr.ExitTime.Sub(tr.EntryTime)),
			tr.RMultiple.InexactFloat64(),
			tr.NetPnl.StringFixed(2), tr.PnlPercent.InexactFloat64(), status))
	}
	return sb.String()
}

// formatDuration renders a duration compactly
// (seconds/minutes/hours-minutes/days-hours).
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours()/24), int(d.Hours())%24)
}
