package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// CandleRow is one pre-formatted OHLC row for the candle view, formatted by
// the caller so this package never needs to import internal/candle or
// shopspring/decimal directly.
type CandleRow struct {
	Timestamp               time.Time
	Open, High, Low, Close  string
}

// RenderCandles renders a recent OHLC table plus a simple bar chart of
// closing prices.
func RenderCandles(symbol string, rows []CandleRow) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("Candles: %s\n\n", symbol))

	if len(rows) == 0 {
		mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
		return boxStyle.Render(content.String() + mutedStyle.Render("No candle data available"))
	}

	content.WriteString(renderCloseBars(rows) + "\n")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	content.WriteString(headerStyle.Render(
		fmt.Sprintf("%-20s %-10s %-10s %-10s %-10s\n", "Time (UTC)", "Open", "High", "Low", "Close")))
	content.WriteString(strings.Repeat("-", 62) + "\n")

	start := 0
	if len(rows) > 15 {
		start = len(rows) - 15
	}
	for _, r := range rows[start:] {
		content.WriteString(fmt.Sprintf("%-20s %-10s %-10s %-10s %-10s\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04"), r.Open, r.High, r.Low, r.Close))
	}

	return boxStyle.Render(content.String())
}

func renderCloseBars(rows []CandleRow) string {
	depth := rows
	if len(depth) > 30 {
		depth = depth[len(depth)-30:]
	}

	min, max := parseFloat(depth[0].Close), parseFloat(depth[0].Close)
	for _, r := range depth {
		v := parseFloat(r.Close)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	spread := max - min
	if spread <= 0 {
		spread = 1
	}

	var b strings.Builder
	barStyle := lipgloss.NewStyle().Foreground(successColor)
	for _, r := range depth {
		v := parseFloat(r.Close)
		barLen := int((v - min) / spread * 20)
		b.WriteString(barStyle.Render(strings.Repeat("#", barLen+1)) + "\n")
	}
	return b.String()
}

func parseFloat(s string) float64 {
	var v float64
	fmt.Sscanf(s, "%f", &v)
	return v
}
