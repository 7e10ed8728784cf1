package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/strategy"
)

// RenderPositions renders the open-position list fetched from GET /positions.
func RenderPositions(positions []position.Position) string {
	var content strings.Builder

	content.WriteString("Open Positions\n\n")

	if len(positions) == 0 {
		mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
		return boxStyle.Render(content.String() + mutedStyle.Render("No open positions"))
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	content.WriteString(headerStyle.Render(
		fmt.Sprintf("%-10s %-6s %-12s %-12s %-12s %-10s\n",
			"Symbol", "Side", "Entry", "Current", "Size", "PnL")))
	content.WriteString(strings.Repeat("-", 66) + "\n")

	totalPnL := decimal.Zero
	for _, pos := range positions {
		side := "LONG"
		sideStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
		if pos.Direction == strategy.Short {
			side = "SHORT"
			sideStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
		}

		pnlStyle := lipgloss.NewStyle().Foreground(successColor)
		if pos.UnrealizedPnl.IsNegative() {
			pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		totalPnL = totalPnL.Add(pos.UnrealizedPnl)

		incomplete := ""
		if pos.VenueIncomplete {
			incomplete = lipgloss.NewStyle().Foreground(warningColor).Render(" !incomplete")
		}

		content.WriteString(fmt.Sprintf("%-10s %-6s %-12s %-12s %-12s %s%s\n",
			pos.Symbol,
			sideStyle.Render(side),
			"$"+pos.EntryPrice.StringFixed(2),
			"$"+pos.CurrentPrice.StringFixed(2),
			pos.Size.StringFixed(4),
			pnlStyle.Render("$"+pos.UnrealizedPnl.StringFixed(2)),
			incomplete))
	}

	content.WriteString(strings.Repeat("-", 66) + "\n")
	totalStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	if totalPnL.IsNegative() {
		totalStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	}
	content.WriteString(fmt.Sprintf("%-53s %s\n", "Total Unrealized PnL:", totalStyle.Render("$"+totalPnL.StringFixed(2))))

	return boxStyle.Render(content.String())
}
