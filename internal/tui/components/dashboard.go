package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	successColor = lipgloss.Color("#00FF87")
	errorColor   = lipgloss.Color("#FF5555")
	warningColor = lipgloss.Color("#FFB86C")
	mutedColor   = lipgloss.Color("#6272A4")

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)
)

// RenderBalanceCard renders the account equity card from the daemon's most
// recent equity snapshot.
func RenderBalanceCard(equity, unrealizedPnL, realizedPnL decimal.Decimal) string {
	var content strings.Builder

	content.WriteString("Account Equity\n\n")

	balanceStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	content.WriteString(fmt.Sprintf("Equity:       %s\n", balanceStyle.Render("$"+equity.StringFixed(2))))

	pnlStyle := lipgloss.NewStyle().Foreground(successColor)
	if unrealizedPnL.IsNegative() {
		pnlStyle = lipgloss.NewStyle().Foreground(errorColor)
	}
	content.WriteString(fmt.Sprintf("Unrealized:   %s\n", pnlStyle.Render("$"+unrealizedPnL.StringFixed(2))))

	realizedStyle := lipgloss.NewStyle().Foreground(successColor)
	if realizedPnL.IsNegative() {
		realizedStyle = lipgloss.NewStyle().Foreground(errorColor)
	}
	content.WriteString(fmt.Sprintf("Realized:     %s\n", realizedStyle.Render("$"+realizedPnL.StringFixed(2))))

	return boxStyle.Render(content.String())
}

// RenderModeCard renders the daemon's operating mode and symbol count.
func RenderModeCard(mode string, openPositions, symbolCount int) string {
	var content strings.Builder

	content.WriteString("Daemon\n\n")

	modeStyle := lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	if mode == "live" {
		modeStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	}
	content.WriteString(fmt.Sprintf("Mode:            %s\n", modeStyle.Render(strings.ToUpper(mode))))
	content.WriteString(fmt.Sprintf("Symbols bound:   %d\n", symbolCount))
	content.WriteString(fmt.Sprintf("Open positions:  %d\n", openPositions))

	return boxStyle.Render(content.String())
}

// RenderActivityCard renders the console's local activity/error log.
func RenderActivityCard(messages []string) string {
	var content strings.Builder

	content.WriteString("Recent Activity\n\n")

	mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
	if len(messages) == 0 {
		content.WriteString(mutedStyle.Render("No recent activity"))
		return boxStyle.Render(content.String())
	}

	start := 0
	if len(messages) > 10 {
		start = len(messages) - 10
	}
	for _, msg := range messages[start:] {
		content.WriteString(mutedStyle.Render("* "+msg) + "\n")
	}

	return boxStyle.Render(content.String())
}
