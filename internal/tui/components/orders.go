package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/guyghost/perpcore/internal/store"
)

// RenderOrders renders the recent-order list fetched from GET /orders.
func RenderOrders(orders []store.OrderRecord) string {
	var content strings.Builder

	content.WriteString("Recent Orders\n\n")

	if len(orders) == 0 {
		mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
		return boxStyle.Render(content.String() + mutedStyle.Render("No orders yet"))
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	content.WriteString(headerStyle.Render(
		fmt.Sprintf("%-10s %-5s %-9s %-12s %-12s %-10s\n",
			"Symbol", "Side", "Tag", "Size", "Price", "Status")))
	content.WriteString(strings.Repeat("-", 62) + "\n")

	start := 0
	if len(orders) > 25 {
		start = len(orders) - 25
	}
	for _, o := range orders[start:] {
		side := "SELL"
		sideStyle := lipgloss.NewStyle().Foreground(errorColor)
		if o.IsBuy {
			side = "BUY"
			sideStyle = lipgloss.NewStyle().Foreground(successColor)
		}

		statusStyle := lipgloss.NewStyle().Foreground(mutedColor)
		switch o.Status {
		case "filled":
			statusStyle = lipgloss.NewStyle().Foreground(successColor)
		case "rejected", "canceled", "failed":
			statusStyle = lipgloss.NewStyle().Foreground(errorColor)
		case "pending":
			statusStyle = lipgloss.NewStyle().Foreground(warningColor)
		}

		content.WriteString(fmt.Sprintf("%-10s %-5s %-9s %-12s %-12s %s\n",
			o.Symbol,
			sideStyle.Render(side),
			string(o.Tag),
			o.Size.StringFixed(4),
			"$"+o.Price.StringFixed(2),
			statusStyle.Render(o.Status)))
	}

	return boxStyle.Render(content.String())
}
