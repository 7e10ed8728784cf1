package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/tui/components"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF87")).Padding(0, 1)
	tabStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
	activeTab  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF87")).Bold(true)
	errorBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
)

// View renders the active screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("perpcore console") + "  ")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.lastError != nil {
		b.WriteString(errorBar.Render("! "+m.lastError.Error()) + "\n\n")
	}

	if !m.haveSnapshot {
		b.WriteString("waiting for daemon...\n")
	} else {
		switch m.activeView {
		case ViewPositions:
			b.WriteString(components.RenderPositions(m.snapshot.Positions))
		case ViewOrders:
			b.WriteString(components.RenderOrders(m.snapshot.Orders))
		case ViewCandles:
			b.WriteString(components.RenderCandles(m.candleSymbol, m.candles))
		default:
			b.WriteString(m.renderDashboard())
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("1 dashboard  2 positions  3 orders  4 candles  n next symbol  r refresh  c clear error  q quit"))
	return b.String()
}

func (m Model) renderTabs() string {
	labels := []struct {
		view View
		name string
	}{
		{ViewDashboard, "Dashboard"},
		{ViewPositions, "Positions"},
		{ViewOrders, "Orders"},
		{ViewCandles, "Candles"},
	}
	var parts []string
	for _, l := range labels {
		if l.view == m.activeView {
			parts = append(parts, activeTab.Render(l.name))
		} else {
			parts = append(parts, tabStyle.Render(l.name))
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderDashboard() string {
	var equity, unrealized, realized decimal.Decimal
	var openPositions int
	if len(m.snapshot.Equity) > 0 {
		last := m.snapshot.Equity[len(m.snapshot.Equity)-1]
		equity = last.Equity
		unrealized = last.UnrealizedPnl
		realized = last.RealizedPnl
		openPositions = last.OpenPositions
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		components.RenderBalanceCard(equity, unrealized, realized),
		components.RenderModeCard(string(m.snapshot.Config.Mode), openPositions, len(m.snapshot.Config.Symbols)),
	)

	bottom := components.RenderActivityCard(m.messages)

	return lipgloss.JoinVertical(lipgloss.Left, top, bottom, fmt.Sprintf("last tick: %s", m.snapshot.FetchedAt.Format("15:04:05")))
}
