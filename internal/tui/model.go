// Package tui is the operator console: a read-only bubbletea dashboard
// polling a running daemon's internal/httpapi surface over HTTP. It never
// holds an exchange adapter or a Position Book of its own; every figure on
// screen is fetched from the daemon that owns the real state, so the
// console can crash, restart, or run on another host without touching a
// position.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/guyghost/perpcore/internal/tui/components"
)

// View is the active screen.
type View int

const (
	ViewDashboard View = iota
	ViewPositions
	ViewOrders
	ViewCandles
)

// Model is the bubbletea model for the console.
type Model struct {
	client *Client

	width      int
	height     int
	activeView View

	snapshot     Snapshot
	haveSnapshot bool
	candleSymbol string
	candles      []components.CandleRow
	lastUpdate   time.Time
	messages     []string

	lastError error
	errorTime time.Time
}

// NewModel builds the console model against a daemon reachable at baseURL.
func NewModel(baseURL string) Model {
	return Model{
		client:     NewClient(baseURL),
		activeView: ViewDashboard,
		messages:   make([]string, 0, 16),
		lastUpdate: time.Now(),
	}
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.client), tickCmd(), tea.EnterAltScreen)
}

type tickMsg time.Time
type snapshotMsg struct {
	snap Snapshot
	err  error
}
type candlesMsg struct {
	symbol  string
	candles []components.CandleRow
	err     error
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(c *Client) tea.Cmd {
	return func() tea.Msg {
		snap, err := c.Fetch(context.Background())
		return snapshotMsg{snap: snap, err: err}
	}
}

func fetchCandlesCmd(c *Client, symbol string) tea.Cmd {
	return func() tea.Msg {
		if symbol == "" {
			return candlesMsg{}
		}
		raw, err := c.Candles(context.Background(), symbol)
		if err != nil {
			return candlesMsg{symbol: symbol, err: err}
		}
		rows := make([]components.CandleRow, len(raw))
		for i, c := range raw {
			rows[i] = components.CandleRow{
				Timestamp: c.Timestamp,
				Open:      c.Open.StringFixed(2),
				High:      c.High.StringFixed(2),
				Low:       c.Low.StringFixed(2),
				Close:     c.Close.StringFixed(2),
			}
		}
		return candlesMsg{symbol: symbol, candles: rows}
	}
}

// addMessage appends a timestamped line to the activity log, capped at 100.
func (m *Model) addMessage(msg string) {
	m.messages = append(m.messages, time.Now().Format("15:04:05")+" "+msg)
	if len(m.messages) > 100 {
		m.messages = m.messages[1:]
	}
}

func (m *Model) setError(err error) {
	m.lastError = err
	m.errorTime = time.Now()
	if err != nil {
		m.addMessage("error: " + err.Error())
	}
}

func (m Model) symbolAt(i int) string {
	if i < 0 || i >= len(m.snapshot.Config.Symbols) {
		return ""
	}
	return m.snapshot.Config.Symbols[i].Coin
}

func (m Model) viewTitle() string {
	switch m.activeView {
	case ViewPositions:
		return "Positions"
	case ViewOrders:
		return "Orders"
	case ViewCandles:
		return fmt.Sprintf("Candles (%s)", m.candleSymbol)
	default:
		return "Dashboard"
	}
}
