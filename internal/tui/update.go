package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{fetchCmd(m.client), tickCmd()}
		if m.activeView == ViewCandles && m.candleSymbol != "" {
			cmds = append(cmds, fetchCandlesCmd(m.client, m.candleSymbol))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.snapshot = msg.snap
		m.haveSnapshot = true
		if m.candleSymbol == "" {
			m.candleSymbol = m.symbolAt(0)
		}
		return m, nil

	case candlesMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		if msg.symbol == m.candleSymbol {
			m.candles = msg.candles
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "1":
		m.activeView = ViewDashboard
		return m, nil

	case "2":
		m.activeView = ViewPositions
		return m, nil

	case "3":
		m.activeView = ViewOrders
		return m, nil

	case "4":
		m.activeView = ViewCandles
		return m, fetchCandlesCmd(m.client, m.candleSymbol)

	case "n":
		m.nextSymbol()
		if m.activeView == ViewCandles {
			return m, fetchCandlesCmd(m.client, m.candleSymbol)
		}
		return m, nil

	case "c":
		m.lastError = nil
		return m, nil

	case "r":
		return m, fetchCmd(m.client)
	}

	return m, nil
}

// nextSymbol cycles the candle view to the next configured symbol.
func (m *Model) nextSymbol() {
	symbols := m.snapshot.Config.Symbols
	if len(symbols) == 0 {
		return
	}
	idx := 0
	for i, s := range symbols {
		if s.Coin == m.candleSymbol {
			idx = i
			break
		}
	}
	m.candleSymbol = symbols[(idx+1)%len(symbols)].Coin
	m.candles = nil
}
