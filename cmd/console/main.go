// Command console is the operator dashboard: a read-only terminal UI that
// polls a running daemon's HTTP surface and renders equity, open positions,
// recent orders, and candle history. It holds no exchange credentials and
// places no orders; point it at the daemon's listen address and watch.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/guyghost/perpcore/internal/tui"
)

var daemonAddr = flag.String("daemon", "http://localhost:8080", "Base URL of the daemon's HTTP surface")

func main() {
	flag.Parse()

	p := tea.NewProgram(tui.NewModel(*daemonAddr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}
