package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/guyghost/perpcore/internal/candle"
	"github.com/guyghost/perpcore/internal/config"
	"github.com/guyghost/perpcore/internal/position"
	"github.com/guyghost/perpcore/internal/store"
)

// Client is a read-only operator client over one daemon's internal/httpapi
// surface. It never trades; every call is a GET against the daemon running
// in another process.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against the daemon's HTTP address, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Snapshot is everything one poll tick fetches, bundled so the bubbletea
// update loop can apply it in a single message.
type Snapshot struct {
	Config    config.Config
	Positions []position.Position
	Orders    []store.OrderRecord
	Equity    []store.EquitySnapshot
	FetchedAt time.Time
}

// Fetch pulls /config, /positions, /orders and /equity and bundles the
// result. A failure on any single endpoint fails the whole snapshot; the
// caller is expected to retry on the next tick.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	snap.FetchedAt = time.Now()

	if err := c.getJSON(ctx, "/config", &snap.Config); err != nil {
		return snap, fmt.Errorf("fetch config: %w", err)
	}
	if err := c.getJSON(ctx, "/positions", &snap.Positions); err != nil {
		return snap, fmt.Errorf("fetch positions: %w", err)
	}
	if err := c.getJSON(ctx, "/orders?limit=100", &snap.Orders); err != nil {
		return snap, fmt.Errorf("fetch orders: %w", err)
	}
	if err := c.getJSON(ctx, "/equity?limit=200", &snap.Equity); err != nil {
		return snap, fmt.Errorf("fetch equity: %w", err)
	}
	return snap, nil
}

// Candles fetches recent candles for one symbol.
func (c *Client) Candles(ctx context.Context, symbol string) ([]candle.Candle, error) {
	var out []candle.Candle
	path := "/candles?symbol=" + url.QueryEscape(symbol) + "&limit=120"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
