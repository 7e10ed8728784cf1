package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/logger"
)

// OrderUpdateEvent is a single order-status change delivered by the venue's
// order-update channel.
type OrderUpdateEvent struct {
	Symbol       string
	VenueOrderID string
	Status       string
	Timestamp    time.Time
}

// FillEvent is a single execution delivered by the venue's user-fills channel.
type FillEvent struct {
	Symbol       string
	VenueOrderID string
	IsBuy        bool
	Price        decimal.Decimal
	Size         decimal.Decimal
	Timestamp    time.Time
}

// EventStream subscribes to order-update and fill events over a persistent
// WebSocket connection, dispatching the orderUpdates and userFills channels
// the reconciler and position book consume.
type EventStream struct {
	url string
	log *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	onOrderUpdate func(OrderUpdateEvent)
	onFill        func(FillEvent)
}

// NewEventStream constructs an EventStream for the given WebSocket URL.
func NewEventStream(url string) *EventStream {
	return &EventStream{
		url: url,
		log: logger.Default().Component("exchange-stream"),
	}
}

// OnOrderUpdate registers the callback invoked once for each order update
// in a delivered batch.
// Must be called before Connect.
func (es *EventStream) OnOrderUpdate(fn func(OrderUpdateEvent)) { es.onOrderUpdate = fn }

// OnFill registers the callback invoked for each fill event. Must be called
// before Connect.
func (es *EventStream) OnFill(fn func(FillEvent)) { es.onFill = fn }

// Connect dials the WebSocket and starts the read loop. Subscriptions for
// order updates and user fills are sent immediately after the dial.
func (es *EventStream) Connect(ctx context.Context, wallet string) error {
	es.mu.Lock()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, es.url, nil)
	if err != nil {
		es.mu.Unlock()
		return fmt.Errorf("exchange: dial event stream: %w", err)
	}
	es.conn = conn
	es.done = make(chan struct{})
	done := es.done
	es.mu.Unlock()

	if err := es.subscribe("orderUpdates", wallet); err != nil {
		return err
	}
	if err := es.subscribe("userFills", wallet); err != nil {
		return err
	}

	go es.readLoop(done)
	es.log.Debug("event stream connected", "url", es.url)
	return nil
}

func (es *EventStream) subscribe(channel, wallet string) error {
	msg := map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": channel,
			"user": wallet,
		},
	}
	return es.send(msg)
}

func (es *EventStream) send(msg any) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.conn == nil {
		return fmt.Errorf("exchange: event stream not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return es.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the connection.
func (es *EventStream) Close() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.conn == nil {
		return nil
	}
	if es.done != nil {
		select {
		case <-es.done:
		default:
			close(es.done)
		}
		es.done = nil
	}
	err := es.conn.Close()
	es.conn = nil
	return err
}

func (es *EventStream) readLoop(done <-chan struct{}) {
	defer func() {
		es.mu.Lock()
		if es.conn != nil {
			es.conn.Close()
			es.conn = nil
		}
		es.mu.Unlock()
	}()

	for {
		select {
		case <-done:
			return
		default:
			es.mu.Lock()
			conn := es.conn
			es.mu.Unlock()
			if conn == nil {
				return
			}
			_, raw, err := conn.ReadMessage()
			if err != nil {
				es.log.Warn("event stream read error, backing off", "error", err.Error())
				time.Sleep(5 * time.Second)
				continue
			}
			es.dispatch(raw)
		}
	}
}

// dispatch decodes one message and invokes its channel's callback once for
// each event in it.
// Callback panics are recovered and logged rather than unsubscribing.
func (es *EventStream) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			es.log.Error("event stream callback panicked", "recovered", fmt.Sprint(r))
		}
	}()

	var env struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Channel {
	case "orderUpdates":
		es.dispatchOrderUpdates(env.Data)
	case "userFills":
		es.dispatchFills(env.Data)
	}
}

func (es *EventStream) dispatchOrderUpdates(data json.RawMessage) {
	if es.onOrderUpdate == nil {
		return
	}
	var updates []struct {
		Order struct {
			Coin string `json:"coin"`
			Oid  int64  `json:"oid"`
		} `json:"order"`
		Status   string `json:"status"`
		StatusTs int64  `json:"statusTimestamp"`
	}
	if err := json.Unmarshal(data, &updates); err != nil {
		return
	}
	for _, u := range updates {
		es.onOrderUpdate(OrderUpdateEvent{
			Symbol:       u.Order.Coin + "-USD",
			VenueOrderID: fmt.Sprintf("%d", u.Order.Oid),
			Status:       u.Status,
			Timestamp:    time.UnixMilli(u.StatusTs),
		})
	}
}

func (es *EventStream) dispatchFills(data json.RawMessage) {
	if es.onFill == nil {
		return
	}
	var payload struct {
		Fills []struct {
			Coin string `json:"coin"`
			Oid  int64  `json:"oid"`
			Side string `json:"side"`
			Px   string `json:"px"`
			Sz   string `json:"sz"`
			Time int64  `json:"time"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	for _, f := range payload.Fills {
		price, _ := decimal.NewFromString(f.Px)
		size, _ := decimal.NewFromString(f.Sz)
		es.onFill(FillEvent{
			Symbol:       f.Coin + "-USD",
			VenueOrderID: fmt.Sprintf("%d", f.Oid),
			IsBuy:        f.Side == "B" || f.Side == "buy",
			Price:        price,
			Size:         size,
			Timestamp:    time.UnixMilli(f.Time),
		})
	}
}
