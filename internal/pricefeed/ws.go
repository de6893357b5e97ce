// Package pricefeed streams external price readings into the engine: a
// websocket client receives per-feed updates and a feeder keeps the latest
// reading per feed in the price cache for the resolver to consume.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// ReadingHandler is called for every price update received on the feed.
type ReadingHandler func(domain.PriceReading)

// wsCommand is the JSON subscription command sent to the feed endpoint.
type wsCommand struct {
	Type  string   `json:"type"`
	Feeds []string `json:"feeds"`
}

// priceMessage is the JSON shape of one update from the feed endpoint.
type priceMessage struct {
	Type      string `json:"type"`
	FeedID    string `json:"feed_id"`
	Price     int64  `json:"price"`
	Expo      int32  `json:"expo"`
	Timestamp int64  `json:"ts"` // Unix seconds
}

// WSClient is a websocket client for a price feed endpoint. It manages the
// connection lifecycle and feed subscriptions, dispatching every reading to
// registered handlers, and reconnects with exponential backoff on disconnect.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Feed subscriptions to restore on reconnect.
	feeds []string

	handlers  []ReadingHandler
	handlerMu sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new websocket client for the given feed endpoint URL.
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and ping
// loops. Previously subscribed feeds are re-subscribed.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("pricefeed: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pricefeed: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.feeds) > 0 {
		if err := w.sendCommand(wsCommand{Type: "subscribe", Feeds: w.feeds}); err != nil {
			return fmt.Errorf("pricefeed: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to updates for the given feed IDs.
func (w *WSClient) Subscribe(ctx context.Context, feedIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("pricefeed: not connected")
	}

	if err := w.sendCommand(wsCommand{Type: "subscribe", Feeds: feedIDs}); err != nil {
		return fmt.Errorf("pricefeed: subscribe: %w", err)
	}

	// Track subscriptions for reconnection.
	seen := make(map[string]struct{}, len(w.feeds))
	for _, f := range w.feeds {
		seen[f] = struct{}{}
	}
	for _, f := range feedIDs {
		if _, ok := seen[f]; !ok {
			w.feeds = append(w.feeds, f)
		}
	}
	return nil
}

// OnReading registers a handler called for every price update received.
func (w *WSClient) OnReading(handler ReadingHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts down the websocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendCommand sends a JSON command to the websocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the websocket and dispatches them
// to the registered handlers. On disconnect it hands off to reconnect, which
// restarts the loop through Connect.
func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the websocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw websocket message and dispatches price updates.
// Unparseable or non-price messages are silently dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var msg priceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Type != "price_update" || msg.FeedID == "" {
		return
	}

	reading := domain.PriceReading{
		FeedID:    msg.FeedID,
		Price:     msg.Price,
		Expo:      msg.Expo,
		Timestamp: time.Unix(msg.Timestamp, 0).UTC(),
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(reading)
	}
}

// reconnect attempts to re-establish the websocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
