package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

const (
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// priceMessage is a single streaming price tick.
type priceMessage struct {
	Mint  string  `json:"mint"`
	Price float64 `json:"price"`
	TS    int64   `json:"ts"` // Unix milliseconds
}

// subscribeCommand asks the stream to push prices for a set of mints.
type subscribeCommand struct {
	Type  string   `json:"type"`
	Mints []string `json:"mints"`
}

// PriceFeed maintains a WebSocket connection to a streaming price source and
// writes every tick into the price cache, keeping monitor passes off the REST
// price endpoint for subscribed tokens.
type PriceFeed struct {
	wsURL  string
	prices domain.PriceCache
	logger *slog.Logger

	mu    sync.Mutex
	mints map[string]struct{}
	conn  *websocket.Conn
}

// NewPriceFeed creates a PriceFeed writing into prices.
func NewPriceFeed(wsURL string, prices domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		prices: prices,
		logger: logger.With(slog.String("component", "price_feed")),
		mints:  make(map[string]struct{}),
	}
}

// Subscribe adds mints to the subscription set. The set survives reconnects;
// if currently connected, the subscription is sent immediately.
func (pf *PriceFeed) Subscribe(mints ...string) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	added := make([]string, 0, len(mints))
	for _, m := range mints {
		if _, ok := pf.mints[m]; !ok {
			pf.mints[m] = struct{}{}
			added = append(added, m)
		}
	}
	if len(added) == 0 || pf.conn == nil {
		return nil
	}
	return pf.sendSubscribe(pf.conn, added)
}

// Run connects and consumes ticks until the context is cancelled,
// reconnecting with exponential backoff on failure.
func (pf *PriceFeed) Run(ctx context.Context) error {
	pf.logger.Info("price feed started", slog.String("url", pf.wsURL))
	defer pf.logger.Info("price feed stopped")

	delay := reconnectDelay
	for {
		start := time.Now()
		if err := pf.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A connection that lived a while resets the backoff.
			if time.Since(start) > maxReconnectDelay {
				delay = reconnectDelay
			}
			pf.logger.WarnContext(ctx, "price feed disconnected",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// connectAndRead runs one connection lifetime: dial, resubscribe, then read
// ticks until the connection drops.
func (pf *PriceFeed) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, pf.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", pf.wsURL, err)
	}
	defer conn.Close()

	// The resubscribe frame goes out under the same mutex Subscribe writes
	// under; the connection must never see two writers at once.
	pf.mu.Lock()
	pf.conn = conn
	var subErr error
	if len(pf.mints) > 0 {
		current := make([]string, 0, len(pf.mints))
		for m := range pf.mints {
			current = append(current, m)
		}
		subErr = pf.sendSubscribe(conn, current)
	}
	pf.mu.Unlock()
	defer func() {
		pf.mu.Lock()
		pf.conn = nil
		pf.mu.Unlock()
	}()
	if subErr != nil {
		return fmt.Errorf("feed: resubscribe: %w", subErr)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Ping loop tied to this connection.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				pf.mu.Lock()
				c := pf.conn
				pf.mu.Unlock()
				if c == nil {
					return
				}
				_ = c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var tick priceMessage
		if err := json.Unmarshal(payload, &tick); err != nil || tick.Mint == "" {
			continue
		}

		ts := time.Now().UTC()
		if tick.TS > 0 {
			ts = time.UnixMilli(tick.TS).UTC()
		}
		if err := pf.prices.SetPrice(ctx, tick.Mint, tick.Price, ts); err != nil {
			pf.logger.WarnContext(ctx, "price cache write failed",
				slog.String("mint", tick.Mint),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (pf *PriceFeed) sendSubscribe(conn *websocket.Conn, mints []string) error {
	cmd := subscribeCommand{Type: "subscribe", Mints: mints}
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}
