package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tick is one price update from the upstream feed.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Feed is a WebSocket client tracking the last market price for one symbol.
// Market-priced fills consult it when the caller supplies no price; staleness
// past maxAge is treated as absence so a dead feed never prices a fill.
type Feed struct {
	url            string
	symbol         string
	conn           *websocket.Conn
	logger         *zap.Logger
	connected      bool
	connectedMu    sync.RWMutex
	lastMu         sync.RWMutex
	lastPrice      decimal.Decimal
	lastAt         time.Time
	maxAge         time.Duration
	done           chan struct{}
	closeOnce      sync.Once
	reconnectDelay time.Duration
}

// New creates a feed for one symbol. A zero maxAge disables staleness checks.
func New(url, symbol string, maxAge time.Duration, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		url:            url,
		symbol:         symbol,
		logger:         logger,
		maxAge:         maxAge,
		done:           make(chan struct{}),
		reconnectDelay: 5 * time.Second,
	}
}

// Connect establishes a WebSocket connection
func (f *Feed) Connect(ctx context.Context) error {
	f.logger.Info("Connecting to price feed", zap.String("url", f.url), zap.String("symbol", f.symbol))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to price feed: %w", err)
	}

	f.conn = conn
	f.setConnected(true)
	f.logger.Info("Connected to price feed")

	// Start read loop
	go f.readLoop()

	return nil
}

// Close closes the WebSocket connection and stops any pending reconnect.
// Safe to call more than once.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.setConnected(false)
		if f.conn != nil {
			err = f.conn.Close()
		}
	})
	return err
}

// IsConnected returns whether the feed is connected
func (f *Feed) IsConnected() bool {
	f.connectedMu.RLock()
	defer f.connectedMu.RUnlock()
	return f.connected
}

func (f *Feed) setConnected(connected bool) {
	f.connectedMu.Lock()
	defer f.connectedMu.Unlock()
	f.connected = connected
}

// LastPrice returns the most recent price for the feed's symbol, reporting
// absence when no tick has arrived or the last one is stale.
func (f *Feed) LastPrice() (decimal.Decimal, bool) {
	f.lastMu.RLock()
	defer f.lastMu.RUnlock()
	if f.lastAt.IsZero() {
		return decimal.Zero, false
	}
	if f.maxAge > 0 && time.Since(f.lastAt) > f.maxAge {
		return decimal.Zero, false
	}
	return f.lastPrice, true
}

// Record stores a tick directly, bypassing the socket. Used in tests and by
// replay tooling.
func (f *Feed) Record(tick Tick) {
	if tick.Symbol != "" && tick.Symbol != f.symbol {
		return
	}
	if tick.Price.Sign() <= 0 {
		return
	}
	f.lastMu.Lock()
	defer f.lastMu.Unlock()
	f.lastPrice = tick.Price
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now()
	}
	f.lastAt = tick.Timestamp
}

func (f *Feed) readLoop() {
	defer func() {
		f.setConnected(false)
		f.logger.Info("Price feed read loop exited")
	}()

	for {
		select {
		case <-f.done:
			return
		default:
			_, message, err := f.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					f.logger.Info("Price feed closed normally")
					return
				}
				f.logger.Error("Error reading price feed message", zap.Error(err))
				f.scheduleReconnect()
				return
			}

			f.logger.Debug("Received tick", zap.String("payload", string(message)))

			var tick Tick
			if err := json.Unmarshal(message, &tick); err != nil {
				f.logger.Error("Failed to unmarshal tick", zap.Error(err))
				continue
			}

			f.Record(tick)
		}
	}
}

func (f *Feed) scheduleReconnect() {
	f.logger.Info("Scheduling reconnection", zap.Duration("delay", f.reconnectDelay))

	time.AfterFunc(f.reconnectDelay, func() {
		select {
		case <-f.done:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := f.Connect(ctx); err != nil {
			f.logger.Error("Reconnection failed", zap.Error(err))
			f.scheduleReconnect()
		}
	})
}
