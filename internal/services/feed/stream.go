package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay = 5 * time.Second
	streamKeepAlive       = 20 * time.Second
)

// streamMessage is one push from the upstream price channel: a partial
// or full {symbol: price} update.
type streamMessage struct {
	Prices map[string]string `json:"prices"`
}

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// WSStream subscribes to a websocket price channel by symbol list and
// reconnects with a fixed delay for as long as the context lives.
type WSStream struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         *zap.Logger
}

// NewWSStream builds a stream source for the given websocket endpoint.
func NewWSStream(url string, logger *zap.Logger) *WSStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSStream{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		logger:         logger.With(zap.String("component", "price_stream")),
	}
}

// Run dials, subscribes and pumps messages until ctx is done. Every
// connection loss flips onState to false before the reconnect wait, so
// the aggregator arms its polling fallback in the gap.
func (s *WSStream) Run(ctx context.Context, symbols []string, onUpdate func(map[string]decimal.Decimal), onState func(connected bool)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn("failed to connect to price stream", zap.String("url", s.url), zap.Error(err))
			if s.waitForReconnect(ctx) {
				return ctx.Err()
			}
			continue
		}

		if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Args: symbols}); err != nil {
			s.logger.Warn("failed to subscribe to price stream", zap.Error(err))
			conn.Close()
			if s.waitForReconnect(ctx) {
				return ctx.Err()
			}
			continue
		}

		onState(true)
		pingStop := s.startPingLoop(ctx, conn)

		// unblock the read loop when ctx ends
		watchCtx, stopWatch := context.WithCancel(ctx)
		go func() {
			<-watchCtx.Done()
			conn.Close()
		}()

		err = s.readMessages(ctx, conn, onUpdate)
		pingStop()
		stopWatch()
		onState(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn("price stream read loop ended", zap.Error(err))
		}
		if s.waitForReconnect(ctx) {
			return ctx.Err()
		}
	}
}

func (s *WSStream) readMessages(ctx context.Context, conn *websocket.Conn, onUpdate func(map[string]decimal.Decimal)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("unparseable stream message", zap.Error(err))
			continue
		}
		if len(msg.Prices) == 0 {
			continue
		}

		update := make(map[string]decimal.Decimal, len(msg.Prices))
		for symbol, value := range msg.Prices {
			price, err := decimal.NewFromString(value)
			if err != nil {
				s.logger.Warn("unparseable stream price", zap.String("symbol", symbol), zap.String("value", value))
				continue
			}
			update[symbol] = price
		}
		if len(update) > 0 {
			onUpdate(update)
		}
	}
}

func (s *WSStream) startPingLoop(ctx context.Context, conn *websocket.Conn) func() {
	pingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()
	return cancel
}

// waitForReconnect sleeps for the reconnect delay. Returns true when
// the context was cancelled during the wait.
func (s *WSStream) waitForReconnect(ctx context.Context) bool {
	timer := time.NewTimer(s.reconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
