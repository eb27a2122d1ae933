package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// DefaultStreamURL is the production market-data stream root.
	DefaultStreamURL = "wss://stream.binance.com:9443"
	// TestnetStreamURL is the spot testnet stream root.
	TestnetStreamURL = "wss://stream.testnet.binance.vision"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	// The server pings every few minutes and book tickers arrive far more
	// often, so silence beyond this means the connection is dead.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookTickerHandler is called for every book-ticker update.
type BookTickerHandler func(BookTicker)

// StreamClient subscribes to the <symbol>@bookTicker stream and dispatches
// updates to registered handlers. It reconnects with exponential backoff
// until Close is called.
type StreamClient struct {
	baseURL string
	symbol  string
	conn    *websocket.Conn
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool

	handlers  []BookTickerHandler
	handlerMu sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewStreamClient creates a stream client for symbol.
func NewStreamClient(baseURL, symbol string, logger *slog.Logger) *StreamClient {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &StreamClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		symbol:  symbol,
		logger:  logger.With(slog.String("component", "binance_ws"), slog.String("symbol", symbol)),
		done:    make(chan struct{}),
	}
}

// StreamURL returns the raw-stream endpoint for the client's symbol.
func (s *StreamClient) StreamURL() string {
	return fmt.Sprintf("%s/ws/%s@bookTicker", s.baseURL, strings.ToLower(s.symbol))
}

// OnBookTicker registers a handler for book-ticker updates.
func (s *StreamClient) OnBookTicker(h BookTickerHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Connect dials the stream and starts the read and ping loops.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	s.conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	go s.readLoop(conn)
	go s.pingLoop(conn)

	s.logger.Info("stream connected", slog.String("url", s.StreamURL()))
	return nil
}

// Close shuts down the connection and stops reconnecting.
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

// readLoop reads messages from conn until it fails, then hands off to
// reconnect.
func (s *StreamClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("stream read failed", slog.String("error", err.Error()))
			s.reconnect()
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleMessage(message)
	}
}

// pingLoop sends periodic pings on conn until it is replaced or closed.
func (s *StreamClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *StreamClient) handleMessage(raw []byte) {
	var ev BookTickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Symbol == "" {
		return
	}
	bt := ev.ToBookTicker()

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(bt)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (s *StreamClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		s.logger.Warn("stream reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
