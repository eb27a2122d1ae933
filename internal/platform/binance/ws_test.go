package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamClientDispatchesBookTicker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/solusdt@bookTicker", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"u":400900217,"s":"SOLUSDT","b":"25.35","B":"31.21","a":"25.36","A":"40.66"}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewStreamClient("ws"+strings.TrimPrefix(srv.URL, "http"), "SOLUSDT", logger)

	got := make(chan BookTicker, 1)
	c.OnBookTicker(func(bt BookTicker) { got <- bt })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case bt := <-got:
		assert.Equal(t, "SOLUSDT", bt.Symbol)
		assert.True(t, bt.BidPrice.Equal(decimal.RequireFromString("25.35")))
		assert.True(t, bt.AskQty.Equal(decimal.RequireFromString("40.66")))
	case <-time.After(5 * time.Second):
		t.Fatal("no book ticker received")
	}
}

func TestStreamClientClosedRefusesConnect(t *testing.T) {
	c := NewStreamClient("ws://127.0.0.1:1", "SOLUSDT", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.Close())
	assert.Error(t, c.Connect(context.Background()))
}
