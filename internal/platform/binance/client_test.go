package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Equal(t, "SOLUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","bidPrice":"101.25000000","bidQty":"12.5","askPrice":"101.26000000","askQty":"3.1"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	bt, err := c.BookTicker(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.True(t, bt.BidPrice.Equal(decimal.RequireFromString("101.25")))
	assert.True(t, bt.AskQty.Equal(decimal.RequireFromString("3.1")))

	tick := bt.ToTick(4, time.Unix(0, 0))
	assert.Equal(t, int64(4), tick.Number)
	assert.True(t, tick.AskPrice().Equal(decimal.RequireFromString("101.26")))
}

func TestNewOrderSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		q := r.URL.Query()
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "FOK", q.Get("timeInForce"))
		assert.Equal(t, "0.5", q.Get("quantity"))
		assert.Equal(t, "15000", q.Get("recvWindow"))
		assert.NotEmpty(t, q.Get("timestamp"))
		assert.Len(t, q.Get("signature"), 64)
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","orderId":7,"status":"FILLED","executedQty":"0.5","cummulativeQuoteQty":"49.95"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	resp, err := c.NewOrder(context.Background(), OrderRequest{
		Symbol:   "SOLUSDT",
		Side:     domain.SideBuy,
		Quantity: decimal.RequireFromString("0.5"),
		Price:    decimal.RequireFromString("100"),
	})
	require.NoError(t, err)

	fill := resp.ToFill()
	assert.True(t, fill.Filled)
	assert.True(t, fill.Price.Equal(decimal.RequireFromString("99.9")))
	assert.True(t, fill.Quantity.Equal(decimal.RequireFromString("0.5")))
}

func TestNewOrderWithoutCredentials(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := c.NewOrder(context.Background(), OrderRequest{Symbol: "SOLUSDT", Side: domain.SideSell})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOrderResponseExpired(t *testing.T) {
	resp := OrderResponse{Status: "EXPIRED"}
	fill := resp.ToFill()
	assert.False(t, fill.Filled)
	assert.True(t, fill.Price.IsZero())
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status   int
		body     string
		sentinel error
		code     int
	}{
		{http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`, domain.ErrRateLimited, -1003},
		{http.StatusUnauthorized, `{"code":-2015,"msg":"Invalid API-key"}`, domain.ErrUnauthorized, -2015},
		{http.StatusBadRequest, `{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`, nil, -1013},
		{http.StatusTeapot, `banned`, domain.ErrRateLimited, 0},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		c := NewClient(ClientConfig{BaseURL: srv.URL})
		_, err := c.BookTicker(context.Background(), "SOLUSDT")
		srv.Close()

		require.Error(t, err, "status %d", tc.status)
		if tc.sentinel != nil {
			assert.ErrorIs(t, err, tc.sentinel)
		}
		var apiErr *APIError
		if tc.code != 0 {
			require.True(t, errors.As(err, &apiErr), "status %d", tc.status)
			assert.Equal(t, tc.code, apiErr.Code)
		}
	}
}

func TestKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.1","101","99","100.5","12.3",1700000059999,"0",10,"0","0","0"],
			[1700000060000,"100.5","102","100","101.5","10.0",1700000119999,"0",8,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	kl, err := c.Klines(context.Background(), "SOLUSDT", "1m", time.UnixMilli(1700000000000), 2)
	require.NoError(t, err)
	require.Len(t, kl, 2)
	assert.True(t, kl[0].Open.Equal(decimal.RequireFromString("100.1")))
	assert.Equal(t, int64(1700000060000), kl[1].OpenTime.UnixMilli())
}
