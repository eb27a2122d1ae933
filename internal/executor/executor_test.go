package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

type scriptedPlacer struct {
	responses []binance.OrderResponse
	errs      []error
	requests  []binance.OrderRequest
}

func (p *scriptedPlacer) NewOrder(_ context.Context, req binance.OrderRequest) (binance.OrderResponse, error) {
	i := len(p.requests)
	p.requests = append(p.requests, req)
	var resp binance.OrderResponse
	var err error
	if i < len(p.responses) {
		resp = p.responses[i]
	}
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return resp, err
}

func newTestGateway(p OrderPlacer) *Gateway {
	g := NewGateway(p, "SOLUSDT", slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.SetRetryDelay(time.Millisecond)
	return g
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGatewayFilled(t *testing.T) {
	p := &scriptedPlacer{responses: []binance.OrderResponse{{
		OrderID: 1, Status: "FILLED", ExecutedQty: dec("0.5"), CummulativeQuoteQty: dec("50.1"),
	}}}
	fill, err := newTestGateway(p).Buy(context.Background(), dec("0.5"), dec("100.3"))
	require.NoError(t, err)

	assert.True(t, fill.Filled)
	assert.True(t, fill.Price.Equal(dec("100.2")))
	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, domain.SideBuy, req.Side)
	assert.Equal(t, "FOK", req.TimeInForce)
	assert.Equal(t, "SOLUSDT", req.Symbol)
	assert.LessOrEqual(t, len(req.ClientOrderID), 36)
}

func TestGatewayExpired(t *testing.T) {
	p := &scriptedPlacer{responses: []binance.OrderResponse{{Status: "EXPIRED"}}}
	fill, err := newTestGateway(p).Sell(context.Background(), dec("1"), dec("10"))
	require.NoError(t, err)
	assert.False(t, fill.Filled)
}

func TestGatewayRetriesRateLimitOnce(t *testing.T) {
	p := &scriptedPlacer{
		errs:      []error{fmt.Errorf("wrapped: %w", domain.ErrRateLimited), nil},
		responses: []binance.OrderResponse{{}, {Status: "FILLED", ExecutedQty: dec("1"), CummulativeQuoteQty: dec("10")}},
	}
	fill, err := newTestGateway(p).Sell(context.Background(), dec("1"), dec("10"))
	require.NoError(t, err)
	assert.True(t, fill.Filled)
	require.Len(t, p.requests, 2)
	assert.Equal(t, p.requests[0].ClientOrderID, p.requests[1].ClientOrderID)
}

func TestGatewayError(t *testing.T) {
	p := &scriptedPlacer{errs: []error{errors.New("connection reset")}}
	_, err := newTestGateway(p).Buy(context.Background(), dec("1"), dec("10"))
	assert.ErrorContains(t, err, "connection reset")
	assert.Len(t, p.requests, 1)
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	l.calls++
	return l.err
}

func TestGatewayRateLimit(t *testing.T) {
	p := &scriptedPlacer{responses: []binance.OrderResponse{{Status: "FILLED", ExecutedQty: dec("1"), CummulativeQuoteQty: dec("1")}}}
	l := &countingLimiter{}
	g := newTestGateway(p)
	g.SetRateLimit(l, "orders:key", 10, time.Second)

	_, err := g.Buy(context.Background(), dec("1"), dec("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.calls)

	l.err = context.DeadlineExceeded
	_, err = g.Buy(context.Background(), dec("1"), dec("1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, p.requests, 1)
}
