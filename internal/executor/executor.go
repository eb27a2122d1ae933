package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

// OrderPlacer submits limit orders to the exchange. *binance.Client
// implements it.
type OrderPlacer interface {
	NewOrder(ctx context.Context, req binance.OrderRequest) (binance.OrderResponse, error)
}

// Gateway implements domain.FillGateway by placing fill-or-kill limit
// orders. Every request carries a fresh client order id so a retried
// request cannot execute twice.
type Gateway struct {
	placer      OrderPlacer
	symbol      string
	timeInForce string
	retryDelay  time.Duration
	logger      *slog.Logger

	limiter     domain.RateLimiter
	limitKey    string
	limitCount  int
	limitWindow time.Duration
}

var _ domain.FillGateway = (*Gateway)(nil)

// NewGateway creates a Gateway trading symbol through placer.
func NewGateway(placer OrderPlacer, symbol string, logger *slog.Logger) *Gateway {
	return &Gateway{
		placer:      placer,
		symbol:      symbol,
		timeInForce: "FOK",
		retryDelay:  500 * time.Millisecond,
		logger:      logger.With(slog.String("component", "executor"), slog.String("symbol", symbol)),
	}
}

// SetRetryDelay overrides the pause before retrying a rate-limited request.
func (g *Gateway) SetRetryDelay(d time.Duration) { g.retryDelay = d }

// SetRateLimit makes every order wait for a slot in a window shared under
// key, for example across traders using one API key.
func (g *Gateway) SetRateLimit(l domain.RateLimiter, key string, count int, window time.Duration) {
	g.limiter = l
	g.limitKey = key
	g.limitCount = count
	g.limitWindow = window
}

// Buy places a buy for quantity at price.
func (g *Gateway) Buy(ctx context.Context, quantity, price decimal.Decimal) (domain.FillResult, error) {
	return g.place(ctx, domain.SideBuy, quantity, price)
}

// Sell places a sell for quantity at price.
func (g *Gateway) Sell(ctx context.Context, quantity, price decimal.Decimal) (domain.FillResult, error) {
	return g.place(ctx, domain.SideSell, quantity, price)
}

func (g *Gateway) place(ctx context.Context, side domain.Side, quantity, price decimal.Decimal) (domain.FillResult, error) {
	req := binance.OrderRequest{
		Symbol:        g.symbol,
		Side:          side,
		TimeInForce:   g.timeInForce,
		Quantity:      quantity,
		Price:         price,
		ClientOrderID: newClientOrderID(),
	}
	log := g.logger.With(
		slog.String("client_order_id", req.ClientOrderID),
		slog.String("side", string(side)),
		slog.String("quantity", quantity.String()),
		slog.String("price", price.String()),
	)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, g.limitKey, g.limitCount, g.limitWindow); err != nil {
			return domain.FillResult{}, fmt.Errorf("executor: %s: %w", side, err)
		}
	}

	resp, err := g.placer.NewOrder(ctx, req)
	if errors.Is(err, domain.ErrRateLimited) {
		log.WarnContext(ctx, "order rate limited, retrying once", slog.Duration("delay", g.retryDelay))
		select {
		case <-ctx.Done():
			return domain.FillResult{}, ctx.Err()
		case <-time.After(g.retryDelay):
		}
		resp, err = g.placer.NewOrder(ctx, req)
	}
	if err != nil {
		log.ErrorContext(ctx, "order placement failed", slog.String("error", err.Error()))
		return domain.FillResult{}, fmt.Errorf("executor: %s: %w", side, err)
	}

	fill := resp.ToFill()
	if !fill.Filled {
		log.WarnContext(ctx, "order not filled",
			slog.Int64("order_id", resp.OrderID),
			slog.String("status", resp.Status),
		)
		return fill, nil
	}

	log.InfoContext(ctx, "order filled",
		slog.Int64("order_id", resp.OrderID),
		slog.String("executed_qty", fill.Quantity.String()),
		slog.String("avg_price", fill.Price.String()),
	)
	return fill, nil
}

// newClientOrderID returns an id within the exchange's 36-character limit.
func newClientOrderID() string {
	return "sb" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// String returns a description for logging.
func (g *Gateway) String() string {
	return fmt.Sprintf("Gateway{symbol=%s, tif=%s}", g.symbol, g.timeInForce)
}
