package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill request.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// FillResult is the outcome of a buy or sell request. Quantity and Price are
// what the venue actually executed, which may differ from the request.
type FillResult struct {
	Filled   bool
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// FillGateway executes limit requests. An error or an unfilled result both
// mean no inventory changed hands.
type FillGateway interface {
	Buy(ctx context.Context, quantity, price decimal.Decimal) (FillResult, error)
	Sell(ctx context.Context, quantity, price decimal.Decimal) (FillResult, error)
}
