package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one numbered price observation. A zero price field means the source
// did not provide it; a zero quantity means the available depth is unknown.
type Tick struct {
	Number int64
	Time   time.Time // zero when the source carries no timestamp
	Price  decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	BidQty decimal.Decimal
	AskQty decimal.Decimal
}

var two = decimal.NewFromInt(2)

// AskPrice returns the ask, falling back to the single price.
func (t Tick) AskPrice() decimal.Decimal {
	if !t.Ask.IsZero() {
		return t.Ask
	}
	return t.Price
}

// BidPrice returns the bid, falling back to the single price.
func (t Tick) BidPrice() decimal.Decimal {
	if !t.Bid.IsZero() {
		return t.Bid
	}
	return t.Price
}

// AvgPrice returns the single price when present, otherwise the bid/ask mid.
func (t Tick) AvgPrice() decimal.Decimal {
	if !t.Price.IsZero() {
		return t.Price
	}
	switch {
	case !t.Bid.IsZero() && !t.Ask.IsZero():
		return t.Bid.Add(t.Ask).Div(two)
	case !t.Bid.IsZero():
		return t.Bid
	default:
		return t.Ask
	}
}

// TickSource yields ticks in order. Next returns ErrEndOfStream once the
// source is exhausted; any other error is a transient fetch failure and the
// caller may call Next again.
type TickSource interface {
	Next(ctx context.Context) (Tick, error)
}
