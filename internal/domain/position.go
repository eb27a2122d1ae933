package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one unit of purchased inventory. It is opened on a buy fill and
// closed exactly once on a sell fill.
type Position struct {
	ID        string
	Amount    decimal.Decimal
	OpenRate  decimal.Decimal
	OpenTick  int64
	OpenedAt  time.Time
	CloseRate decimal.Decimal
	CloseTick int64
	ClosedAt  *time.Time
}

// IsClosed reports whether the position has been sold.
func (p Position) IsClosed() bool {
	return p.ClosedAt != nil
}

// Cost is the quote amount paid for the position.
func (p Position) Cost() decimal.Decimal {
	return p.Amount.Mul(p.OpenRate)
}

// Proceeds is the quote amount received on close; zero while open.
func (p Position) Proceeds() decimal.Decimal {
	if !p.IsClosed() {
		return decimal.Zero
	}
	return p.Amount.Mul(p.CloseRate)
}

// OnHold captures open-inventory exposure at one tick.
type OnHold struct {
	Quantity   decimal.Decimal
	BuyAmount  decimal.Decimal
	TickNumber int64
	TickRate   decimal.Decimal
}
