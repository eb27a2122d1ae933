package strategy

import (
	"context"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
)

// SellRule decides which open positions to close on a tick. Implementations
// walk the ledger's open positions cheapest-first.
type SellRule interface {
	Name() string
	AttemptSell(ctx context.Context, ledger *Ledger, tick domain.Tick) bool
}

// Config holds the tunables for one trading session.
type Config struct {
	Symbol  string
	Enabled bool
	// Type selects the sell rule: "basic" or "floating".
	Type string

	// Step is the minimum price move, in percent, that triggers a buy.
	Step decimal.Decimal
	// SellMargin is the fixed sell multiplier over the open rate (e.g. 1.05).
	SellMargin decimal.Decimal
	// FloatStepsPath points at the sell-percent ladder CSV for "floating".
	FloatStepsPath string

	InitBuyCount      int
	Notional          decimal.Decimal
	GlobalStopLoss    decimal.Decimal
	TickLimit         int64
	HoldPositionLimit int

	MultipleSellOnTick bool
	BuyPriceDiscount   decimal.Decimal
	SellPriceDiscount  decimal.Decimal
	PriceDigits        int32
	AmountDigits       int32

	BuyEveryNTicks  int64
	AnchorOnLastBuy bool
	WarmupTicks     int
}

// DefaultConfig mirrors the defaults a fresh session starts from.
func DefaultConfig() Config {
	return Config{
		Symbol:            "SOLUSDT",
		Enabled:           true,
		Type:              TypeBasic,
		Step:              decimal.RequireFromString("0.02"),
		SellMargin:        decimal.RequireFromString("1.05"),
		InitBuyCount:      3,
		Notional:          decimal.NewFromInt(1),
		TickLimit:         100500,
		BuyPriceDiscount:  decimal.NewFromInt(1),
		SellPriceDiscount: decimal.NewFromInt(1),
		PriceDigits:       2,
		AmountDigits:      2,
	}
}

// quantity converts a quote-currency notional into a base quantity at price,
// rounded half-to-even to digits places.
func quantity(notional, price decimal.Decimal, digits int32) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return notional.Div(price).RoundBank(digits)
}
