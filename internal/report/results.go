// Package report derives session results from engine run state and renders
// them for operators and archives.
package report

import (
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/strategy"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Params carries the inputs that are not part of run state.
type Params struct {
	Symbol     string
	FeePercent decimal.Decimal
	// USDRate converts quote-currency figures into USD.
	USDRate decimal.Decimal
	Now     time.Time
}

// Results summarises a session. Quote figures are in the instrument's quote
// currency; USD figures are quote figures times Params.USDRate.
type Results struct {
	Symbol      string    `json:"symbol"`
	StartDate   time.Time `json:"start_date"`
	GeneratedAt time.Time `json:"generated_at"`

	BuyTotalUSD   decimal.Decimal `json:"buy_total_amount_usd"`
	BuyTotalQuote decimal.Decimal `json:"buy_total_amount_quote"`
	BuyTotalQty   decimal.Decimal `json:"buy_total_qty"`

	BuyRealizedUSD   decimal.Decimal `json:"buy_without_current_opened_amount_usd"`
	BuyRealizedQuote decimal.Decimal `json:"buy_without_current_opened_amount_quote"`
	BuyRealizedQty   decimal.Decimal `json:"buy_without_current_opened_qty"`

	SellRealizedUSD   decimal.Decimal `json:"sell_without_current_opened_amount_usd"`
	SellRealizedQuote decimal.Decimal `json:"sell_without_current_opened_amount_quote"`
	SellRealizedQty   decimal.Decimal `json:"sell_without_current_opened_qty"`

	DirtyPLUSD     decimal.Decimal `json:"dirty_pl_amount_usd"`
	DirtyPLQuote   decimal.Decimal `json:"dirty_pl_amount_quote"`
	DirtyPLPercent decimal.Decimal `json:"dirty_pl_percent"`

	LiquidationUSD   decimal.Decimal `json:"liquidation_amount_usd"`
	LiquidationQuote decimal.Decimal `json:"liquidation_amount_quote"`
	LiquidationQty   decimal.Decimal `json:"liquidation_qty"`

	PLUSD     decimal.Decimal `json:"pl_amount_usd"`
	PLQuote   decimal.Decimal `json:"pl_amount_quote"`
	PLPercent decimal.Decimal `json:"pl_percent"`

	OnHoldUSD   decimal.Decimal `json:"onhold_amount_usd"`
	OnHoldQuote decimal.Decimal `json:"onhold_amount_quote"`
	OnHoldQty   decimal.Decimal `json:"onhold_qty"`
	OnHoldTick  int64           `json:"onhold_tick_number"`

	CountBuy          int `json:"count_buy_transactions"`
	CountSell         int `json:"count_sell_transactions"`
	CountUnsuccessful int `json:"count_unsuccessful_deals"`
	CountSuccess      int `json:"count_success_deals"`

	MaxSellPercent *decimal.Decimal `json:"max_sell_percent,omitempty"`
	MaxSellTick    *int64           `json:"max_sell_tick,omitempty"`

	XIRR decimal.Decimal `json:"xirr"`
}

// Compute derives Results from st. Open positions are valued at the last
// tick's bid.
func Compute(st strategy.RunState, p Params) Results {
	fee := func(v decimal.Decimal) decimal.Decimal { return v.Mul(p.FeePercent).Div(hundred) }
	usd := func(v decimal.Decimal) decimal.Decimal { return v.Mul(p.USDRate) }

	var buyRealized, buyRealizedQty, sellRealized, buyOpen, openQty decimal.Decimal
	for _, pos := range st.Closed {
		buyRealized = buyRealized.Add(pos.Cost())
		buyRealizedQty = buyRealizedQty.Add(pos.Amount)
		sellRealized = sellRealized.Add(pos.Proceeds())
	}
	for _, pos := range st.Open {
		buyOpen = buyOpen.Add(pos.Cost())
		openQty = openQty.Add(pos.Amount)
	}

	var bid decimal.Decimal
	if last, ok := st.LastTick(); ok {
		bid = last.BidPrice()
	}
	liquidation := openQty.Mul(bid)

	buyTotal := buyRealized.Add(buyOpen)
	buyTotalFee := fee(buyTotal)
	buyRealizedFee := fee(buyRealized)
	sellRealizedFee := fee(sellRealized)
	liquidationFee := fee(liquidation)

	dirtyPL := sellRealized.Sub(buyRealized).Sub(sellRealizedFee).Sub(buyRealizedFee)
	pl := sellRealized.Add(liquidation).Sub(buyTotal).Sub(sellRealizedFee).Sub(liquidationFee).Sub(buyTotalFee)

	var onHold domain.OnHold
	if st.OnHold != nil {
		onHold = *st.OnHold
	}
	percent := func(v decimal.Decimal) decimal.Decimal {
		if onHold.BuyAmount.IsZero() {
			return decimal.Zero
		}
		return v.Div(onHold.BuyAmount).Mul(hundred)
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	r := Results{
		Symbol:      p.Symbol,
		StartDate:   st.StartedAt,
		GeneratedAt: now,

		BuyTotalUSD:   usd(buyTotal.Add(buyTotalFee)),
		BuyTotalQuote: buyTotal.Add(buyTotalFee),
		BuyTotalQty:   buyRealizedQty.Add(openQty),

		BuyRealizedUSD:   usd(buyRealized.Add(buyRealizedFee)),
		BuyRealizedQuote: buyRealized.Add(buyRealizedFee),
		BuyRealizedQty:   buyRealizedQty,

		SellRealizedUSD:   usd(sellRealized.Sub(sellRealizedFee)),
		SellRealizedQuote: sellRealized.Sub(sellRealizedFee),
		SellRealizedQty:   buyRealizedQty,

		DirtyPLUSD:     usd(dirtyPL),
		DirtyPLQuote:   dirtyPL,
		DirtyPLPercent: percent(dirtyPL),

		LiquidationUSD:   usd(liquidation.Sub(liquidationFee)),
		LiquidationQuote: liquidation.Sub(liquidationFee),
		LiquidationQty:   openQty,

		PLUSD:     usd(pl),
		PLQuote:   pl,
		PLPercent: percent(pl),

		OnHoldUSD:   usd(onHold.BuyAmount),
		OnHoldQuote: onHold.BuyAmount,
		OnHoldQty:   onHold.Quantity,
		OnHoldTick:  onHold.TickNumber,

		CountBuy:          len(st.Closed) + len(st.Open),
		CountSell:         len(st.Closed),
		CountUnsuccessful: len(st.Open),
		CountSuccess:      len(st.Closed),
	}

	if st.HasLadder {
		peak, tick := st.LadderPeakPercent, st.LadderPeakTick
		r.MaxSellPercent = &peak
		r.MaxSellTick = &tick
	}

	all := make([]domain.Position, 0, len(st.Open)+len(st.Closed))
	all = append(all, st.Closed...)
	all = append(all, st.Open...)
	r.XIRR = XIRR(all, bid, now)

	return r
}
