package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Print writes a human-readable summary of r to w.
func Print(w io.Writer, r Results) {
	money := func(usd, quote decimal.Decimal) string {
		return fmt.Sprintf("$%s / %s", usd.StringFixed(2), quote.StringFixed(8))
	}

	fmt.Fprintf(w, "\nResults for %s since %s\n\n", r.Symbol, r.StartDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Total bought:              %s (%s units)\n", money(r.BuyTotalUSD, r.BuyTotalQuote), r.BuyTotalQty.StringFixed(2))
	fmt.Fprintf(w, "Bought, realized:          %s (%s units)\n", money(r.BuyRealizedUSD, r.BuyRealizedQuote), r.BuyRealizedQty.StringFixed(2))
	fmt.Fprintf(w, "Sold, realized:            %s (%s units)\n", money(r.SellRealizedUSD, r.SellRealizedQuote), r.SellRealizedQty.StringFixed(2))
	fmt.Fprintf(w, "P/L without open:          %s (%s%%)\n", money(r.DirtyPLUSD, r.DirtyPLQuote), r.DirtyPLPercent.StringFixed(2))
	fmt.Fprintf(w, "Open inventory at bid:     %s (%s units)\n", money(r.LiquidationUSD, r.LiquidationQuote), r.LiquidationQty.StringFixed(2))
	fmt.Fprintf(w, "P/L with open liquidated:  %s (%s%%)\n", money(r.PLUSD, r.PLQuote), r.PLPercent.StringFixed(2))
	fmt.Fprintf(w, "Peak on hold:              %s (%s units) at tick %d\n", money(r.OnHoldUSD, r.OnHoldQuote), r.OnHoldQty.StringFixed(2), r.OnHoldTick)
	fmt.Fprintf(w, "Buys %d, sells %d, success %d, stuck %d\n", r.CountBuy, r.CountSell, r.CountSuccess, r.CountUnsuccessful)
	fmt.Fprintf(w, "XIRR:                      %s%%\n", r.XIRR.StringFixed(4))
	if r.MaxSellPercent != nil && r.MaxSellTick != nil {
		fmt.Fprintf(w, "Max sell step:             %s%% at tick %d\n", r.MaxSellPercent.StringFixed(2), *r.MaxSellTick)
	}
}
