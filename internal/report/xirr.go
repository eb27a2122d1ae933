package report

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
)

var xirrCap = decimal.NewFromInt(9999)

type cashFlow struct {
	at     time.Time
	amount float64
}

// XIRR returns the annualised internal rate of return, in percent, of the
// positions' cash flows. Open inventory is treated as sold at actualRate at
// now. The result is capped at 9999 and rounded to four places; it is zero
// when no rate can be found.
func XIRR(positions []domain.Position, actualRate decimal.Decimal, now time.Time) decimal.Decimal {
	if len(positions) == 0 {
		return decimal.Zero
	}

	var flows []cashFlow
	var openQty decimal.Decimal
	for _, p := range positions {
		flows = append(flows, cashFlow{at: p.OpenedAt, amount: -p.Cost().InexactFloat64()})
		if p.IsClosed() {
			flows = append(flows, cashFlow{at: *p.ClosedAt, amount: p.Proceeds().InexactFloat64()})
		} else {
			openQty = openQty.Add(p.Amount)
		}
	}
	if openQty.IsPositive() {
		flows = append(flows, cashFlow{at: now, amount: openQty.Mul(actualRate).InexactFloat64()})
	}
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].at.Before(flows[j].at) })

	rate, ok := solveXIRR(flows)
	if !ok {
		return decimal.Zero
	}
	v := decimal.NewFromFloat(rate * 100)
	if v.GreaterThan(xirrCap) {
		v = xirrCap
	}
	return v.RoundBank(4)
}

func solveXIRR(flows []cashFlow) (float64, bool) {
	var hasPos, hasNeg bool
	for _, f := range flows {
		hasPos = hasPos || f.amount > 0
		hasNeg = hasNeg || f.amount < 0
	}
	if !hasPos || !hasNeg {
		return 0, false
	}

	t0 := flows[0].at
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.at.Sub(t0).Hours() / 24 / 365
	}

	npv := func(r float64) float64 {
		var s float64
		for i, f := range flows {
			s += f.amount / math.Pow(1+r, years[i])
		}
		return s
	}
	dnpv := func(r float64) float64 {
		var s float64
		for i, f := range flows {
			s -= years[i] * f.amount / math.Pow(1+r, years[i]+1)
		}
		return s
	}

	const tol = 1e-10
	r := 0.1
	for i := 0; i < 100; i++ {
		fv, dv := npv(r), dnpv(r)
		if dv == 0 || math.IsNaN(fv) || math.IsInf(fv, 0) {
			break
		}
		next := r - fv/dv
		if next <= -1 || math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if math.Abs(next-r) < tol {
			return next, true
		}
		r = next
	}

	// Newton failed to settle; fall back to bisection over a widening bracket.
	lo, hi := -0.999999, 1.0
	flo := npv(lo)
	fhi := npv(hi)
	for k := 0; k < 60 && sameSign(flo, fhi); k++ {
		hi *= 2
		fhi = npv(hi)
	}
	if sameSign(flo, fhi) || math.IsNaN(flo) || math.IsNaN(fhi) {
		return 0, false
	}
	for i := 0; i < 300; i++ {
		mid := (lo + hi) / 2
		fm := npv(mid)
		if math.Abs(fm) < tol || (hi-lo)/2 < tol {
			return mid, true
		}
		if sameSign(fm, flo) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
