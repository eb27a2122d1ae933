package strategy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerWith(rates ...string) *Ledger {
	l := NewLedger(nil, true, discardLogger())
	open := make([]domain.Position, 0, len(rates))
	for i, r := range rates {
		open = append(open, domain.Position{
			ID:       string(rune('a' + i)),
			Amount:   d("0.5"),
			OpenRate: d(r),
		})
	}
	l.Restore(open, nil)
	return l
}

func TestFixedMarginSellsCheapestFirst(t *testing.T) {
	cfg := testConfig()
	rule := NewFixedMarginRule(cfg, discardLogger())
	ledger := ledgerWith("120", "100", "110")

	sold := rule.AttemptSell(context.Background(), ledger, priceTick(5, "200"))
	require.True(t, sold)

	closed := ledger.Closed()
	require.Len(t, closed, 1)
	assertDec(t, "100", closed[0].OpenRate)
	assert.Len(t, ledger.Open(), 2)
}

func TestFixedMarginMultipleSell(t *testing.T) {
	cfg := testConfig()
	cfg.MultipleSellOnTick = true
	rule := NewFixedMarginRule(cfg, discardLogger())
	ledger := ledgerWith("120", "100", "110")

	require.True(t, rule.AttemptSell(context.Background(), ledger, priceTick(5, "200")))

	closed := ledger.Closed()
	require.Len(t, closed, 3)
	assertDec(t, "100", closed[0].OpenRate)
	assertDec(t, "110", closed[1].OpenRate)
	assertDec(t, "120", closed[2].OpenRate)
}

func TestFixedMarginRespectsBidDepth(t *testing.T) {
	cfg := testConfig()
	cfg.MultipleSellOnTick = true
	rule := NewFixedMarginRule(cfg, discardLogger())
	ledger := ledgerWith("100", "101")

	tick := domain.Tick{Number: 3, Bid: d("200"), Ask: d("201"), BidQty: d("0.7")}
	require.True(t, rule.AttemptSell(context.Background(), ledger, tick))

	assert.Len(t, ledger.Closed(), 1)
	assert.Len(t, ledger.Open(), 1)
}

func TestFixedMarginOpenForSaleOrderStable(t *testing.T) {
	ledger := ledgerWith("100", "100", "90")
	got := ledger.OpenForSale()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "b", got[2].ID)
}

func TestLadderClamps(t *testing.T) {
	l, err := NewLadder([]decimal.Decimal{d("1"), d("2"), d("3")})
	require.NoError(t, err)

	l.Retreat()
	assert.Equal(t, 0, l.Cursor())
	assertDec(t, "1", l.Current())

	for i := 0; i < 5; i++ {
		l.Advance()
	}
	assert.Equal(t, 2, l.Cursor())
	assertDec(t, "3", l.Current())

	l.SetCursor(-4)
	assert.Equal(t, 0, l.Cursor())
	l.SetCursor(99)
	assert.Equal(t, 2, l.Cursor())
}

func TestLadderRejectsEmpty(t *testing.T) {
	_, err := NewLadder(nil)
	assert.Error(t, err)
}

func TestParseLadder(t *testing.T) {
	steps, err := ParseLadder(strings.NewReader("percent\n0.5\n\n1.0\n 1.5 ,extra\n"))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assertDec(t, "0.5", steps[0])
	assertDec(t, "1.5", steps[2])

	_, err = ParseLadder(strings.NewReader("1\nabc\n"))
	assert.Error(t, err)
}

func TestLoadLadderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.csv")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n4\n"), 0o644))

	l, err := LoadLadder(path)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
}

func TestLadderRuleStepsUpAndDown(t *testing.T) {
	cfg := testConfig()
	ladder, err := NewLadder([]decimal.Decimal{d("1"), d("2"), d("3")})
	require.NoError(t, err)
	rule := NewLadderRule(cfg, ladder, discardLogger())
	ctx := context.Background()

	ledger := ledgerWith("100", "100")
	require.True(t, rule.AttemptSell(ctx, ledger, priceTick(1, "101")))
	assert.Equal(t, 1, ladder.Cursor())

	// Now 2% is required; 101 is short of 102.
	assert.False(t, rule.AttemptSell(ctx, ledger, priceTick(2, "101")))
	assert.Equal(t, 0, ladder.Cursor())
	assert.Len(t, ledger.Open(), 1)
}

func TestLadderRuleNoTryKeepsCursor(t *testing.T) {
	cfg := testConfig()
	ladder, err := NewLadder([]decimal.Decimal{d("1"), d("2"), d("3")})
	require.NoError(t, err)
	ladder.SetCursor(1)
	rule := NewLadderRule(cfg, ladder, discardLogger())

	// Bid depth too thin for any position: nothing is tried.
	tick := domain.Tick{Number: 1, Bid: d("90"), Ask: d("91"), BidQty: d("0.1")}
	assert.False(t, rule.AttemptSell(context.Background(), ledgerWith("100"), tick))
	assert.Equal(t, 1, ladder.Cursor())

	// Empty ledger: nothing is tried either.
	assert.False(t, rule.AttemptSell(context.Background(), ledgerWith(), priceTick(2, "90")))
	assert.Equal(t, 1, ladder.Cursor())
}

func TestEngineTracksLadderPeak(t *testing.T) {
	cfg := testConfig()
	cfg.Type = TypeFloating
	cfg.InitBuyCount = 3
	ladder, err := NewLadder([]decimal.Decimal{d("1"), d("2"), d("3")})
	require.NoError(t, err)
	ledger := NewLedger(nil, true, discardLogger())
	e := NewEngine(cfg, ledger, NewLadderRule(cfg, ladder, discardLogger()), discardLogger())
	ctx := context.Background()

	require.True(t, e.Tick(ctx, priceTick(0, "100")))
	require.True(t, e.Tick(ctx, priceTick(1, "101")))
	require.True(t, e.Tick(ctx, priceTick(2, "102")))

	st := e.RunState()
	assert.True(t, st.HasLadder)
	assert.Equal(t, 2, st.LadderCursor)
	assertDec(t, "3", st.LadderPeakPercent)
	assert.Equal(t, int64(2), st.LadderPeakTick)
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{TypeBasic, TypeFloating}, r.List())

	rule, err := r.Build(testConfig(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, TypeBasic, rule.Name())

	cfg := testConfig()
	cfg.Type = "martingale"
	_, err = r.Build(cfg, discardLogger())
	assert.Error(t, err)

	cfg.Type = TypeFloating
	cfg.FloatStepsPath = filepath.Join(t.TempDir(), "missing.csv")
	_, err = r.Build(cfg, discardLogger())
	assert.Error(t, err)
}
