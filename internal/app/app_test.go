package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/config"
	"github.com/alanyoungcy/spotbot/internal/feed"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pagedKlines struct {
	total int
	calls []int
}

func (p *pagedKlines) Klines(_ context.Context, _, _ string, start time.Time, limit int) ([]binance.Kline, error) {
	p.calls = append(p.calls, limit)
	var out []binance.Kline
	for i := 0; i < limit && p.total > 0; i++ {
		p.total--
		open := start.Add(time.Duration(i) * time.Minute)
		out = append(out, binance.Kline{
			OpenTime:  open,
			Open:      decimal.NewFromInt(int64(100 + i)),
			CloseTime: open.Add(time.Minute - time.Millisecond),
		})
	}
	return out, nil
}

func TestFetchRatesPagesUntilCount(t *testing.T) {
	src := &pagedKlines{total: 5000}
	var buf bytes.Buffer
	start := time.Unix(1700000000, 0).UTC()

	n, err := FetchRates(context.Background(), src, "SOLUSDT", "1m", start, 1500, &buf, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1500, n)
	assert.Equal(t, []int{1000, 500}, src.calls)

	ticks, err := feed.ParseRates(&buf)
	require.NoError(t, err)
	require.Len(t, ticks, 1500)
	assert.True(t, ticks[0].Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, start, ticks[0].Time.UTC())
}

func TestFetchRatesStopsOnShortPage(t *testing.T) {
	src := &pagedKlines{total: 3}
	var buf bytes.Buffer
	n, err := FetchRates(context.Background(), src, "SOLUSDT", "1h", time.Time{}, 100, &buf, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, src.calls, 1)
	assert.True(t, strings.HasPrefix(buf.String(), "timestamp,price\n"))
}

func TestStrategyConfigMapping(t *testing.T) {
	cfg := config.Defaults()
	cfg.Symbol = "BTCUSDT"
	cfg.Strategy.AvgRateSellLimit = decimal.RequireFromString("1.1")
	cfg.Strategy.ContinueBuyAmount = decimal.NewFromInt(25)
	cfg.Strategy.ContinueBuyEveryNTicks = 4
	cfg.Strategy.UseLastOpenPositionRate = true

	a := New(&cfg, discardLogger())
	sc := a.strategyConfig()
	assert.Equal(t, "BTCUSDT", sc.Symbol)
	assert.True(t, sc.SellMargin.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, sc.Notional.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, int64(4), sc.BuyEveryNTicks)
	assert.True(t, sc.AnchorOnLastBuy)
	assert.Equal(t, cfg.Strategy.InitBuyAmount, sc.InitBuyCount)
	assert.Equal(t, cfg.Strategy.TicksAmountLimit, sc.TickLimit)
}

func TestBacktestModeFromLocalDir(t *testing.T) {
	dir := t.TempDir()
	rates := filepath.Join(dir, "rates")
	require.NoError(t, os.MkdirAll(rates, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rates, "BINANCE_SOLUSDT, 60.csv"),
		[]byte("time,close\n1700000000,100\n1700003600,97\n1700007200,106\n"), 0o644))

	cfg := config.Defaults()
	cfg.Mode = "backtest"
	cfg.Strategy.InitBuyAmount = 1
	cfg.Strategy.ContinueBuyAmount = decimal.NewFromInt(50)
	cfg.Backtest.RatesPath = rates
	cfg.Trader.LogsPath = filepath.Join(dir, "logs")
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	a := New(&cfg, discardLogger())
	a.SetOutput(&out)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "BINANCE_SOLUSDT, 60.csv")
	assert.FileExists(t, filepath.Join(dir, "logs", "backtest", "BINANCE_SOLUSDT_60", "SOLUSDT", "result.json"))
}

func TestBacktestModeNoFiles(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "backtest"
	cfg.Backtest.RatesPath = t.TempDir()
	cfg.Trader.LogsPath = ""

	a := New(&cfg, discardLogger())
	a.SetOutput(io.Discard)
	defer a.Close()
	assert.ErrorContains(t, a.Run(context.Background()), "no rate files match")
}
