package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/feed"
	"github.com/alanyoungcy/spotbot/internal/report"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// BacktestOptions tunes result reporting for backtests.
type BacktestOptions struct {
	Symbol string
	// LogsPath receives backtest/<file>/<symbol>/result.json when non-empty.
	LogsPath   string
	FeePercent decimal.Decimal
	USDRate    decimal.Decimal
}

// EngineFactory builds a fresh dry-run engine for one replay.
type EngineFactory func() (*strategy.Engine, error)

// Backtest replays historical rate files through fresh engines, one
// session per file.
type Backtest struct {
	rates     feed.RateStore
	newEngine EngineFactory
	archiver  ResultArchiver
	out       io.Writer
	opts      BacktestOptions
	now       func() time.Time
	logger    *slog.Logger
}

// NewBacktest creates a backtester. archiver may be nil and out defaults to
// io.Discard.
func NewBacktest(rates feed.RateStore, newEngine EngineFactory, archiver ResultArchiver, out io.Writer, opts BacktestOptions, logger *slog.Logger) *Backtest {
	if out == nil {
		out = io.Discard
	}
	return &Backtest{
		rates:     rates,
		newEngine: newEngine,
		archiver:  archiver,
		out:       out,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "backtest"), slog.String("symbol", opts.Symbol)),
	}
}

// FileResult is the outcome of replaying one rate file.
type FileResult struct {
	File       string
	Ticks      int
	StopReason strategy.StopReason
	Results    report.Results
}

// Run replays every rate file matching pattern in name order.
func (b *Backtest) Run(ctx context.Context, pattern string) ([]FileResult, error) {
	names, err := b.rates.Match(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("trader: backtest: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("trader: backtest: no rate files match %q", pattern)
	}

	out := make([]FileResult, 0, len(names))
	for _, name := range names {
		res, err := b.runFile(ctx, name)
		if err != nil {
			return out, fmt.Errorf("trader: backtest %s: %w", name, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (b *Backtest) runFile(ctx context.Context, name string) (FileResult, error) {
	ticks, err := feed.LoadRates(ctx, b.rates, name)
	if err != nil {
		return FileResult{}, err
	}
	engine, err := b.newEngine()
	if err != nil {
		return FileResult{}, err
	}
	b.logger.InfoContext(ctx, "backtest started", slog.String("file", name), slog.Int("ticks", len(ticks)))

	src := feed.NewReplaySource(ticks)
	res := FileResult{File: name}
	for {
		tick, err := src.Next(ctx)
		if errors.Is(err, domain.ErrEndOfStream) {
			break
		}
		if err != nil {
			return FileResult{}, err
		}
		res.Ticks++
		b.logger.DebugContext(ctx, "tick", slog.Int64("number", tick.Number), slog.String("price", tick.Price.String()))
		if !engine.Tick(ctx, tick) {
			res.StopReason = engine.Stopped()
			b.logger.InfoContext(ctx, "end trading", slog.String("reason", string(res.StopReason)))
			break
		}
	}

	st := engine.RunState()
	now := b.now()
	if last, ok := st.LastTick(); ok && !last.Time.IsZero() {
		now = last.Time
	}
	res.Results = report.Compute(st, report.Params{
		Symbol:     b.opts.Symbol,
		FeePercent: b.opts.FeePercent,
		USDRate:    b.opts.USDRate,
		Now:        now,
	})

	fmt.Fprintf(b.out, "== %s ==\n", name)
	report.Print(b.out, res.Results)

	if b.opts.LogsPath != "" {
		dir := filepath.Join(b.opts.LogsPath, "backtest", fileStem(name))
		if p, err := report.WriteLocal(dir, res.Results); err != nil {
			b.logger.ErrorContext(ctx, "write results failed", slog.String("error", err.Error()))
		} else {
			b.logger.InfoContext(ctx, "results written", slog.String("path", p))
		}
	}
	if b.archiver != nil {
		archive(ctx, b.archiver, b.opts.Symbol, res.Results, st, b.logger)
	}
	return res, nil
}

// fileStem turns "rates/2024/BINANCE_SOLUSDT, 60.csv" into
// "BINANCE_SOLUSDT_60".
func fileStem(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.ReplaceAll(base, ", ", "_"))
}
