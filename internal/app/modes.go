package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spotbot/internal/cache/redis"
	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/executor"
	"github.com/alanyoungcy/spotbot/internal/feed"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
	"github.com/alanyoungcy/spotbot/internal/snapshot"
	"github.com/alanyoungcy/spotbot/internal/strategy"
	"github.com/alanyoungcy/spotbot/internal/trader"
)

// orderLimitKey is shared by every trader placing orders through one Redis.
const orderLimitKey = "orders"

// TradeMode runs one live session: it takes the session lock, restores the
// saved state, and trades until the strategy stops, the feed fails too
// often, or ctx is cancelled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("dry_run", a.cfg.Trader.DryRun),
		slog.String("feed", a.cfg.Trader.Feed),
		slog.String("state", a.cfg.State.Backend),
	)

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, redis.SessionKey(a.cfg.Symbol), a.cfg.State.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: session lock: %w", err)
		}
		defer unlock()
	}

	if err := deps.Exchange.Ping(ctx); err != nil {
		a.logger.WarnContext(ctx, "exchange ping failed", slog.String("error", err.Error()))
	}

	var gateway domain.FillGateway
	if !a.cfg.Trader.DryRun {
		gw := executor.NewGateway(deps.Exchange, a.cfg.Symbol, a.logger)
		if deps.RateLimiter != nil && a.cfg.Exchange.OrderRateLimit > 0 {
			gw.SetRateLimit(deps.RateLimiter, orderLimitKey, a.cfg.Exchange.OrderRateLimit, a.cfg.Exchange.OrderRateWindow.Duration)
		}
		gateway = gw
	}

	engine, err := a.buildEngine(gateway, a.cfg.Trader.DryRun, deps.Journal)
	if err != nil {
		return err
	}

	liveDeps := trader.LiveDeps{
		Archiver: deps.Archiver,
		Out:      a.out,
	}
	if deps.States != nil {
		liveDeps.State = snapshot.New(deps.States, a.logger)
	}
	if deps.Notifier.Enabled() {
		liveDeps.Notifier = deps.Notifier
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(gctx)
	defer stopRun()

	live := trader.NewLive(engine, a.sourceFactory(runCtx, g, deps), liveDeps, trader.LiveOptions{
		Symbol:                a.cfg.Symbol,
		ThrottlingTime:        a.cfg.Trader.ThrottlingTime.Duration,
		ThrottlingFailureTime: a.cfg.Trader.ThrottlingFailureTime.Duration,
		FailureLimit:          a.cfg.Trader.FailureLimit,
		ShowStatsEvery:        a.cfg.Trader.ShowStatsEveryTicks,
		LogsPath:              a.cfg.Trader.LogsPath,
		FeePercent:            a.cfg.Strategy.FeePercent,
		USDRate:               a.cfg.Strategy.SymbolToUSDTRate,
	}, a.logger)

	g.Go(func() error {
		defer stopRun()
		sum, err := live.Run(runCtx)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "trade session finished",
			slog.String("reason", string(sum.Reason)),
			slog.String("stop_reason", string(sum.StopReason)),
			slog.Int("ticks", sum.Ticks),
			slog.String("pl_percent", sum.Results.PLPercent.String()),
		)
		return nil
	})

	return g.Wait()
}

// sourceFactory returns the live tick source constructor for the configured
// feed. A websocket feed is closed when ctx ends.
func (a *App) sourceFactory(ctx context.Context, g *errgroup.Group, deps *Dependencies) trader.SourceFactory {
	if a.cfg.Trader.Feed != "ws" {
		return func(startAfter int64) (domain.TickSource, error) {
			return feed.NewPoller(deps.Exchange, a.cfg.Symbol, startAfter, a.logger), nil
		}
	}
	return func(startAfter int64) (domain.TickSource, error) {
		stream := binance.NewStreamClient(a.cfg.Exchange.StreamURL(), a.cfg.Symbol, a.logger)
		src := feed.NewStreamSource(stream, startAfter, a.cfg.Trader.StreamMaxAge.Duration)
		if err := stream.Connect(ctx); err != nil {
			return nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			return stream.Close()
		})
		return src, nil
	}
}

// BacktestMode replays every rate file matching backtest.rates_filename
// through a fresh dry-run engine.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("rates_path", a.cfg.Backtest.RatesPath),
		slog.String("rates_filename", a.cfg.Backtest.RatesFilename),
	)

	var rates feed.RateStore
	if a.cfg.Backtest.FromS3() {
		if deps.BlobReader == nil {
			return fmt.Errorf("app: backtest: %s needs s3 storage", a.cfg.Backtest.RatesPath)
		}
		rates = feed.NewBlobRates(deps.BlobReader, a.cfg.Backtest.S3Prefix())
	} else {
		rates = feed.NewDirRates(a.cfg.Backtest.RatesPath)
	}

	newEngine := func() (*strategy.Engine, error) {
		return a.buildEngine(nil, true, nil)
	}
	bt := trader.NewBacktest(rates, newEngine, deps.Archiver, a.out, trader.BacktestOptions{
		Symbol:     a.cfg.Symbol,
		LogsPath:   a.cfg.Trader.LogsPath,
		FeePercent: a.cfg.Strategy.FeePercent,
		USDRate:    a.cfg.Strategy.SymbolToUSDTRate,
	}, a.logger)

	results, err := bt.Run(ctx, a.cfg.Backtest.RatesFilename)
	for _, r := range results {
		a.logger.InfoContext(ctx, "backtest finished",
			slog.String("file", r.File),
			slog.Int("ticks", r.Ticks),
			slog.String("stop_reason", string(r.StopReason)),
			slog.String("pl_percent", r.Results.PLPercent.String()),
		)
	}
	return err
}

// strategyConfig maps the [strategy] section onto the engine configuration.
func (a *App) strategyConfig() strategy.Config {
	s := a.cfg.Strategy
	return strategy.Config{
		Symbol:             a.cfg.Symbol,
		Enabled:            s.Enabled,
		Type:               s.Type,
		Step:               s.Step,
		SellMargin:         s.AvgRateSellLimit,
		FloatStepsPath:     s.FloatStepsPath,
		InitBuyCount:       s.InitBuyAmount,
		Notional:           s.ContinueBuyAmount,
		GlobalStopLoss:     s.GlobalStopLoss,
		TickLimit:          s.TicksAmountLimit,
		HoldPositionLimit:  s.HoldPositionLimit,
		MultipleSellOnTick: s.MultipleSellOnTick,
		BuyPriceDiscount:   s.BuyPriceDiscount,
		SellPriceDiscount:  s.SellPriceDiscount,
		PriceDigits:        s.PriceDigits,
		AmountDigits:       s.AmountDigits,
		BuyEveryNTicks:     s.ContinueBuyEveryNTicks,
		AnchorOnLastBuy:    s.UseLastOpenPositionRate,
		WarmupTicks:        s.WarmupTicks,
	}
}

// buildEngine assembles a ledger, the configured sell rule and an engine.
// gateway may be nil when dryRun is set.
func (a *App) buildEngine(gateway domain.FillGateway, dryRun bool, journal domain.PositionJournal) (*strategy.Engine, error) {
	scfg := a.strategyConfig()
	rule, err := strategy.NewRegistry().Build(scfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: sell rule: %w", err)
	}

	var opts []strategy.LedgerOption
	if journal != nil {
		opts = append(opts, strategy.WithJournal(scfg.Symbol, journal))
	}
	ledger := strategy.NewLedger(gateway, dryRun, a.logger, opts...)
	return strategy.NewEngine(scfg, ledger, rule, a.logger), nil
}
