package trader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/notify"
	"github.com/alanyoungcy/spotbot/internal/report"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// finalTimeout bounds the shutdown work done after the run context ends.
const finalTimeout = 30 * time.Second

// LiveOptions tunes the live loop.
type LiveOptions struct {
	Symbol string

	ThrottlingTime        time.Duration
	ThrottlingFailureTime time.Duration
	FailureLimit          int
	ShowStatsEvery        int64

	// LogsPath receives <symbol>/result.json when non-empty.
	LogsPath string

	FeePercent decimal.Decimal
	USDRate    decimal.Decimal
}

// SourceFactory builds the tick source once the starting tick number is
// known. startAfter is -1 for a fresh session.
type SourceFactory func(startAfter int64) (domain.TickSource, error)

// Live runs one engine against a live tick source until the engine stops,
// the feed fails too often in a row, or the context is cancelled.
type Live struct {
	engine    *strategy.Engine
	newSource SourceFactory
	state     StateSaver
	archiver  ResultArchiver
	notifier  Notifier
	out       io.Writer
	opts      LiveOptions
	now       func() time.Time
	logger    *slog.Logger
}

// LiveDeps groups the optional collaborators of Live. Nil members are
// skipped.
type LiveDeps struct {
	State    StateSaver
	Archiver ResultArchiver
	Notifier Notifier
	// Out receives the printed results table; defaults to io.Discard.
	Out io.Writer
}

// NewLive creates a live runner.
func NewLive(engine *strategy.Engine, newSource SourceFactory, deps LiveDeps, opts LiveOptions, logger *slog.Logger) *Live {
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	if opts.FailureLimit < 1 {
		opts.FailureLimit = 1
	}
	return &Live{
		engine:    engine,
		newSource: newSource,
		state:     deps.State,
		archiver:  deps.Archiver,
		notifier:  deps.Notifier,
		out:       out,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "trader"), slog.String("symbol", opts.Symbol)),
	}
}

// Summary describes a finished session.
type Summary struct {
	Reason     EndReason
	StopReason strategy.StopReason
	Ticks      int
	Results    report.Results
}

// Run executes the session. Cancelling ctx ends it gracefully: the final
// state is saved and results are produced with a detached context.
func (l *Live) Run(ctx context.Context) (Summary, error) {
	if l.state != nil {
		if st, ok := l.state.Load(ctx, l.opts.Symbol); ok {
			l.engine.Restore(st)
		}
	}

	startAfter := int64(-1)
	if last, ok := l.engine.RunState().LastTick(); ok {
		startAfter = last.Number
	}
	src, err := l.newSource(startAfter)
	if err != nil {
		return Summary{}, fmt.Errorf("trader: tick source: %w", err)
	}
	l.logger.InfoContext(ctx, "live session started", slog.Int64("start_after", startAfter))

	var (
		sum      Summary
		failures int
	)
loop:
	for {
		if ctx.Err() != nil {
			l.logger.WarnContext(ctx, "end trading by signal")
			sum.Reason = EndSignal
			break
		}
		if failures >= l.opts.FailureLimit {
			l.logger.WarnContext(ctx, "end trading by failure limit", slog.Int("failures", failures))
			sum.Reason = EndFailureLimit
			break
		}

		tick, err := src.Next(ctx)
		switch {
		case errors.Is(err, domain.ErrEndOfStream):
			sum.Reason = EndOfStream
			break loop
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			failures++
			l.logger.WarnContext(ctx, "skip tick by failure",
				slog.Int("failures", failures),
				slog.String("error", err.Error()),
			)
			wait(ctx, l.opts.ThrottlingFailureTime)
			continue
		}
		failures = 0
		sum.Ticks++

		l.logger.InfoContext(ctx, "tick",
			slog.Int64("number", tick.Number),
			slog.String("bid", tick.BidPrice().String()),
			slog.String("ask", tick.AskPrice().String()),
		)

		if !l.engine.Tick(ctx, tick) {
			sum.Reason = EndStrategy
			sum.StopReason = l.engine.Stopped()
			l.logger.InfoContext(ctx, "end trading by strategy reason", slog.String("reason", string(sum.StopReason)))
			l.settle(context.WithoutCancel(ctx))
			break
		}

		l.save(ctx)

		if l.opts.ShowStatsEvery > 0 && tick.Number != 0 && tick.Number%l.opts.ShowStatsEvery == 0 {
			report.Print(l.out, l.results())
		}

		wait(ctx, l.opts.ThrottlingTime)
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalTimeout)
	defer cancel()

	if sum.Reason != EndStrategy {
		l.save(finalCtx)
	}
	sum.Results = l.finish(finalCtx, sum)
	return sum, nil
}

func (l *Live) save(ctx context.Context) {
	if l.state == nil {
		return
	}
	if err := l.state.Save(ctx, l.opts.Symbol, l.engine.RunState()); err != nil {
		l.logger.ErrorContext(ctx, "state save failed", slog.String("error", err.Error()))
		return
	}
	l.logger.DebugContext(ctx, "state saved")
}

// settle runs after the engine stops. The saved state is dropped only when
// no inventory is left; otherwise it is kept so the next session can still
// sell what the account holds.
func (l *Live) settle(ctx context.Context) {
	if l.state == nil {
		return
	}
	if open := len(l.engine.RunState().Open); open > 0 {
		l.logger.WarnContext(ctx, "engine stopped with open positions, keeping state", slog.Int("open", open))
		l.save(ctx)
		return
	}
	if err := l.state.Drop(ctx, l.opts.Symbol); err != nil {
		l.logger.ErrorContext(ctx, "drop state failed", slog.String("error", err.Error()))
		return
	}
	l.logger.InfoContext(ctx, "state dropped")
}

func (l *Live) results() report.Results {
	return report.Compute(l.engine.RunState(), report.Params{
		Symbol:     l.opts.Symbol,
		FeePercent: l.opts.FeePercent,
		USDRate:    l.opts.USDRate,
		Now:        l.now(),
	})
}

// finish prints, stores and announces the session results.
func (l *Live) finish(ctx context.Context, sum Summary) report.Results {
	r := l.results()

	var table bytes.Buffer
	report.Print(&table, r)
	_, _ = l.out.Write(table.Bytes())

	if l.opts.LogsPath != "" {
		if path, err := report.WriteLocal(l.opts.LogsPath, r); err != nil {
			l.logger.ErrorContext(ctx, "write results failed", slog.String("error", err.Error()))
		} else {
			l.logger.InfoContext(ctx, "results written", slog.String("path", path))
		}
	}

	if l.archiver != nil {
		archive(ctx, l.archiver, l.opts.Symbol, r, l.engine.RunState(), l.logger)
	}

	if l.notifier != nil {
		if sum.StopReason == strategy.StopLoss {
			l.notify(ctx, notify.EventStopLoss, fmt.Sprintf("%s stop loss hit", l.opts.Symbol), table.String())
		}
		if sum.Reason == EndFailureLimit {
			l.notify(ctx, notify.EventFailureLimit,
				fmt.Sprintf("%s feed failed %d times in a row", l.opts.Symbol, l.opts.FailureLimit), table.String())
		}
		l.notify(ctx, notify.EventSessionEnd,
			fmt.Sprintf("%s session ended (%s)", l.opts.Symbol, sum.Reason), table.String())
	}
	return r
}

func (l *Live) notify(ctx context.Context, event, title, message string) {
	if err := l.notifier.Notify(ctx, event, title, message); err != nil {
		l.logger.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// archive uploads results and the position history; failures are logged.
func archive(ctx context.Context, a ResultArchiver, symbol string, r report.Results, st strategy.RunState, logger *slog.Logger) {
	at := r.GeneratedAt
	if path, err := a.ArchiveResults(ctx, symbol, at, r); err != nil {
		logger.ErrorContext(ctx, "archive results failed", slog.String("error", err.Error()))
	} else {
		logger.InfoContext(ctx, "results archived", slog.String("path", path))
	}

	positions := append(append([]domain.Position(nil), st.Closed...), st.Open...)
	if path, err := a.ArchivePositions(ctx, symbol, at, positions); err != nil {
		logger.ErrorContext(ctx, "archive positions failed", slog.String("error", err.Error()))
	} else if path != "" {
		logger.InfoContext(ctx, "positions archived", slog.String("path", path))
	}
}
