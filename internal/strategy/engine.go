package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
)

// historyCap bounds the number of recent ticks kept for price comparisons.
const historyCap = 10

var hundred = decimal.NewFromInt(100)

// StopReason explains why the engine stopped accepting ticks.
type StopReason string

const (
	// StopNone means the engine is still running.
	StopNone StopReason = ""
	// StopDisabled is set when the strategy is switched off in config.
	StopDisabled StopReason = "disabled"
	// StopTickLimit is set once the tick number reaches the configured limit.
	StopTickLimit StopReason = "tick_limit"
	// StopLoss is set after the bid falls to the global stop-loss and open
	// positions were liquidated.
	StopLoss StopReason = "stop_loss"
)

// RunState is everything needed to resume a session after a restart.
type RunState struct {
	StartedAt time.Time
	Open      []domain.Position
	Closed    []domain.Position
	History   []domain.Tick
	OnHold    *domain.OnHold

	// Ladder fields are only meaningful for the floating rule.
	HasLadder         bool
	LadderCursor      int
	LadderPeakPercent decimal.Decimal
	LadderPeakTick    int64

	LastBuyTick  int64
	LastBuyPrice decimal.Decimal
}

// LastTick returns the most recent tick in the history.
func (s RunState) LastTick() (domain.Tick, bool) {
	if len(s.History) == 0 {
		return domain.Tick{}, false
	}
	return s.History[len(s.History)-1], true
}

// Engine runs the per-tick buy/sell decision procedure for one instrument.
// Tick numbers must rise by exactly one; only the first tick after Restore
// may skip ahead.
type Engine struct {
	cfg    Config
	ledger *Ledger
	rule   SellRule
	ladder *Ladder
	logger *slog.Logger

	mu           sync.Mutex
	startedAt    time.Time
	history      []domain.Tick
	onHold       *domain.OnHold
	lastBuyTick  int64
	lastBuyPrice decimal.Decimal
	warmupLeft   int
	resumed      bool
	stopped      StopReason
}

// NewEngine creates an engine in the Running state.
func NewEngine(cfg Config, ledger *Ledger, rule SellRule, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:        cfg,
		ledger:     ledger,
		rule:       rule,
		logger:     logger.With(slog.String("component", "strategy_engine"), slog.String("rule", rule.Name())),
		startedAt:  ledger.now(),
		history:    make([]domain.Tick, 0, historyCap),
		warmupLeft: cfg.WarmupTicks,
	}
	if lr, ok := rule.(interface{ Ladder() *Ladder }); ok {
		e.ladder = lr.Ladder()
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Stopped returns the reason the engine stopped, or StopNone while running.
func (e *Engine) Stopped() StopReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Tick processes one price observation and reports whether the caller should
// keep feeding ticks. Once it returns false the engine is stopped for good.
// An out-of-sequence tick number is a programming error and panics.
func (e *Engine) Tick(ctx context.Context, t domain.Tick) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped != StopNone {
		return false
	}

	e.checkSequence(t)
	e.pushHistory(t)
	e.updateStats(t)

	if !e.cfg.Enabled {
		return e.stop(ctx, t, StopDisabled)
	}
	if e.cfg.TickLimit > 0 && t.Number >= e.cfg.TickLimit {
		return e.stop(ctx, t, StopTickLimit)
	}

	if t.Number == 0 {
		e.initialBuys(ctx, t)
		e.updateStats(t)
		return true
	}

	if e.stopLossBreached(t) {
		e.liquidate(ctx, t)
		e.updateStats(t)
		return e.stop(ctx, t, StopLoss)
	}

	if e.warmupLeft > 0 {
		e.warmupLeft--
		e.logger.DebugContext(ctx, "warm-up tick", slog.Int64("tick", t.Number), slog.Int("left", e.warmupLeft))
		return true
	}

	sold := e.rule.AttemptSell(ctx, e.ledger, t)
	bought := false
	if e.cfg.HoldPositionLimit == 0 || e.ledger.OpenCount() < e.cfg.HoldPositionLimit {
		bought = e.buy(ctx, t)
	}
	e.updateStats(t)

	e.logger.DebugContext(ctx, "tick processed",
		slog.Int64("tick", t.Number),
		slog.String("bid", t.BidPrice().String()),
		slog.String("ask", t.AskPrice().String()),
		slog.Bool("sold", sold),
		slog.Bool("bought", bought),
		slog.Int("open", e.ledger.OpenCount()),
	)
	return true
}

func (e *Engine) stop(ctx context.Context, t domain.Tick, reason StopReason) bool {
	e.stopped = reason
	e.logger.InfoContext(ctx, "engine stopped",
		slog.Int64("tick", t.Number),
		slog.String("reason", string(reason)),
	)
	return false
}

func (e *Engine) checkSequence(t domain.Tick) {
	resumed := e.resumed
	e.resumed = false
	if len(e.history) == 0 {
		return
	}
	last := e.history[len(e.history)-1].Number
	if t.Number <= last || (!resumed && t.Number != last+1) {
		panic(fmt.Errorf("strategy: tick %d after %d: %w", t.Number, last, domain.ErrTickSequence))
	}
}

func (e *Engine) pushHistory(t domain.Tick) {
	if len(e.history) == historyCap {
		copy(e.history, e.history[1:])
		e.history = e.history[:historyCap-1]
	}
	e.history = append(e.history, t)
}

// updateStats replaces the on-hold snapshot whenever current exposure is at
// least the recorded peak, and advances the ladder peak marker.
func (e *Engine) updateStats(t domain.Tick) {
	qty, cost := e.ledger.OpenTotals()
	if e.onHold == nil || e.onHold.BuyAmount.LessThanOrEqual(cost) {
		e.onHold = &domain.OnHold{
			Quantity:   qty,
			BuyAmount:  cost,
			TickNumber: t.Number,
			TickRate:   t.AvgPrice(),
		}
	}
	if e.ladder != nil {
		e.ladder.ObservePeak(t.Number)
	}
}

func (e *Engine) initialBuys(ctx context.Context, t domain.Tick) {
	ask := t.AskPrice()
	qty := quantity(e.cfg.Notional, ask, e.cfg.AmountDigits)
	if !qty.IsPositive() {
		e.logger.WarnContext(ctx, "initial buy skipped", slog.String("ask", ask.String()))
		return
	}
	for i := 0; i < e.cfg.InitBuyCount; i++ {
		if pos, ok := e.ledger.OpenPosition(ctx, qty, ask, t); ok {
			e.lastBuyTick = t.Number
			e.lastBuyPrice = pos.OpenRate
		}
	}
}

func (e *Engine) stopLossBreached(t domain.Tick) bool {
	if !e.cfg.GlobalStopLoss.IsPositive() {
		return false
	}
	return t.BidPrice().LessThanOrEqual(e.cfg.GlobalStopLoss)
}

func (e *Engine) liquidate(ctx context.Context, t domain.Tick) {
	price := t.BidPrice()
	e.logger.WarnContext(ctx, "stop-loss reached",
		slog.Int64("tick", t.Number),
		slog.String("price", price.String()),
		slog.String("stop_loss", e.cfg.GlobalStopLoss.String()),
		slog.Int("open", e.ledger.OpenCount()),
	)
	for _, pos := range e.ledger.OpenForSale() {
		e.ledger.ClosePosition(ctx, pos.ID, price, t)
	}
}

// buy opens at most one position when the ask has moved far enough from
// the reference price and every gate passes.
func (e *Engine) buy(ctx context.Context, t domain.Tick) bool {
	anchored := e.cfg.AnchorOnLastBuy && !e.lastBuyPrice.IsZero()

	var ref decimal.Decimal
	switch {
	case anchored:
		ref = e.lastBuyPrice
	case len(e.history) >= 2:
		ref = e.history[len(e.history)-2].AskPrice()
	default:
		return false
	}

	ask := t.AskPrice()
	if ref.IsZero() || ask.IsZero() {
		return false
	}

	diff := ref.Sub(ask)
	if anchored {
		diff = diff.Abs()
	}
	move := diff.Div(ref.Div(hundred))

	buyPrice := ask.Mul(e.cfg.BuyPriceDiscount).RoundBank(e.cfg.PriceDigits)
	qty := quantity(e.cfg.Notional, buyPrice, e.cfg.AmountDigits)
	if !qty.IsPositive() {
		return false
	}

	byMove := move.GreaterThanOrEqual(e.cfg.Step)
	byFrequency := t.Number-e.lastBuyTick >= e.cfg.BuyEveryNTicks
	byDuplicate := !e.ledger.HasOpenPositionAtPrice(buyPrice, e.cfg.PriceDigits)
	byQuantity := t.AskQty.IsZero() || qty.LessThanOrEqual(t.AskQty)

	if !(byMove && byFrequency && byDuplicate && byQuantity) {
		if byMove {
			e.logger.DebugContext(ctx, "buy gated",
				slog.Int64("tick", t.Number),
				slog.String("price", buyPrice.String()),
				slog.Bool("frequency", byFrequency),
				slog.Bool("duplicate", !byDuplicate),
				slog.Bool("quantity", byQuantity),
			)
		}
		return false
	}

	pos, ok := e.ledger.OpenPosition(ctx, qty, buyPrice, t)
	if !ok {
		return false
	}
	if n := e.ledger.OpenCountAtPrice(pos.OpenRate, e.cfg.PriceDigits); n > 1 {
		e.logger.WarnContext(ctx, "fill price matches an open position",
			slog.Int64("tick", t.Number),
			slog.String("requested", buyPrice.String()),
			slog.String("filled", pos.OpenRate.String()),
			slog.Int("open_at_rate", n),
		)
	}
	e.lastBuyTick = t.Number
	e.lastBuyPrice = pos.OpenRate
	return true
}

// RunState captures the engine's resumable state.
func (e *Engine) RunState() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := RunState{
		StartedAt:    e.startedAt,
		Open:         e.ledger.Open(),
		Closed:       e.ledger.Closed(),
		History:      append([]domain.Tick(nil), e.history...),
		LastBuyTick:  e.lastBuyTick,
		LastBuyPrice: e.lastBuyPrice,
	}
	if e.onHold != nil {
		oh := *e.onHold
		st.OnHold = &oh
	}
	if e.ladder != nil {
		st.HasLadder = true
		st.LadderCursor = e.ladder.Cursor()
		st.LadderPeakPercent, st.LadderPeakTick = e.ladder.Peak()
	}
	return st
}

// Restore loads persisted state into a freshly constructed engine. The
// warm-up counter restarts so the resumed session re-observes the market.
func (e *Engine) Restore(st RunState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !st.StartedAt.IsZero() {
		e.startedAt = st.StartedAt
	}
	e.ledger.Restore(st.Open, st.Closed)

	hist := st.History
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	e.history = append(e.history[:0], hist...)

	e.onHold = nil
	if st.OnHold != nil {
		oh := *st.OnHold
		e.onHold = &oh
	}
	e.lastBuyTick = st.LastBuyTick
	e.lastBuyPrice = st.LastBuyPrice
	e.warmupLeft = e.cfg.WarmupTicks
	e.resumed = true

	if e.ladder != nil && st.HasLadder {
		e.ladder.SetCursor(st.LadderCursor)
		e.ladder.SetPeak(st.LadderPeakPercent, st.LadderPeakTick)
	}
}
