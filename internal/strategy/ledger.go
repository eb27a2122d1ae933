package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger tracks open and closed positions and routes fills through a
// gateway. In dry-run mode every order is treated as filled at the requested
// quantity and price.
type Ledger struct {
	gateway domain.FillGateway
	dryRun  bool
	symbol  string
	journal domain.PositionJournal

	open   []domain.Position
	closed []domain.Position

	now    func() time.Time
	logger *slog.Logger
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithJournal mirrors every open and close into j under symbol.
func WithJournal(symbol string, j domain.PositionJournal) LedgerOption {
	return func(l *Ledger) {
		l.symbol = symbol
		l.journal = j
	}
}

// WithClock overrides the wall clock used when a tick carries no timestamp.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates an empty ledger. gateway may be nil when dryRun is set.
func NewLedger(gateway domain.FillGateway, dryRun bool, logger *slog.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		gateway: gateway,
		dryRun:  dryRun,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenPosition buys quantity at price. On a fill a new position is recorded
// with the fill's quantity and price; on rejection or gateway error nothing
// is recorded and false is returned.
func (l *Ledger) OpenPosition(ctx context.Context, quantity, price decimal.Decimal, tick domain.Tick) (domain.Position, bool) {
	fill, err := l.execute(ctx, domain.SideBuy, quantity, price)
	if err != nil {
		l.logger.WarnContext(ctx, "buy failed",
			slog.Int64("tick", tick.Number),
			slog.String("quantity", quantity.String()),
			slog.String("price", price.String()),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, false
	}
	if !fill.Filled {
		l.logger.InfoContext(ctx, "buy not filled",
			slog.Int64("tick", tick.Number),
			slog.String("quantity", quantity.String()),
			slog.String("price", price.String()),
		)
		return domain.Position{}, false
	}

	pos := domain.Position{
		ID:       uuid.NewString(),
		Amount:   fill.Quantity,
		OpenRate: fill.Price,
		OpenTick: tick.Number,
		OpenedAt: l.stamp(tick),
	}
	l.open = append(l.open, pos)

	l.logger.InfoContext(ctx, "position opened",
		slog.String("id", pos.ID),
		slog.Int64("tick", tick.Number),
		slog.String("amount", pos.Amount.String()),
		slog.String("rate", pos.OpenRate.String()),
	)
	if l.journal != nil {
		if err := l.journal.RecordOpen(ctx, l.symbol, pos); err != nil {
			l.logger.ErrorContext(ctx, "journal open failed",
				slog.String("id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return pos, true
}

// ClosePosition sells the open position id at price. Closing an id that is
// not currently open is a programming error and panics.
func (l *Ledger) ClosePosition(ctx context.Context, id string, price decimal.Decimal, tick domain.Tick) (domain.Position, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		panic(fmt.Errorf("strategy: close %s: %w", id, domain.ErrPositionNotOpen))
	}
	pos := l.open[idx]

	fill, err := l.execute(ctx, domain.SideSell, pos.Amount, price)
	if err != nil {
		l.logger.WarnContext(ctx, "sell failed",
			slog.String("id", id),
			slog.Int64("tick", tick.Number),
			slog.String("price", price.String()),
			slog.String("error", err.Error()),
		)
		return pos, false
	}
	if !fill.Filled {
		l.logger.InfoContext(ctx, "sell not filled",
			slog.String("id", id),
			slog.Int64("tick", tick.Number),
			slog.String("price", price.String()),
		)
		return pos, false
	}

	closedAt := l.stamp(tick)
	pos.CloseRate = fill.Price
	pos.CloseTick = tick.Number
	pos.ClosedAt = &closedAt

	l.open = append(l.open[:idx], l.open[idx+1:]...)
	l.closed = append(l.closed, pos)

	l.logger.InfoContext(ctx, "position closed",
		slog.String("id", pos.ID),
		slog.Int64("tick", tick.Number),
		slog.String("amount", pos.Amount.String()),
		slog.String("open_rate", pos.OpenRate.String()),
		slog.String("close_rate", pos.CloseRate.String()),
	)
	if l.journal != nil {
		if err := l.journal.RecordClose(ctx, l.symbol, pos); err != nil {
			l.logger.ErrorContext(ctx, "journal close failed",
				slog.String("id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return pos, true
}

// OpenForSale returns the open positions sorted by ascending open rate.
// Positions sharing a rate keep their opening order.
func (l *Ledger) OpenForSale() []domain.Position {
	out := l.Open()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenRate.LessThan(out[j].OpenRate)
	})
	return out
}

// HasOpenPositionAtPrice reports whether any open position's rate equals
// price once both are rounded to digits places.
func (l *Ledger) HasOpenPositionAtPrice(price decimal.Decimal, digits int32) bool {
	return l.OpenCountAtPrice(price, digits) > 0
}

// OpenCountAtPrice counts open positions whose rate rounds to price.
func (l *Ledger) OpenCountAtPrice(price decimal.Decimal, digits int32) int {
	want := price.RoundBank(digits)
	n := 0
	for _, p := range l.open {
		if p.OpenRate.RoundBank(digits).Equal(want) {
			n++
		}
	}
	return n
}

// Open returns a copy of the open positions in opening order.
func (l *Ledger) Open() []domain.Position {
	out := make([]domain.Position, len(l.open))
	copy(out, l.open)
	return out
}

// Closed returns a copy of the closed positions in closing order.
func (l *Ledger) Closed() []domain.Position {
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int { return len(l.open) }

// OpenTotals sums quantity and cost over the open positions.
func (l *Ledger) OpenTotals() (qty, cost decimal.Decimal) {
	for _, p := range l.open {
		qty = qty.Add(p.Amount)
		cost = cost.Add(p.Cost())
	}
	return qty, cost
}

// Restore replaces the ledger contents with previously persisted positions.
func (l *Ledger) Restore(open, closed []domain.Position) {
	l.open = append([]domain.Position(nil), open...)
	l.closed = append([]domain.Position(nil), closed...)
}

func (l *Ledger) execute(ctx context.Context, side domain.Side, quantity, price decimal.Decimal) (domain.FillResult, error) {
	if l.dryRun {
		return domain.FillResult{Filled: true, Quantity: quantity, Price: price}, nil
	}
	if l.gateway == nil {
		return domain.FillResult{}, fmt.Errorf("strategy: no fill gateway configured")
	}
	if side == domain.SideBuy {
		return l.gateway.Buy(ctx, quantity, price)
	}
	return l.gateway.Sell(ctx, quantity, price)
}

func (l *Ledger) indexOf(id string) int {
	for i, p := range l.open {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) stamp(t domain.Tick) time.Time {
	if !t.Time.IsZero() {
		return t.Time
	}
	return l.now()
}
