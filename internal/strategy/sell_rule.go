package strategy

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	TypeBasic    = "basic"
	TypeFloating = "floating"
)

// bidBudget tracks how much base quantity the bid side can still absorb on
// this tick. A zero bid quantity means the book depth is unknown and every
// sale is allowed.
type bidBudget struct {
	left    decimal.Decimal
	limited bool
}

func newBidBudget(t domain.Tick) *bidBudget {
	return &bidBudget{left: t.BidQty, limited: !t.BidQty.IsZero()}
}

func (b *bidBudget) fits(amount decimal.Decimal) bool {
	return !b.limited || b.left.GreaterThanOrEqual(amount)
}

func (b *bidBudget) consume(amount decimal.Decimal) {
	if b.limited {
		b.left = b.left.Sub(amount)
	}
}

// FixedMarginRule sells a position once the bid reaches its open rate times
// a constant margin.
type FixedMarginRule struct {
	cfg    Config
	logger *slog.Logger
}

// NewFixedMarginRule creates the "basic" sell rule.
func NewFixedMarginRule(cfg Config, logger *slog.Logger) *FixedMarginRule {
	return &FixedMarginRule{
		cfg:    cfg,
		logger: logger.With(slog.String("rule", TypeBasic)),
	}
}

// Name returns TypeBasic.
func (r *FixedMarginRule) Name() string { return TypeBasic }

// AttemptSell closes open positions, cheapest first, whose rate times the
// sell margin is covered by the bid. Only one closes per tick unless
// MultipleSellOnTick is set.
func (r *FixedMarginRule) AttemptSell(ctx context.Context, ledger *Ledger, tick domain.Tick) bool {
	bid := tick.BidPrice()
	sellPrice := bid.Mul(r.cfg.SellPriceDiscount).RoundBank(r.cfg.PriceDigits)
	budget := newBidBudget(tick)

	sold := false
	for _, pos := range ledger.OpenForSale() {
		target := pos.OpenRate.Mul(r.cfg.SellMargin)
		if bid.GreaterThanOrEqual(target) && budget.fits(pos.Amount) {
			r.logger.DebugContext(ctx, "sell signal",
				slog.String("id", pos.ID),
				slog.String("bid", bid.String()),
				slog.String("target", target.String()),
			)
			if _, ok := ledger.ClosePosition(ctx, pos.ID, sellPrice, tick); ok {
				sold = true
				budget.consume(pos.Amount)
			}
		}
		if sold && !r.cfg.MultipleSellOnTick {
			break
		}
	}
	return sold
}

// LadderRule sells a position once the bid reaches its open rate grown by
// the ladder's current percent. The ladder climbs after a tick with a sale
// and descends after a tick that tried to sell and could not.
type LadderRule struct {
	cfg    Config
	ladder *Ladder
	logger *slog.Logger
}

// NewLadderRule creates the "floating" sell rule over ladder.
func NewLadderRule(cfg Config, ladder *Ladder, logger *slog.Logger) *LadderRule {
	return &LadderRule{
		cfg:    cfg,
		ladder: ladder,
		logger: logger.With(slog.String("rule", TypeFloating)),
	}
}

// Name returns TypeFloating.
func (r *LadderRule) Name() string { return TypeFloating }

// Ladder exposes the step ladder for stats and persistence.
func (r *LadderRule) Ladder() *Ladder { return r.ladder }

// AttemptSell closes positions whose target at the current ladder step is
// covered by the bid, then moves the ladder up on a sale or down on a miss.
func (r *LadderRule) AttemptSell(ctx context.Context, ledger *Ledger, tick domain.Tick) bool {
	bid := tick.BidPrice()
	sellPrice := bid.Mul(r.cfg.SellPriceDiscount).RoundBank(r.cfg.PriceDigits)
	multiplier := r.ladder.Current().Div(decimal.NewFromInt(100)).Add(decimal.NewFromInt(1))
	budget := newBidBudget(tick)

	tried, sold := false, false
	for _, pos := range ledger.OpenForSale() {
		if budget.fits(pos.Amount) {
			tried = true
			target := pos.OpenRate.Mul(multiplier)
			if bid.GreaterThanOrEqual(target) {
				r.logger.DebugContext(ctx, "sell signal",
					slog.String("id", pos.ID),
					slog.String("bid", bid.String()),
					slog.String("target", target.String()),
					slog.String("step", r.ladder.Current().String()),
				)
				if _, ok := ledger.ClosePosition(ctx, pos.ID, sellPrice, tick); ok {
					sold = true
					budget.consume(pos.Amount)
				}
			}
		}
		if sold && !r.cfg.MultipleSellOnTick {
			break
		}
	}

	if tried {
		if sold {
			r.ladder.Advance()
		} else {
			r.ladder.Retreat()
		}
	}
	return sold
}
