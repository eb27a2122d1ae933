package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

// QuoteFetcher returns the current best bid/ask. *binance.Client
// implements it.
type QuoteFetcher interface {
	BookTicker(ctx context.Context, symbol string) (binance.BookTicker, error)
}

// Poller is a live TickSource that requests the book ticker on every call.
// A tick number is consumed only by a successful fetch.
type Poller struct {
	fetcher QuoteFetcher
	symbol  string
	last    int64
	now     func() time.Time
	logger  *slog.Logger
}

var _ domain.TickSource = (*Poller)(nil)

// NewPoller creates a poller whose first tick is numbered startAfter+1.
// Pass -1 for a fresh session.
func NewPoller(fetcher QuoteFetcher, symbol string, startAfter int64, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher: fetcher,
		symbol:  symbol,
		last:    startAfter,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "poller"), slog.String("symbol", symbol)),
	}
}

// Next fetches one quote. Errors are transient; the caller may retry.
func (p *Poller) Next(ctx context.Context) (domain.Tick, error) {
	bt, err := p.fetcher.BookTicker(ctx, p.symbol)
	if err != nil {
		p.logger.WarnContext(ctx, "book ticker fetch failed", slog.String("error", err.Error()))
		return domain.Tick{}, fmt.Errorf("feed: poll %s: %w", p.symbol, err)
	}
	if !bt.BidPrice.IsPositive() || !bt.AskPrice.IsPositive() {
		return domain.Tick{}, fmt.Errorf("feed: poll %s: empty book", p.symbol)
	}
	p.last++
	return bt.ToTick(p.last, p.now().UTC()), nil
}
