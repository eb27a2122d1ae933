package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

// ErrNoQuote is returned by StreamSource when no fresh quote is available.
var ErrNoQuote = errors.New("feed: no fresh quote")

// BookTickerSubscriber delivers streamed book tickers. *binance.StreamClient
// implements it.
type BookTickerSubscriber interface {
	OnBookTicker(h binance.BookTickerHandler)
}

// StreamSource turns pushed book-ticker updates into a pull TickSource.
// Next returns the most recent quote; quotes older than maxAge count as
// fetch failures.
type StreamSource struct {
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	latest   binance.BookTicker
	received time.Time
	last     int64
}

var _ domain.TickSource = (*StreamSource)(nil)

// NewStreamSource registers on sub and numbers ticks from startAfter+1.
func NewStreamSource(sub BookTickerSubscriber, startAfter int64, maxAge time.Duration) *StreamSource {
	s := &StreamSource{
		maxAge: maxAge,
		now:    time.Now,
		last:   startAfter,
	}
	sub.OnBookTicker(s.update)
	return s
}

func (s *StreamSource) update(bt binance.BookTicker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = bt
	s.received = s.now()
}

// Next returns the latest quote as a tick.
func (s *StreamSource) Next(ctx context.Context) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.received.IsZero() {
		return domain.Tick{}, ErrNoQuote
	}
	if s.maxAge > 0 && now.Sub(s.received) > s.maxAge {
		return domain.Tick{}, fmt.Errorf("%w: last update %s ago", ErrNoQuote, now.Sub(s.received).Round(time.Millisecond))
	}
	s.last++
	return s.latest.ToTick(s.last, now.UTC()), nil
}
