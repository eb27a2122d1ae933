package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// ParseRates decodes a rate history. The first row is a header and is
// always skipped. Column 0 holds an optional timestamp (unix seconds, unix
// milliseconds or RFC 3339) and column 1 the price; a single-column file is
// read as bare prices. Ticks are numbered from zero.
func ParseRates(r io.Reader) ([]domain.Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var ticks []domain.Tick
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: rates line %d: %w", line, err)
		}
		if line == 1 || len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}

		var (
			at       time.Time
			rawPrice string
		)
		if len(rec) == 1 {
			rawPrice = rec[0]
		} else {
			at = parseTimestamp(rec[0])
			rawPrice = rec[1]
		}

		price, err := decimal.NewFromString(strings.TrimSpace(rawPrice))
		if err != nil {
			return nil, fmt.Errorf("feed: rates line %d: price %q: %w", line, rawPrice, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("feed: rates line %d: price must be positive, got %s", line, price)
		}

		ticks = append(ticks, domain.Tick{
			Number: int64(len(ticks)),
			Time:   at,
			Price:  price,
		})
	}
	return ticks, nil
}

// parseTimestamp returns the zero time for anything it does not recognise.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// ReplaySource replays a fixed tick sequence.
type ReplaySource struct {
	ticks []domain.Tick
	pos   int
}

var _ domain.TickSource = (*ReplaySource)(nil)

// NewReplaySource creates a source over ticks.
func NewReplaySource(ticks []domain.Tick) *ReplaySource {
	return &ReplaySource{ticks: ticks}
}

// Next returns the next tick or domain.ErrEndOfStream.
func (r *ReplaySource) Next(ctx context.Context) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}
	if r.pos >= len(r.ticks) {
		return domain.Tick{}, domain.ErrEndOfStream
	}
	t := r.ticks[r.pos]
	r.pos++
	return t, nil
}

// Len returns the total number of ticks.
func (r *ReplaySource) Len() int { return len(r.ticks) }
