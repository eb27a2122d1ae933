package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

// klinesPageSize is the largest page the klines endpoint serves.
const klinesPageSize = 1000

// KlineFetcher returns candles. *binance.Client implements it.
type KlineFetcher interface {
	Klines(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]binance.Kline, error)
}

// FetchRates downloads up to count candles of symbol starting at start and
// writes them as a "timestamp,price" rate file the backtester reads. The
// price is each candle's open. It returns the number of rows written.
func FetchRates(ctx context.Context, src KlineFetcher, symbol, interval string, start time.Time, count int, w io.Writer, logger *slog.Logger) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "price"}); err != nil {
		return 0, fmt.Errorf("app: fetch rates: %w", err)
	}

	written := 0
	cursor := start
	for written < count {
		page := min(count-written, klinesPageSize)
		klines, err := src.Klines(ctx, symbol, interval, cursor, page)
		if err != nil {
			return written, fmt.Errorf("app: fetch rates: %w", err)
		}
		for _, k := range klines {
			if err := cw.Write([]string{strconv.FormatInt(k.OpenTime.Unix(), 10), k.Open.String()}); err != nil {
				return written, fmt.Errorf("app: fetch rates: %w", err)
			}
			written++
		}
		logger.DebugContext(ctx, "klines page fetched",
			slog.Int("rows", len(klines)),
			slog.Int("total", written),
		)
		if len(klines) < page {
			break
		}
		cursor = klines[len(klines)-1].CloseTime.Add(time.Millisecond)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("app: fetch rates: %w", err)
	}
	return written, nil
}
