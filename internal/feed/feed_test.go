package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/platform/binance"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseRates(t *testing.T) {
	input := "time,open,high\n" +
		"1700000000,100.5,101\n" +
		"\n" +
		"1700000060000,100.25,101\n" +
		"2024-01-02T03:04:05Z,99,100\n" +
		"garbage,98.5,99\n"

	ticks, err := ParseRates(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ticks, 4)

	for i, tk := range ticks {
		assert.Equal(t, int64(i), tk.Number)
	}
	assert.True(t, ticks[0].Price.Equal(d("100.5")))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ticks[0].Time)
	assert.Equal(t, time.UnixMilli(1700000060000).UTC(), ticks[1].Time)
	assert.Equal(t, 2024, ticks[2].Time.Year())
	assert.True(t, ticks[3].Time.IsZero())
}

func TestParseRatesSingleColumn(t *testing.T) {
	ticks, err := ParseRates(strings.NewReader("price\n10\n11\n"))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.True(t, ticks[1].Price.Equal(d("11")))
}

func TestParseRatesRejectsBadPrice(t *testing.T) {
	_, err := ParseRates(strings.NewReader("h,p\n1,abc\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseRates(strings.NewReader("h,p\n1,0\n"))
	assert.Error(t, err)
}

func TestReplaySource(t *testing.T) {
	src := NewReplaySource([]domain.Tick{{Number: 0, Price: d("1")}, {Number: 1, Price: d("2")}})
	ctx := context.Background()

	tk, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tk.Number)
	_, err = src.Next(ctx)
	require.NoError(t, err)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrEndOfStream)
	assert.Equal(t, 2, src.Len())
}

func TestDirRatesGlob(t *testing.T) {
	fsys := fstest.MapFS{
		"rates/2023/sol.csv":  {Data: []byte("t,p\n1,10\n")},
		"rates/2024/sol.csv":  {Data: []byte("t,p\n1,11\n2,12\n")},
		"rates/2024/notes.md": {Data: []byte("#")},
	}
	store := NewFSRates(fsys)

	names, err := store.Match(context.Background(), "rates/**/*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"rates/2023/sol.csv", "rates/2024/sol.csv"}, names)

	ticks, err := LoadRates(context.Background(), store, names[1])
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
}

type memBlobs map[string]string

func (m memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	v, ok := m[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (m memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k})
		}
	}
	return out, nil
}

func (m memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m[path]
	return ok, nil
}

func TestBlobRates(t *testing.T) {
	blobs := memBlobs{
		"rates/BINANCE_SOLUSDT, 60.csv": "t,p\n1,20\n",
		"rates/ETHUSDT.csv":             "t,p\n1,30\n",
		"other/SOLUSDT.csv":             "t,p\n1,40\n",
	}
	store := NewBlobRates(blobs, "rates")

	names, err := store.Match(context.Background(), "*SOL*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"BINANCE_SOLUSDT, 60.csv"}, names)

	ticks, err := LoadRates(context.Background(), store, names[0])
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.True(t, ticks[0].Price.Equal(d("20")))

	_, err = LoadRates(context.Background(), store, "missing.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// unlistedBlobs refuses to list so lookups must go through Exists.
type unlistedBlobs struct{ memBlobs }

func (unlistedBlobs) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, errors.New("list not allowed")
}

func TestBlobRatesLiteralNameSkipsListing(t *testing.T) {
	store := NewBlobRates(unlistedBlobs{memBlobs{"rates/ETHUSDT.csv": "t,p\n1,30\n"}}, "rates/")
	ctx := context.Background()

	names, err := store.Match(ctx, "ETHUSDT.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT.csv"}, names)

	names, err = store.Match(ctx, "SOLUSDT.csv")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = store.Match(ctx, "*.csv")
	assert.ErrorContains(t, err, "list not allowed")
}

type flakyFetcher struct {
	calls int
	fail  map[int]bool
}

func (f *flakyFetcher) BookTicker(_ context.Context, symbol string) (binance.BookTicker, error) {
	f.calls++
	if f.fail[f.calls] {
		return binance.BookTicker{}, errors.New("timeout")
	}
	return binance.BookTicker{Symbol: symbol, BidPrice: d("10"), AskPrice: d("10.1")}, nil
}

func TestPollerNumbersOnlySuccessfulFetches(t *testing.T) {
	f := &flakyFetcher{fail: map[int]bool{2: true}}
	p := NewPoller(f, "SOLUSDT", 41, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	tk, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tk.Number)
	assert.True(t, tk.Ask.Equal(d("10.1")))

	_, err = p.Next(ctx)
	assert.Error(t, err)

	tk, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(43), tk.Number)
}

type handlerSink struct{ h binance.BookTickerHandler }

func (s *handlerSink) OnBookTicker(h binance.BookTickerHandler) { s.h = h }

func TestStreamSource(t *testing.T) {
	sink := &handlerSink{}
	src := NewStreamSource(sink, -1, time.Minute)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, ErrNoQuote)

	sink.h(binance.BookTicker{BidPrice: d("5"), AskPrice: d("5.01"), BidQty: d("3")})
	tk, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tk.Number)
	assert.True(t, tk.BidQty.Equal(d("3")))

	clock = clock.Add(2 * time.Minute)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrNoQuote)
}
