// Package snapshot persists engine run state as a versioned JSON document so a
// restarted session resumes with its positions, history and counters intact.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/strategy"
	"github.com/shopspring/decimal"
)

// Version is the schema version written by Encode. Decode rejects any other.
const Version = 1

type document struct {
	Version   int          `json:"version"`
	Symbol    string       `json:"symbol"`
	SavedAt   time.Time    `json:"saved_at"`
	StartedAt time.Time    `json:"started_at"`
	Open      []positionV1 `json:"open_positions"`
	Closed    []positionV1 `json:"closed_positions"`
	History   []tickV1     `json:"history"`
	OnHold    *onHoldV1    `json:"on_hold,omitempty"`
	Ladder    *ladderV1    `json:"ladder,omitempty"`
	LastBuy   lastBuyV1    `json:"last_buy"`
}

type positionV1 struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	OpenRate  decimal.Decimal `json:"open_rate"`
	OpenTick  int64           `json:"open_tick"`
	OpenedAt  time.Time       `json:"opened_at"`
	CloseRate decimal.Decimal `json:"close_rate"`
	CloseTick int64           `json:"close_tick"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
}

type tickV1 struct {
	Number int64           `json:"number"`
	Time   time.Time       `json:"time"`
	Price  decimal.Decimal `json:"price"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	BidQty decimal.Decimal `json:"bid_qty"`
	AskQty decimal.Decimal `json:"ask_qty"`
}

type onHoldV1 struct {
	Quantity   decimal.Decimal `json:"quantity"`
	BuyAmount  decimal.Decimal `json:"buy_amount"`
	TickNumber int64           `json:"tick_number"`
	TickRate   decimal.Decimal `json:"tick_rate"`
}

type ladderV1 struct {
	Cursor      int             `json:"cursor"`
	PeakPercent decimal.Decimal `json:"peak_percent"`
	PeakTick    int64           `json:"peak_tick"`
}

type lastBuyV1 struct {
	Tick  int64           `json:"tick"`
	Price decimal.Decimal `json:"price"`
}

// Encode serialises st under symbol.
func Encode(symbol string, st strategy.RunState, savedAt time.Time) ([]byte, error) {
	doc := document{
		Version:   Version,
		Symbol:    symbol,
		SavedAt:   savedAt.UTC(),
		StartedAt: st.StartedAt,
		Open:      make([]positionV1, 0, len(st.Open)),
		Closed:    make([]positionV1, 0, len(st.Closed)),
		History:   make([]tickV1, 0, len(st.History)),
		LastBuy:   lastBuyV1{Tick: st.LastBuyTick, Price: st.LastBuyPrice},
	}
	for _, p := range st.Open {
		doc.Open = append(doc.Open, fromPosition(p))
	}
	for _, p := range st.Closed {
		doc.Closed = append(doc.Closed, fromPosition(p))
	}
	for _, t := range st.History {
		doc.History = append(doc.History, tickV1(t))
	}
	if st.OnHold != nil {
		oh := onHoldV1(*st.OnHold)
		doc.OnHold = &oh
	}
	if st.HasLadder {
		doc.Ladder = &ladderV1{
			Cursor:      st.LadderCursor,
			PeakPercent: st.LadderPeakPercent,
			PeakTick:    st.LadderPeakTick,
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return data, nil
}

// Decode parses and validates a document. Any structural or semantic problem
// yields an error and a zero RunState; partial results are never returned.
func Decode(data []byte) (strategy.RunState, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return strategy.RunState{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if doc.Version != Version {
		return strategy.RunState{}, fmt.Errorf("snapshot: version %d: %w", doc.Version, domain.ErrStateVersion)
	}
	if err := doc.validate(); err != nil {
		return strategy.RunState{}, fmt.Errorf("snapshot: %w", err)
	}

	st := strategy.RunState{
		StartedAt:    doc.StartedAt,
		Open:         make([]domain.Position, 0, len(doc.Open)),
		Closed:       make([]domain.Position, 0, len(doc.Closed)),
		History:      make([]domain.Tick, 0, len(doc.History)),
		LastBuyTick:  doc.LastBuy.Tick,
		LastBuyPrice: doc.LastBuy.Price,
	}
	for _, p := range doc.Open {
		st.Open = append(st.Open, p.toPosition())
	}
	for _, p := range doc.Closed {
		st.Closed = append(st.Closed, p.toPosition())
	}
	for _, t := range doc.History {
		st.History = append(st.History, domain.Tick(t))
	}
	if doc.OnHold != nil {
		oh := domain.OnHold(*doc.OnHold)
		st.OnHold = &oh
	}
	if doc.Ladder != nil {
		st.HasLadder = true
		st.LadderCursor = doc.Ladder.Cursor
		st.LadderPeakPercent = doc.Ladder.PeakPercent
		st.LadderPeakTick = doc.Ladder.PeakTick
	}
	return st, nil
}

func (doc *document) validate() error {
	seen := make(map[string]bool, len(doc.Open)+len(doc.Closed))
	check := func(p positionV1, wantClosed bool) error {
		switch {
		case p.ID == "":
			return errors.New("position without id")
		case seen[p.ID]:
			return fmt.Errorf("position %s: duplicate id", p.ID)
		case !p.Amount.IsPositive():
			return fmt.Errorf("position %s: non-positive amount", p.ID)
		case !p.OpenRate.IsPositive():
			return fmt.Errorf("position %s: non-positive open rate", p.ID)
		case wantClosed && p.ClosedAt == nil:
			return fmt.Errorf("position %s: closed without close time", p.ID)
		case !wantClosed && p.ClosedAt != nil:
			return fmt.Errorf("position %s: open with close time", p.ID)
		}
		seen[p.ID] = true
		return nil
	}
	for _, p := range doc.Open {
		if err := check(p, false); err != nil {
			return err
		}
	}
	for _, p := range doc.Closed {
		if err := check(p, true); err != nil {
			return err
		}
	}
	for i := 1; i < len(doc.History); i++ {
		if doc.History[i].Number <= doc.History[i-1].Number {
			return fmt.Errorf("history not increasing at %d", doc.History[i].Number)
		}
	}
	if doc.Ladder != nil && doc.Ladder.Cursor < 0 {
		return fmt.Errorf("negative ladder cursor %d", doc.Ladder.Cursor)
	}
	return nil
}

func fromPosition(p domain.Position) positionV1 { return positionV1(p) }

func (p positionV1) toPosition() domain.Position { return domain.Position(p) }

// Snapshotter saves and restores run state through a StateStore.
type Snapshotter struct {
	store  domain.StateStore
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Snapshotter backed by store.
func New(store domain.StateStore, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "snapshot")),
	}
}

func key(symbol string) string { return "state:" + symbol }

// Save persists st for symbol.
func (s *Snapshotter) Save(ctx context.Context, symbol string, st strategy.RunState) error {
	data, err := Encode(symbol, st, s.now())
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, key(symbol), data); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", symbol, err)
	}
	return nil
}

// Load returns the persisted state for symbol. It reports false for a cold
// start: nothing stored, an unreadable store, or a document that fails to
// decode. Failures are logged and never surface as errors.
func (s *Snapshotter) Load(ctx context.Context, symbol string) (strategy.RunState, bool) {
	data, err := s.store.Load(ctx, key(symbol))
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "no saved state", slog.String("symbol", symbol))
		return strategy.RunState{}, false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "state load failed, starting cold",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return strategy.RunState{}, false
	}

	st, err := Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "saved state rejected, starting cold",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return strategy.RunState{}, false
	}
	s.logger.InfoContext(ctx, "state restored",
		slog.String("symbol", symbol),
		slog.Int("open", len(st.Open)),
		slog.Int("closed", len(st.Closed)),
	)
	return st, true
}

// Drop removes the persisted state for symbol.
func (s *Snapshotter) Drop(ctx context.Context, symbol string) error {
	if err := s.store.Drop(ctx, key(symbol)); err != nil {
		return fmt.Errorf("snapshot: drop %s: %w", symbol, err)
	}
	return nil
}
