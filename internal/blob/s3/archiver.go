package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// Archiver uploads end-of-session artefacts: the results document and the
// position journal for the traded symbol.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver that uploads through writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveResults uploads v as indented JSON to
// results/<symbol>/<timestamp>.json and returns the key.
func (a *Archiver) ArchiveResults(ctx context.Context, symbol string, at time.Time, v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive results marshal: %w", err)
	}
	path := archivePath("results", symbol, at, "json")
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive results upload: %w", err)
	}
	return path, nil
}

// ArchivePositions uploads positions as JSONL to
// positions/<symbol>/<timestamp>.jsonl and returns the key. Nothing is
// uploaded for an empty slice.
func (a *Archiver) ArchivePositions(ctx context.Context, symbol string, at time.Time, positions []domain.Position) (string, error) {
	if len(positions) == 0 {
		return "", nil
	}
	records := make([]positionRecord, 0, len(positions))
	for _, p := range positions {
		records = append(records, toRecord(symbol, p))
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}
	path := archivePath("positions", symbol, at, "jsonl")
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive positions upload: %w", err)
	}
	return path, nil
}

type positionRecord struct {
	Symbol    string     `json:"symbol"`
	ID        string     `json:"id"`
	Amount    string     `json:"amount"`
	OpenRate  string     `json:"open_rate"`
	OpenTick  int64      `json:"open_tick"`
	OpenedAt  time.Time  `json:"opened_at"`
	CloseRate string     `json:"close_rate,omitempty"`
	CloseTick int64      `json:"close_tick,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func toRecord(symbol string, p domain.Position) positionRecord {
	r := positionRecord{
		Symbol:   symbol,
		ID:       p.ID,
		Amount:   p.Amount.String(),
		OpenRate: p.OpenRate.String(),
		OpenTick: p.OpenTick,
		OpenedAt: p.OpenedAt,
	}
	if p.IsClosed() {
		r.CloseRate = p.CloseRate.String()
		r.CloseTick = p.CloseTick
		r.ClosedAt = p.ClosedAt
	}
	return r
}

// archivePath builds the key for an archive object, partitioned by symbol.
//
//	results/SOLUSDT/20250114T101500Z.json
//	positions/SOLUSDT/20250114T101500Z.jsonl
func archivePath(kind, symbol string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", kind, symbol, at.UTC().Format("20060102T150405Z"), ext)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
