package strategy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Ladder is an ordered list of sell-percent steps with a cursor that moves
// one step at a time and is clamped at both ends. It also remembers the
// highest step reached and the tick it was reached on.
type Ladder struct {
	steps  []decimal.Decimal
	cursor int

	peak     decimal.Decimal
	peakTick int64
}

// NewLadder builds a ladder positioned on its first step.
func NewLadder(steps []decimal.Decimal) (*Ladder, error) {
	if len(steps) == 0 {
		return nil, errors.New("strategy: ladder has no steps")
	}
	return &Ladder{steps: append([]decimal.Decimal(nil), steps...)}, nil
}

// LoadLadder reads steps from a CSV file, one percent per row in the first
// column. Blank rows and a non-numeric header row are skipped.
func LoadLadder(path string) (*Ladder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: open ladder: %w", err)
	}
	defer f.Close()

	steps, err := ParseLadder(f)
	if err != nil {
		return nil, fmt.Errorf("strategy: %s: %w", path, err)
	}
	return NewLadder(steps)
}

// ParseLadder decodes ladder steps from r.
func ParseLadder(r io.Reader) ([]decimal.Decimal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var steps []decimal.Decimal
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ladder row %d: %w", row+1, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(rec[0]))
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("ladder row %d: %w", row+1, err)
		}
		steps = append(steps, v)
	}
	return steps, nil
}

// Current returns the step under the cursor.
func (l *Ladder) Current() decimal.Decimal { return l.steps[l.cursor] }

// Advance moves one step up, staying on the last step.
func (l *Ladder) Advance() {
	if l.cursor < len(l.steps)-1 {
		l.cursor++
	}
}

// Retreat moves one step down, staying on the first step.
func (l *Ladder) Retreat() {
	if l.cursor > 0 {
		l.cursor--
	}
}

// Cursor returns the current index.
func (l *Ladder) Cursor() int { return l.cursor }

// SetCursor moves the cursor to i, clamped into range.
func (l *Ladder) SetCursor(i int) {
	switch {
	case i < 0:
		l.cursor = 0
	case i >= len(l.steps):
		l.cursor = len(l.steps) - 1
	default:
		l.cursor = i
	}
}

// Len returns the number of steps.
func (l *Ladder) Len() int { return len(l.steps) }

// ObservePeak records the current step as the peak when it is at least the
// recorded peak.
func (l *Ladder) ObservePeak(tick int64) {
	if cur := l.Current(); cur.GreaterThanOrEqual(l.peak) {
		l.peak = cur
		l.peakTick = tick
	}
}

// Peak returns the highest step reached and the tick it was reached on.
func (l *Ladder) Peak() (decimal.Decimal, int64) { return l.peak, l.peakTick }

// SetPeak restores a persisted peak marker.
func (l *Ladder) SetPeak(percent decimal.Decimal, tick int64) {
	l.peak = percent
	l.peakTick = tick
}
