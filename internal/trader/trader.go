// Package trader drives a strategy engine from a tick source: the live loop
// with its failure ceiling and throttling, and the historical backtester.
package trader

import (
	"context"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/alanyoungcy/spotbot/internal/strategy"
)

// StateSaver persists run state between sessions. *snapshot.Snapshotter
// implements it.
type StateSaver interface {
	Save(ctx context.Context, symbol string, st strategy.RunState) error
	Load(ctx context.Context, symbol string) (strategy.RunState, bool)
	Drop(ctx context.Context, symbol string) error
}

// ResultArchiver uploads session results. *s3blob.Archiver implements it.
type ResultArchiver interface {
	ArchiveResults(ctx context.Context, symbol string, at time.Time, v any) (string, error)
	ArchivePositions(ctx context.Context, symbol string, at time.Time, positions []domain.Position) (string, error)
}

// Notifier delivers session alerts. *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EndReason explains why a session ended.
type EndReason string

const (
	EndStrategy     EndReason = "strategy"
	EndFailureLimit EndReason = "failure_limit"
	EndSignal       EndReason = "signal"
	EndOfStream     EndReason = "end_of_stream"
)

// wait blocks for d or until ctx is done, reporting whether the full
// duration elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
