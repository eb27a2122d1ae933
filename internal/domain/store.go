package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// StateStore persists opaque state blobs keyed by instrument symbol.
// Load returns ErrNotFound when nothing is stored under key.
type StateStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Drop(ctx context.Context, key string) error
}

// PositionJournal is an append-only record of position opens and closes.
type PositionJournal interface {
	RecordOpen(ctx context.Context, symbol string, pos Position) error
	RecordClose(ctx context.Context, symbol string, pos Position) error
	ListHistory(ctx context.Context, symbol string, opts ListOpts) ([]Position, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles requests sharing a key to limit per window.
type RateLimiter interface {
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}
