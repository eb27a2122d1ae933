package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore implements domain.StateStore with plain string keys. Values
// never expire; a session drops its key when it ends.
type StateStore struct {
	rdb *redis.Client
}

// NewStateStore creates a StateStore backed by the given Client.
func NewStateStore(c *Client) *StateStore {
	return &StateStore{rdb: c.Underlying()}
}

func (s *StateStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: load state %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load state %s: %w", key, err)
	}
	return data, nil
}

func (s *StateStore) Drop(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: drop state %s: %w", key, err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
