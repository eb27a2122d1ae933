package redis

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// testClient connects to SPOTBOT_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SPOTBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SPOTBOT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 4}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "spotbot", opts.ClientName)
	assert.True(t, opts.ContextTimeoutEnabled)
	assert.Nil(t, opts.TLSConfig)

	opts = ClientConfig{Addr: "cache:6380", TLSEnabled: true}.options()
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}

func TestStateStoreRoundTrip(t *testing.T) {
	c := testClient(t)
	store := NewStateStore(c)
	ctx := context.Background()
	key := "state:test-" + uuid.NewString()
	t.Cleanup(func() { _ = store.Drop(ctx, key) })

	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(ctx, key, []byte(`{"version":1}`)))
	data, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(data))

	require.NoError(t, store.Drop(ctx, key))
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManagerExclusive(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	key := SessionKey("TEST" + uuid.NewString())

	unlock, err := lm.Acquire(ctx, key, 3*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, 3*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, 3*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiterWindow(t *testing.T) {
	c := testClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()
	key := "orders:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Underlying().Del(ctx, rateLimitKey(key)).Err() })

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(waitCtx, key, 3, time.Minute))
}
