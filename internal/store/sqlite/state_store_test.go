package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

func TestStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx, "state:SOLUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Save(ctx, "state:SOLUSDT", []byte("one")))
	require.NoError(t, store.Save(ctx, "state:SOLUSDT", []byte("two")))
	require.NoError(t, store.Save(ctx, "state:ETHUSDT", []byte("eth")))

	data, err := store.Load(ctx, "state:SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, store.Drop(ctx, "state:SOLUSDT"))
	_, err = store.Load(ctx, "state:SOLUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	data, err = reopened.Load(ctx, "state:ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "eth", string(data))
}
