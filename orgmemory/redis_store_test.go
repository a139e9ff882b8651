package orgmemory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:memory:", zap.NewNop())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	snapshot := map[string][]string{
		"synthesis": {"keep values", "no metaphors"},
		"grounding": {"name the domain"},
	}
	require.NoError(t, store.Save(ctx, "task-1", snapshot))

	loaded, err := store.Load(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, loaded)
}

func TestRedisStoreMissingKey(t *testing.T) {
	store := newTestRedisStore(t)

	loaded, err := store.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRedisStoreKeysAreIsolated(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "task-a", map[string][]string{"cat": {"a"}}))
	require.NoError(t, store.Save(ctx, "task-b", map[string][]string{"cat": {"b"}}))

	a, err := store.Load(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, a["cat"])
}
