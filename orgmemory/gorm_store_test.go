package orgmemory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestGormStoreRoundTrip(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	snapshot := map[string][]string{
		"synthesis": {"first", "second", "third"},
		"structure": {"use sections"},
	}
	require.NoError(t, store.Save(ctx, "run-1", snapshot))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, loaded)
}

func TestGormStoreLoadMissingKey(t *testing.T) {
	store := newTestGormStore(t)

	loaded, err := store.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestGormStoreSaveReplacesSnapshot(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "run-1", map[string][]string{"cat": {"old"}}))
	require.NoError(t, store.Save(ctx, "run-1", map[string][]string{"cat": {"old", "new"}}))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, loaded["cat"])
}

func TestGormStorePreservesLessonOrder(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	lessons := []string{"z lesson", "a lesson", "m lesson"}
	require.NoError(t, store.Save(ctx, "run-1", map[string][]string{"cat": lessons}))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	// 按写入位置排序，不按字典序
	assert.Equal(t, lessons, loaded["cat"])
}
