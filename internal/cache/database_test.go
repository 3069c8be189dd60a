package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tradepost/tradepost/internal/models"
)

func openCacheTestStore(t *testing.T) *DatabaseStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))
	return NewDatabaseStore(db)
}

func TestIncrementWithTTL(t *testing.T) {
	store := openCacheTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, remaining, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
		require.Greater(t, remaining, time.Duration(0))
	}

	// Independent keys count separately.
	count, _, err := store.IncrementWithTTL(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSetGetDelete(t *testing.T) {
	store := openCacheTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("value"), time.Minute))

	got, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("value"), got)

	// Overwriting replaces the value.
	require.NoError(t, store.Set(ctx, "key", []byte("replaced"), time.Minute))
	got, ok, err = store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("replaced"), got)

	require.NoError(t, store.Delete(ctx, "key"))
	_, ok, err = store.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetExpiredEntry(t *testing.T) {
	store := openCacheTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), -time.Second))

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)
}
