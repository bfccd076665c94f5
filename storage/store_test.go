package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every KVStore driver must share
func exerciseStore(t *testing.T, store KVStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "ALLOTMENT_CACHE_missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "UNSAVED_PANS", `[{"pan_number":"ABCDE1234F"}]`))
	value, found, err := store.Get(ctx, "UNSAVED_PANS")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"pan_number":"ABCDE1234F"}]`, value)

	require.NoError(t, store.Set(ctx, "UNSAVED_PANS", `[]`))
	value, _, err = store.Get(ctx, "UNSAVED_PANS")
	require.NoError(t, err)
	assert.Equal(t, `[]`, value)

	require.NoError(t, store.Set(ctx, "EMPTY", ""))
	value, found, err = store.Get(ctx, "EMPTY")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, value)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Equal(t, 2, store.Size())
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Set(ctx, "k", "v"), context.Canceled)
	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerStoreInMemory(t *testing.T) {
	store, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	exerciseStore(t, store)
}

func TestBadgerStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "ALLOTMENT_CACHE_Acme", `[]`))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer func() { assert.NoError(t, reopened.Close()) }()

	value, found, err := reopened.Get(ctx, "ALLOTMENT_CACHE_Acme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, value)
}

func TestRedisStore(t *testing.T) {
	instance := miniredis.RunT(t)
	store, err := OpenRedisStore(context.Background(), "redis://"+instance.Addr())
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	exerciseStore(t, store)
	assert.True(t, instance.Exists("UNSAVED_PANS"))
}

func TestOpenRedisStoreRejectsBadURL(t *testing.T) {
	_, err := OpenRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/ipo_allotment_test?sslmode=disable"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := OpenPostgresStore(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping postgres store tests - database not available: %v", err)
		return
	}
	defer store.Close()

	_, err = store.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key IN ('UNSAVED_PANS', 'EMPTY')`)
	require.NoError(t, err)

	exerciseStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(context.Background(), shared.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = Open(context.Background(), shared.StoreConfig{Driver: "etcd"})
	require.Error(t, err)
	assert.Equal(t, shared.ErrorCategoryConfiguration, shared.CategoryOf(err))
}
