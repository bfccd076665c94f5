package services

import (
	"context"
	"testing"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllotmentCacheKey(t *testing.T) {
	assert.Equal(t, "ALLOTMENT_CACHE_Acme Ltd", AllotmentCacheKey("Acme Ltd"))
}

func TestAllotmentCacheLoadFiltersAgainstCurrentPANs(t *testing.T) {
	ctx := context.Background()
	cache := NewAllotmentCacheStore(storage.NewMemoryStore())

	require.NoError(t, cache.Save(ctx, "Acme Ltd", []models.AllotmentResult{
		{PANNumber: "AAAAA1111A", Name: "Old Name", Source: models.PANSourceLocal, Status: models.StatusAllotted},
		{PANNumber: "BBBBB2222B", Name: "Gone", Source: models.PANSourceLocal, Status: models.StatusNotAllotted},
		{PANNumber: "AAAAA1111A", Name: "Duplicate", Source: models.PANSourceLocal, Status: models.StatusNotApplied},
	}))

	current := map[string]models.PANEntry{
		"AAAAA1111A": cloudPAN("AAAAA1111A", "New Name"),
		"CCCCC3333C": localPAN("CCCCC3333C", ""),
	}
	loaded, err := cache.Load(ctx, "Acme Ltd", current)
	require.NoError(t, err)

	require.Len(t, loaded, 1)
	assert.Equal(t, "AAAAA1111A", loaded[0].PANNumber)
	assert.Equal(t, "New Name", loaded[0].Name)
	assert.Equal(t, models.PANSourceCloud, loaded[0].Source)
	assert.Equal(t, models.StatusAllotted, loaded[0].Status)
}

func TestAllotmentCacheMissingKey(t *testing.T) {
	cache := NewAllotmentCacheStore(storage.NewMemoryStore())
	loaded, err := cache.Load(context.Background(), "Nothing Yet", map[string]models.PANEntry{})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestAllotmentCacheDecodeFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, AllotmentCacheKey("Acme Ltd"), "{not json"))

	_, err := NewAllotmentCacheStore(kv).LoadRaw(ctx, "Acme Ltd")
	require.Error(t, err)
	assert.Equal(t, shared.ErrorCategoryStorage, shared.CategoryOf(err))
}

func TestAllotmentCacheSaveEmptySet(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	cache := NewAllotmentCacheStore(kv)

	require.NoError(t, cache.Save(ctx, "Acme Ltd", nil))
	raw, found, err := kv.Get(ctx, AllotmentCacheKey("Acme Ltd"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", raw)
}
