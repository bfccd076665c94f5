package services

import (
	"context"
	"encoding/json"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
)

// AllotmentCachePrefix prefixes the store key of each IPO's cached results
const AllotmentCachePrefix = "ALLOTMENT_CACHE_"

// AllotmentCacheKey returns the store key for an IPO
func AllotmentCacheKey(ipoName string) string {
	return AllotmentCachePrefix + ipoName
}

// AllotmentCacheStore persists the last complete result set of each IPO
type AllotmentCacheStore struct {
	kv storage.KVStore
}

// NewAllotmentCacheStore creates a cache store over kv
func NewAllotmentCacheStore(kv storage.KVStore) *AllotmentCacheStore {
	return &AllotmentCacheStore{kv: kv}
}

// LoadRaw returns the persisted results of an IPO as stored
func (c *AllotmentCacheStore) LoadRaw(ctx context.Context, ipoName string) ([]models.AllotmentResult, error) {
	raw, found, err := c.kv.Get(ctx, AllotmentCacheKey(ipoName))
	if err != nil {
		return nil, shared.NewStorageError("read allotment cache", err)
	}
	if !found || raw == "" {
		return nil, nil
	}

	var results []models.AllotmentResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, shared.NewStorageError("decode allotment cache", err)
	}
	return results, nil
}

// Load returns the cached results of an IPO validated against the current PAN set:
// entries for PANs no longer present are dropped, duplicates keep the first entry,
// and name/source are refreshed from the PAN entry.
func (c *AllotmentCacheStore) Load(ctx context.Context, ipoName string, pans map[string]models.PANEntry) ([]models.AllotmentResult, error) {
	cached, err := c.LoadRaw(ctx, ipoName)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cached))
	valid := make([]models.AllotmentResult, 0, len(cached))
	for _, result := range cached {
		entry, ok := pans[result.PANNumber]
		if !ok || seen[result.PANNumber] {
			continue
		}
		seen[result.PANNumber] = true
		result.Name = entry.DisplayName()
		result.Source = entry.Source
		valid = append(valid, result)
	}
	return valid, nil
}

// Save replaces the cached results of an IPO with a complete result set
func (c *AllotmentCacheStore) Save(ctx context.Context, ipoName string, results []models.AllotmentResult) error {
	if results == nil {
		results = []models.AllotmentResult{}
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return shared.NewStorageError("encode allotment cache", err)
	}
	if err := c.kv.Set(ctx, AllotmentCacheKey(ipoName), string(payload)); err != nil {
		return shared.NewStorageError("write allotment cache", err)
	}
	return nil
}
