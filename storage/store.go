// Package storage provides the key-value persistence surface used for the
// unsaved PAN list and the per-IPO allotment cache.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fenilmodi00/ipo-allotment-client/shared"
)

// KVStore is a string key-value store. Get reports found=false for missing keys.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg shared.StoreConfig) (KVStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(cfg.BadgerPath)
	case "redis":
		return OpenRedisStore(ctx, cfg.RedisURL)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, shared.NewServiceError(
			shared.ErrorCategoryConfiguration,
			"UNKNOWN_STORE_DRIVER",
			fmt.Sprintf("unknown store driver %q", cfg.Driver),
			"Storage",
			"open",
			false,
			nil,
		)
	}
}
