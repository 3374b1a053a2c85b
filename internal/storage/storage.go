// Package storage provides the key/value backends used for session persistence.
package storage

import (
	"context"
	"fmt"

	"snapgram/internal/config"
)

// KV is a minimal byte-oriented key/value store.
// Get reports found=false for a missing key without an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the KV selected by cfg.SessionBackend.
func Open(cfg *config.Config) (KV, error) {
	switch cfg.SessionBackend {
	case "", config.SessionBackendMemory:
		return NewMemory(), nil
	case config.SessionBackendRedis:
		kv, err := NewRedis(cfg.RedisURL, cfg.SessionKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis session store: %w", err)
		}
		return kv, nil
	case config.SessionBackendSQLite:
		kv, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite session store: %w", err)
		}
		return kv, nil
	case config.SessionBackendPostgres:
		kv, err := OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres session store: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
