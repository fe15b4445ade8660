// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
)

// Store is the durable transaction-metadata cache. It is an optimization,
// not a correctness requirement: callers treat read failures as an empty
// cache and write failures as best-effort.
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Cache operations
	Load(ctx context.Context) (map[string]models.TransactionMeta, error)
	PutMany(ctx context.Context, entries map[string]models.TransactionMeta) error

	// Maintenance operations
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (*CacheStats, error)
}

// CacheStats provides cache statistics
type CacheStats struct {
	TotalEntries   int64      `json:"total_entries"`
	OldestCachedAt *time.Time `json:"oldest_cached_at,omitempty"`
	NewestCachedAt *time.Time `json:"newest_cached_at,omitempty"`
}

// StorageConfig holds cache storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
