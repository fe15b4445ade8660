// File: internal/storage/factory.go
package storage

import (
	"strings"

	"github.com/mediolano-app/mip-activity-aggregator/internal/config"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// NewStore creates a cache store instance based on configuration
func NewStore(cfg *config.CacheConfig) (Store, error) {
	storageConfig := &StorageConfig{
		Type:             cfg.Type,
		ConnectionString: cfg.ConnectionString,
		MaxConnections:   cfg.MaxConnections,
		MaxIdleTime:      cfg.MaxIdleTime,
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteStore(storageConfig), nil
	case "postgres", "postgresql":
		return NewPostgresStore(storageConfig), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported cache type", cfg.Type)
	}
}

// ValidateCacheConfig validates cache configuration
func ValidateCacheConfig(cfg *config.CacheConfig) error {
	if cfg.Type == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Cache type is required", "")
	}
	if cfg.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Cache connection string is required", "")
	}
	if cfg.MaxConnections <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Max connections must be positive", "")
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite", "postgres", "postgresql":
		return nil
	default:
		return utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported cache type", "Supported types: sqlite, postgres")
	}
}
