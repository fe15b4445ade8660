// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStore creates a new SQLite cache store instance
func NewSQLiteStore(config *StorageConfig) *SQLiteStore {
	return &SQLiteStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStore) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeCache, "Failed to create cache directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite cache connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite cache connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying cache migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeCache,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	return nil
}

// Load reads all cached entries. Malformed rows are skipped rather than
// failing the whole read: the cache degrades, it never blocks aggregation.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]models.TransactionMeta, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, timestamp_iso, sender, cached_at FROM tx_meta")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeCache, "Failed to load cache", err.Error())
	}
	defer rows.Close()

	entries := make(map[string]models.TransactionMeta)
	for rows.Next() {
		var hash, timestampISO string
		var sender sql.NullString
		var cachedAt int64

		if err := rows.Scan(&hash, &timestampISO, &sender, &cachedAt); err != nil {
			s.logger.WithError(err).Warn("Skipping malformed cache row")
			continue
		}

		entries[hash] = models.TransactionMeta{
			TimestampISO: timestampISO,
			Sender:       sender.String,
			CachedAt:     cachedAt,
		}
	}

	return entries, rows.Err()
}

// PutMany upserts entries, merging with existing rows rather than replacing
// the whole cache.
func (s *SQLiteStore) PutMany(ctx context.Context, entries map[string]models.TransactionMeta) error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tx_meta (hash, timestamp_iso, sender, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			timestamp_iso = excluded.timestamp_iso,
			sender = excluded.sender,
			cached_at = excluded.cached_at
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to prepare upsert", err.Error())
	}
	defer stmt.Close()

	for hash, meta := range entries {
		sender := sql.NullString{String: meta.Sender, Valid: meta.Sender != ""}
		if _, err := stmt.ExecContext(ctx, hash, meta.TimestampISO, sender, meta.CachedAt); err != nil {
			return utils.NewAppError(utils.ErrCodeCache, "Failed to upsert cache entry", err.Error())
		}
	}

	return tx.Commit()
}

// Prune deletes entries cached before the given time
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM tx_meta WHERE cached_at < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeCache, "Failed to prune cache", err.Error())
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Debug("Pruned stale cache entries")
	}
	return deleted, nil
}

// Stats returns cache statistics
func (s *SQLiteStore) Stats(ctx context.Context) (*CacheStats, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}

	stats := &CacheStats{}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tx_meta").Scan(&stats.TotalEntries)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeCache, "Failed to read cache stats", err.Error())
	}

	if stats.TotalEntries > 0 {
		var oldest, newest int64
		err = s.db.QueryRowContext(ctx,
			"SELECT MIN(cached_at), MAX(cached_at) FROM tx_meta").Scan(&oldest, &newest)
		if err == nil {
			oldestTime := time.UnixMilli(oldest)
			newestTime := time.UnixMilli(newest)
			stats.OldestCachedAt = &oldestTime
			stats.NewestCachedAt = &newestTime
		}
	}

	return stats, nil
}
