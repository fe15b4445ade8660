// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/mediolano-app/mip-activity-aggregator/internal/models"
	"github.com/mediolano-app/mip-activity-aggregator/pkg/utils"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgresStore creates a new PostgreSQL cache store instance
func NewPostgresStore(config *StorageConfig) *PostgresStore {
	return &PostgresStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL cache connected")

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL cache connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate() error {
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

// Load reads all cached entries, skipping malformed rows
func (s *PostgresStore) Load(ctx context.Context) (map[string]models.TransactionMeta, error) {
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

// PutMany upserts entries, merging with existing rows
func (s *PostgresStore) PutMany(ctx context.Context, entries map[string]models.TransactionMeta) error {
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET
			timestamp_iso = EXCLUDED.timestamp_iso,
			sender = EXCLUDED.sender,
			cached_at = EXCLUDED.cached_at
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
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeCache, "Cache not connected", "")
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM tx_meta WHERE cached_at < $1", olderThan.UnixMilli())
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeCache, "Failed to prune cache", err.Error())
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// Stats returns cache statistics
func (s *PostgresStore) Stats(ctx context.Context) (*CacheStats, error) {
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
