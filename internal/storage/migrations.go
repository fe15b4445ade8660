// File: internal/storage/migrations.go
package storage

// Migration represents a single schema migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migrations in order
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create tx_meta cache table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tx_meta (
					hash TEXT PRIMARY KEY,
					timestamp_iso TEXT NOT NULL,
					sender TEXT,
					cached_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_tx_meta_cached_at ON tx_meta(cached_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migrations in order
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create tx_meta cache table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tx_meta (
					hash TEXT PRIMARY KEY,
					timestamp_iso TEXT NOT NULL,
					sender TEXT,
					cached_at BIGINT NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_tx_meta_cached_at ON tx_meta(cached_at);
			`,
		},
	}
}
