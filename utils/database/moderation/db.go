package moderation

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Init initializes the moderation database and ensures all necessary tables are created.
func Init(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to moderation database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS punishments (
	          punishment_id INTEGER PRIMARY KEY AUTOINCREMENT,
	          guild_id TEXT NOT NULL,
	          user_id TEXT NOT NULL,
	          issuer_id TEXT NOT NULL,
	          kind TEXT NOT NULL,
	          reason TEXT DEFAULT '',
	          created_at INTEGER NOT NULL,
	          duration_seconds INTEGER,
	          expires_at INTEGER,
	          active INTEGER NOT NULL DEFAULT 1
	      );`
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create punishments table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_punishments_guild_kind_active ON punishments (guild_id, kind, active)`,
		`CREATE INDEX IF NOT EXISTS idx_punishments_user ON punishments (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_punishments_expires ON punishments (expires_at)`,
	}
	for _, stmt := range indexes {
		if _, err = db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	return db, nil
}
