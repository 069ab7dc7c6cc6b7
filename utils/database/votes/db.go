package votes

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Init initializes the vote database and ensures all necessary tables are created.
// Votes live in their own database file to keep ballot traffic away from the
// moderation records.
func Init(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vote database: %w", err)
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS active_votes (
	          vote_id INTEGER PRIMARY KEY AUTOINCREMENT,
	          guild_id TEXT NOT NULL,
	          target_id TEXT NOT NULL,
	          creator_id TEXT NOT NULL,
	          mute_duration INTEGER NOT NULL,
	          required_ballots INTEGER NOT NULL,
	          window_minutes INTEGER NOT NULL,
	          created_at INTEGER NOT NULL,
	          deadline INTEGER NOT NULL,
	          pinned INTEGER NOT NULL DEFAULT 0,
	          channel_id TEXT DEFAULT '',
	          message_id TEXT DEFAULT ''
	      );`,
		`CREATE TABLE IF NOT EXISTS ballots (
	          vote_id INTEGER NOT NULL,
	          voter_id TEXT NOT NULL,
	          choice TEXT NOT NULL,
	          cast_at INTEGER NOT NULL,
	          last_change_at INTEGER NOT NULL,
	          PRIMARY KEY (vote_id, voter_id)
	      );`,
		`CREATE TABLE IF NOT EXISTS vote_cooldowns (
	          guild_id TEXT PRIMARY KEY,
	          last_created_at INTEGER NOT NULL
	      );`,
		`CREATE TABLE IF NOT EXISTS vote_history (
	          vote_id INTEGER,
	          guild_id TEXT NOT NULL,
	          target_id TEXT NOT NULL,
	          creator_id TEXT NOT NULL,
	          mute_duration INTEGER NOT NULL,
	          required_ballots INTEGER NOT NULL,
	          window_minutes INTEGER NOT NULL,
	          created_at INTEGER NOT NULL,
	          finished_at INTEGER NOT NULL,
	          outcome TEXT NOT NULL,
	          reason TEXT DEFAULT '',
	          votes_yes INTEGER NOT NULL,
	          votes_no INTEGER NOT NULL
	      );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_votes_guild ON active_votes (guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ballots_vote ON ballots (vote_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_history_guild ON vote_history (guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_history_target ON vote_history (target_id)`,
	}
	for _, stmt := range schemas {
		if _, err = db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create vote schema: %w", err)
		}
	}

	return db, nil
}
