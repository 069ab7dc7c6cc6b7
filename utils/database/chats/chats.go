package chats

import (
	"database/sql"
	"fmt"
	"time"

	"guard-bot/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Init initializes the chat registry and ensures the table exists.
func Init(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chat registry: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS chats (
        guild_id TEXT PRIMARY KEY,
        title TEXT DEFAULT '',
        announce_id TEXT DEFAULT '',
        active INTEGER NOT NULL DEFAULT 1,
        updated_at INTEGER NOT NULL
    );`
	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create chats table: %w", err)
	}

	return db, nil
}

// UpsertChat registers a guild or refreshes its details, reactivating it if
// it was previously marked unreachable.
func UpsertChat(db *sqlx.DB, chat model.Chat) error {
	chat.Active = true
	chat.UpdatedAt = time.Now().Unix()
	_, err := db.NamedExec(`INSERT INTO chats (guild_id, title, announce_id, active, updated_at)
        VALUES (:guild_id, :title, :announce_id, :active, :updated_at)
        ON CONFLICT(guild_id) DO UPDATE SET title = :title, announce_id = :announce_id, active = 1, updated_at = :updated_at`, chat)
	if err != nil {
		return fmt.Errorf("failed to upsert chat %s: %w", chat.GuildID, err)
	}
	return nil
}

// GetActiveChats returns all chats the bot currently serves.
func GetActiveChats(db *sqlx.DB) ([]model.Chat, error) {
	var out []model.Chat
	if err := db.Select(&out, "SELECT * FROM chats WHERE active = 1"); err != nil {
		return nil, fmt.Errorf("failed to get active chats: %w", err)
	}
	return out, nil
}

// GetChat returns one chat record, or nil when unknown.
func GetChat(db *sqlx.DB, guildID string) (*model.Chat, error) {
	var chat model.Chat
	err := db.Get(&chat, "SELECT * FROM chats WHERE guild_id = ?", guildID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", guildID, err)
	}
	return &chat, nil
}

// DeactivateChat marks a chat unreachable so future scans skip it.
func DeactivateChat(db *sqlx.DB, guildID string) error {
	_, err := db.Exec("UPDATE chats SET active = 0, updated_at = ? WHERE guild_id = ?", time.Now().Unix(), guildID)
	if err != nil {
		return fmt.Errorf("failed to deactivate chat %s: %w", guildID, err)
	}
	return nil
}
