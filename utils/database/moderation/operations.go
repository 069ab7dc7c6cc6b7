package moderation

import (
	"database/sql"
	"fmt"
	"time"

	"guard-bot/model"

	"github.com/jmoiron/sqlx"
)

// AddPunishment inserts a new punishment record and returns the new record's ID.
// Any existing active punishment of the same kind for the same (guild, user)
// pair is retired first, inside the same transaction, so at no point are two
// active records of one kind visible for a member.
func AddPunishment(db *sqlx.DB, rec model.Punishment) (int64, error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin punishment transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE punishments SET active = 0 WHERE guild_id = ? AND user_id = ? AND kind = ? AND active = 1`,
		rec.GuildID, rec.UserID, rec.Kind)
	if err != nil {
		return 0, fmt.Errorf("failed to retire previous %s for user %s: %w", rec.Kind, rec.UserID, err)
	}

	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	if rec.DurationSeconds.Valid && !rec.ExpiresAt.Valid {
		rec.ExpiresAt = sql.NullInt64{Int64: rec.CreatedAt + rec.DurationSeconds.Int64, Valid: true}
	}
	rec.Active = true

	result, err := tx.NamedExec(`INSERT INTO punishments (guild_id, user_id, issuer_id, kind, reason, created_at, duration_seconds, expires_at, active)
			  VALUES (:guild_id, :user_id, :issuer_id, :kind, :reason, :created_at, :duration_seconds, :expires_at, :active)`, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to insert punishment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit punishment transaction: %w", err)
	}
	return id, nil
}

// GetActivePunishments retrieves all active punishments of a kind in a guild.
func GetActivePunishments(db *sqlx.DB, guildID, kind string) ([]model.Punishment, error) {
	var records []model.Punishment
	query := "SELECT * FROM punishments WHERE guild_id = ? AND kind = ? AND active = 1"
	err := db.Select(&records, query, guildID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get active %s punishments for guild %s: %w", kind, guildID, err)
	}
	return records, nil
}

// GetActivePunishment retrieves the active punishment of a kind for one member,
// or nil if there is none.
func GetActivePunishment(db *sqlx.DB, guildID, userID, kind string) (*model.Punishment, error) {
	var rec model.Punishment
	query := "SELECT * FROM punishments WHERE guild_id = ? AND user_id = ? AND kind = ? AND active = 1 LIMIT 1"
	err := db.Get(&rec, query, guildID, userID, kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active %s for user %s in guild %s: %w", kind, userID, guildID, err)
	}
	return &rec, nil
}

// DeactivatePunishment atomically flips a punishment from active to inactive.
// It returns true only if this call performed the flip; a false return means
// another caller already retired the record. This is the primitive that makes
// concurrent reconciliation scans safe.
func DeactivatePunishment(db *sqlx.DB, id int64) (bool, error) {
	result, err := db.Exec(`UPDATE punishments SET active = 0 WHERE punishment_id = ? AND active = 1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate punishment %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected for punishment %d: %w", id, err)
	}
	return affected == 1, nil
}

// GetPunishmentByID retrieves a single punishment record by its primary key.
func GetPunishmentByID(db *sqlx.DB, id int64) (*model.Punishment, error) {
	var rec model.Punishment
	err := db.Get(&rec, "SELECT * FROM punishments WHERE punishment_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get punishment record by id %d: %w", id, err)
	}
	return &rec, nil
}

// GetPunishmentsByUser retrieves punishment records for a member in a guild,
// optionally filtered by a start time.
func GetPunishmentsByUser(db *sqlx.DB, guildID, userID string, since *time.Time) ([]model.Punishment, error) {
	var records []model.Punishment
	query := "SELECT * FROM punishments WHERE guild_id = ? AND user_id = ?"
	args := []interface{}{guildID, userID}

	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, since.Unix())
	}
	query += " ORDER BY created_at DESC"

	err := db.Select(&records, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get punishment records for user %s: %w", userID, err)
	}
	return records, nil
}

// CountPunishmentsSince returns the punishment count per kind in a guild since
// the given time. Used by the stats handler.
func CountPunishmentsSince(db *sqlx.DB, guildID string, since time.Time) (map[string]int, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM punishments WHERE guild_id = ? AND created_at >= ? GROUP BY kind`,
		guildID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to count punishments for guild %s: %w", guildID, err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan punishment stats row: %w", err)
		}
		stats[kind] = count
	}
	return stats, rows.Err()
}
