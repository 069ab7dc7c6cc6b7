package model

import "database/sql"

// Punishment kinds. Only mutes and bans carry an expiry; warns are
// record-only and never reversed.
const (
	PunishmentWarn = "warn"
	PunishmentMute = "mute"
	PunishmentBan  = "ban"
)

// Punishment represents a single moderation record in the database.
// The database table is named 'punishments'.
type Punishment struct {
	PunishmentID    int64         `db:"punishment_id"` // Primary Key, Auto-increment
	GuildID         string        `db:"guild_id"`
	UserID          string        `db:"user_id"`
	IssuerID        string        `db:"issuer_id"`
	Kind            string        `db:"kind"`
	Reason          string        `db:"reason"`
	CreatedAt       int64         `db:"created_at"`
	DurationSeconds sql.NullInt64 `db:"duration_seconds"` // NULL = permanent
	ExpiresAt       sql.NullInt64 `db:"expires_at"`       // set iff duration_seconds is set
	Active          bool          `db:"active"`
}

// Expired reports whether the punishment has a deadline that already passed.
func (p *Punishment) Expired(nowUnix int64) bool {
	return p.ExpiresAt.Valid && p.ExpiresAt.Int64 <= nowUnix
}
