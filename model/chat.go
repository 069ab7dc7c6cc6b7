package model

// Chat is a guild the bot serves. Reconciliation scans only active chats;
// a chat that turns out to be unreachable is deactivated, never deleted.
type Chat struct {
	GuildID    string `db:"guild_id"` // Primary Key
	Title      string `db:"title"`
	AnnounceID string `db:"announce_id"` // channel for moderation notices
	Active     bool   `db:"active"`
	UpdatedAt  int64  `db:"updated_at"`
}
