package model

import "time"

// Platform is the chat platform the bot moderates. Implementations talk to
// Discord; tests substitute fakes. All calls are expected to go through the
// shared dispatcher so the two time-driven components never overwhelm the
// platform independently.
type Platform interface {
	// RestrictMember removes a member's ability to post, until the given
	// time or indefinitely when until is nil.
	RestrictMember(guildID, userID string, until *time.Time) error
	UnrestrictMember(guildID, userID string) error

	BanMember(guildID, userID, reason string) error
	UnbanMember(guildID, userID string) error

	SendMessage(channelID, content string) (messageID string, err error)
	EditMessage(channelID, messageID, content string) error
	PinMessage(channelID, messageID string) error
	UnpinMessage(channelID, messageID string) error

	// CanModerate reports whether the bot still holds moderation rights in
	// the guild. Used before attempting a reversal.
	CanModerate(guildID string) (bool, error)
	// IsElevated reports whether a member holds moderator-level permissions.
	IsElevated(guildID, userID string) (bool, error)
}
