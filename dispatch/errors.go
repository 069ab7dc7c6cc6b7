package dispatch

import (
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// IsEntityGone reports whether an error means the guild, channel, or member
// no longer exists or the bot lost access. These are never retried; the
// owning chat record gets deactivated instead.
func IsEntityGone(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownUser,
			discordgo.ErrCodeMissingAccess:
			return true
		}
	}
	if rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return true
	}
	return false
}

// IsThrottled reports whether an error is the platform's "too many requests"
// class, which the dispatcher retries with backoff.
func IsThrottled(err error) bool {
	var lerr *discordgo.RateLimitError
	if errors.As(err, &lerr) {
		return true
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// RetryAfter extracts the platform-suggested wait from a throttling error,
// or zero when it carries none.
func RetryAfter(err error) time.Duration {
	var lerr *discordgo.RateLimitError
	if errors.As(err, &lerr) {
		return lerr.RetryAfter
	}
	return 0
}
