package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/utils/database/chats"
	moderation_db "guard-bot/utils/database/moderation"

	"github.com/jmoiron/sqlx"
)

// Service is the one path through which punishments are applied and
// reversed. Manual commands, vote resolutions, and the raid guard all go
// through here so the reissue-overwrites invariant holds no matter who asks.
type Service struct {
	db         *sqlx.DB
	chatsDB    *sqlx.DB
	platform   model.Platform
	dispatcher *dispatch.Dispatcher
}

// NewService creates the moderation service.
func NewService(db, chatsDB *sqlx.DB, platform model.Platform, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{db: db, chatsDB: chatsDB, platform: platform, dispatcher: dispatcher}
}

// DB exposes the punishment store handle for read-only consumers (stats).
func (s *Service) DB() *sqlx.DB { return s.db }

// Warn records a warning. Warnings have no platform effect and no expiry.
func (s *Service) Warn(ctx context.Context, guildID, userID, issuerID, reason string) (int64, error) {
	id, err := moderation_db.AddPunishment(s.db, model.Punishment{
		GuildID:  guildID,
		UserID:   userID,
		IssuerID: issuerID,
		Kind:     model.PunishmentWarn,
		Reason:   reason,
	})
	if err != nil {
		return 0, err
	}
	s.announce(ctx, guildID, fmt.Sprintf("⚠️ <@%s> has been warned. Reason: %s", userID, orDash(reason)))
	return id, nil
}

// Mute records a mute and restricts the member. A nil duration is permanent.
// The record is written before the platform call so a failed restriction
// never leaves an untracked mute; the platform error is returned for the
// caller to surface.
func (s *Service) Mute(ctx context.Context, guildID, userID, issuerID, reason string, duration *time.Duration) (int64, error) {
	rec := model.Punishment{
		GuildID:  guildID,
		UserID:   userID,
		IssuerID: issuerID,
		Kind:     model.PunishmentMute,
		Reason:   reason,
	}
	var until *time.Time
	if duration != nil {
		rec.DurationSeconds = sql.NullInt64{Int64: int64(duration.Seconds()), Valid: true}
		t := time.Now().Add(*duration)
		until = &t
	}

	id, err := moderation_db.AddPunishment(s.db, rec)
	if err != nil {
		return 0, err
	}

	err = s.dispatcher.Do(ctx, func() error {
		return s.platform.RestrictMember(guildID, userID, until)
	})
	if err != nil {
		return id, fmt.Errorf("mute %d recorded but restriction failed: %w", id, err)
	}

	s.announce(ctx, guildID, fmt.Sprintf("🔇 <@%s> has been muted%s. Reason: %s", userID, forDuration(duration), orDash(reason)))
	return id, nil
}

// Ban records a ban and bans the member. A nil duration is permanent;
// temporary bans are lifted by the expiry reconciler.
func (s *Service) Ban(ctx context.Context, guildID, userID, issuerID, reason string, duration *time.Duration) (int64, error) {
	rec := model.Punishment{
		GuildID:  guildID,
		UserID:   userID,
		IssuerID: issuerID,
		Kind:     model.PunishmentBan,
		Reason:   reason,
	}
	if duration != nil {
		rec.DurationSeconds = sql.NullInt64{Int64: int64(duration.Seconds()), Valid: true}
	}

	id, err := moderation_db.AddPunishment(s.db, rec)
	if err != nil {
		return 0, err
	}

	err = s.dispatcher.Do(ctx, func() error {
		return s.platform.BanMember(guildID, userID, reason)
	})
	if err != nil {
		return id, fmt.Errorf("ban %d recorded but platform ban failed: %w", id, err)
	}

	s.announce(ctx, guildID, fmt.Sprintf("🔨 <@%s> has been banned%s. Reason: %s", userID, forDuration(duration), orDash(reason)))
	return id, nil
}

// Unmute explicitly reverses an active mute. It returns false when the
// member has no active mute, or when a concurrent reversal (the reconciler,
// or another moderator) got there first.
func (s *Service) Unmute(ctx context.Context, guildID, userID string) (bool, error) {
	return s.reverse(ctx, guildID, userID, model.PunishmentMute)
}

// Unban explicitly reverses an active ban, with the same semantics as Unmute.
func (s *Service) Unban(ctx context.Context, guildID, userID string) (bool, error) {
	return s.reverse(ctx, guildID, userID, model.PunishmentBan)
}

func (s *Service) reverse(ctx context.Context, guildID, userID, kind string) (bool, error) {
	rec, err := moderation_db.GetActivePunishment(s.db, guildID, userID, kind)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	won, err := moderation_db.DeactivatePunishment(s.db, rec.PunishmentID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	switch kind {
	case model.PunishmentMute:
		err = s.dispatcher.Do(ctx, func() error {
			return s.platform.UnrestrictMember(guildID, userID)
		})
	case model.PunishmentBan:
		err = s.dispatcher.Do(ctx, func() error {
			return s.platform.UnbanMember(guildID, userID)
		})
	}
	if err != nil {
		return true, fmt.Errorf("punishment %d retired but platform reversal failed: %w", rec.PunishmentID, err)
	}
	return true, nil
}

// announce posts to the chat's announce channel when one is configured.
// Failures here never roll anything back.
func (s *Service) announce(ctx context.Context, guildID, content string) {
	chat, err := chats.GetChat(s.chatsDB, guildID)
	if err != nil || chat == nil || chat.AnnounceID == "" {
		return
	}
	err = s.dispatcher.Do(ctx, func() error {
		_, sendErr := s.platform.SendMessage(chat.AnnounceID, content)
		return sendErr
	})
	if err != nil {
		log.Printf("Error announcing in guild %s: %v", guildID, err)
	}
}

func orDash(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}

func forDuration(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf(" for %s", d.Round(time.Second))
}
