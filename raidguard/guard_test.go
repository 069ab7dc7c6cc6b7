package raidguard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/moderation"
	"guard-bot/utils/database/chats"
	moderation_db "guard-bot/utils/database/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietPlatform struct{}

func (quietPlatform) RestrictMember(guildID, userID string, until *time.Time) error { return nil }
func (quietPlatform) UnrestrictMember(guildID, userID string) error                 { return nil }
func (quietPlatform) BanMember(guildID, userID, reason string) error                { return nil }
func (quietPlatform) UnbanMember(guildID, userID string) error                      { return nil }
func (quietPlatform) SendMessage(channelID, content string) (string, error)         { return "m", nil }
func (quietPlatform) EditMessage(channelID, messageID, content string) error        { return nil }
func (quietPlatform) PinMessage(channelID, messageID string) error                  { return nil }
func (quietPlatform) UnpinMessage(channelID, messageID string) error                { return nil }
func (quietPlatform) CanModerate(guildID string) (bool, error)                      { return true, nil }
func (quietPlatform) IsElevated(guildID, userID string) (bool, error)               { return false, nil }

func raidSettings() model.Settings {
	return model.Settings{
		RaidMessageLimit:  8,
		RaidMessageWindow: 10 * time.Second,
		RaidJoinLimit:     10,
		RaidJoinWindow:    60 * time.Second,
		RaidMuteDuration:  10 * time.Minute,
	}
}

func testGuard(t *testing.T) (*Guard, *moderation.Service) {
	t.Helper()
	dir := t.TempDir()
	mdb, err := moderation_db.Init(filepath.Join(dir, "moderation.db"))
	require.NoError(t, err)
	mdb.SetMaxOpenConns(1)
	cdb, err := chats.Init(filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		mdb.Close()
		cdb.Close()
	})

	mods := moderation.NewService(mdb, cdb, quietPlatform{}, dispatch.New(5, time.Nanosecond, 3))
	return New(mods, raidSettings()), mods
}

func TestMessageBurstMutesSender(t *testing.T) {
	g, mods := testGuard(t)
	ctx := context.Background()

	var last Classification
	for i := 0; i < 8; i++ {
		last = g.ObserveMessage(ctx, "g1", "spammer")
	}
	assert.Equal(t, Burst, last)

	mute, err := moderation_db.GetActivePunishment(mods.DB(), "g1", "spammer", model.PunishmentMute)
	require.NoError(t, err)
	require.NotNil(t, mute)
	assert.Equal(t, "raid-guard", mute.IssuerID)
	require.True(t, mute.ExpiresAt.Valid)
	assert.InDelta(t, time.Now().Add(10*time.Minute).Unix(), mute.ExpiresAt.Int64, 5)
}

func TestBurstResetsWindowState(t *testing.T) {
	g, _ := testGuard(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		g.ObserveMessage(ctx, "g1", "spammer")
	}
	// The window was cleared on the burst, so the next message starts over.
	assert.Equal(t, Normal, g.ObserveMessage(ctx, "g1", "spammer"))
}

func TestMessageClassificationProgression(t *testing.T) {
	g, _ := testGuard(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.Equal(t, Normal, g.ObserveMessage(ctx, "g1", "u1"))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, Suspicious, g.ObserveMessage(ctx, "g1", "u1"))
	}
	assert.Equal(t, Burst, g.ObserveMessage(ctx, "g1", "u1"))
}

func TestMessageWindowsAreIndependent(t *testing.T) {
	g, mods := testGuard(t)
	ctx := context.Background()

	// Two members and two guilds never share a window.
	for i := 0; i < 6; i++ {
		g.ObserveMessage(ctx, "g1", "u1")
		g.ObserveMessage(ctx, "g1", "u2")
		g.ObserveMessage(ctx, "g2", "u1")
	}

	for _, guild := range []string{"g1", "g2"} {
		mute, err := moderation_db.GetActivePunishment(mods.DB(), guild, "u1", model.PunishmentMute)
		require.NoError(t, err)
		assert.Nil(t, mute)
	}
}

func TestJoinBurstClassifiesOnly(t *testing.T) {
	g, mods := testGuard(t)

	var last Classification
	for i := 0; i < 10; i++ {
		last = g.ObserveJoin("g1")
	}
	assert.Equal(t, Burst, last)

	// Join bursts are reported, never punished automatically.
	active, err := moderation_db.GetActivePunishments(mods.DB(), "g1", model.PunishmentMute)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPruneDropsStaleState(t *testing.T) {
	g, _ := testGuard(t)
	ctx := context.Background()

	g.ObserveMessage(ctx, "g1", "u1")
	g.ObserveJoin("g1")

	// Age everything past both windows, then prune.
	g.mu.Lock()
	for key, times := range g.messages {
		for i := range times {
			times[i] -= 3600
		}
		g.messages[key] = times
	}
	for key, times := range g.joins {
		for i := range times {
			times[i] -= 3600
		}
		g.joins[key] = times
	}
	g.mu.Unlock()

	g.Prune()

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.messages)
	assert.Empty(t, g.joins)
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "suspicious", Suspicious.String())
	assert.Equal(t, "burst", Burst.String())
}
