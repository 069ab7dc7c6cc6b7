package raidguard

import (
	"context"
	"log"
	"sync"
	"time"

	"guard-bot/model"
	"guard-bot/moderation"
)

// Classification of recent activity in a chat.
type Classification int

const (
	Normal Classification = iota
	Suspicious
	Burst
)

func (c Classification) String() string {
	switch c {
	case Suspicious:
		return "suspicious"
	case Burst:
		return "burst"
	default:
		return "normal"
	}
}

// Guard watches per-chat message and join activity over sliding windows and
// classifies it. A member whose activity classifies as a burst is muted for
// a short cooldown through the ordinary moderation path. All window state is
// owned by the instance and pruned on a schedule.
type Guard struct {
	mods     *moderation.Service
	settings model.Settings

	mu       sync.Mutex
	messages map[string][]int64 // (guild:user) -> message unix times
	joins    map[string][]int64 // guild -> join unix times
}

// New creates a Guard.
func New(mods *moderation.Service, settings model.Settings) *Guard {
	return &Guard{
		mods:     mods,
		settings: settings,
		messages: make(map[string][]int64),
		joins:    make(map[string][]int64),
	}
}

// ObserveMessage records one message and returns its classification. On a
// burst the member is muted; the caller only needs the classification for
// logging or display.
func (g *Guard) ObserveMessage(ctx context.Context, guildID, userID string) Classification {
	key := guildID + ":" + userID
	now := time.Now().Unix()
	window := int64(g.settings.RaidMessageWindow.Seconds())

	g.mu.Lock()
	times := appendWindow(g.messages[key], now, window)
	g.messages[key] = times
	count := len(times)
	g.mu.Unlock()

	switch {
	case count >= g.settings.RaidMessageLimit:
		g.mu.Lock()
		delete(g.messages, key) // reset so the mute is not re-issued per message
		g.mu.Unlock()
		log.Printf("Burst detected: user %s in guild %s sent %d messages in %s", userID, guildID, count, g.settings.RaidMessageWindow)
		d := g.settings.RaidMuteDuration
		if _, err := g.mods.Mute(ctx, guildID, userID, "raid-guard", "message burst", &d); err != nil {
			log.Printf("Error muting burst sender %s in guild %s: %v", userID, guildID, err)
		}
		return Burst
	case count > g.settings.RaidMessageLimit/2:
		return Suspicious
	default:
		return Normal
	}
}

// ObserveJoin records one member join and returns the chat's classification.
// Join bursts are classified only; what to do about them is a moderator
// decision.
func (g *Guard) ObserveJoin(guildID string) Classification {
	now := time.Now().Unix()
	window := int64(g.settings.RaidJoinWindow.Seconds())

	g.mu.Lock()
	times := appendWindow(g.joins[guildID], now, window)
	g.joins[guildID] = times
	count := len(times)
	g.mu.Unlock()

	switch {
	case count >= g.settings.RaidJoinLimit:
		log.Printf("Join burst: %d joins in guild %s within %s", count, guildID, g.settings.RaidJoinWindow)
		return Burst
	case count > g.settings.RaidJoinLimit/2:
		return Suspicious
	default:
		return Normal
	}
}

// Prune drops window entries that can no longer affect any classification.
// Called hourly by the scheduler to keep the maps bounded.
func (g *Guard) Prune() {
	now := time.Now().Unix()
	msgWindow := int64(g.settings.RaidMessageWindow.Seconds())
	joinWindow := int64(g.settings.RaidJoinWindow.Seconds())

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, times := range g.messages {
		kept := trimWindow(times, now, msgWindow)
		if len(kept) == 0 {
			delete(g.messages, key)
		} else {
			g.messages[key] = kept
		}
	}
	for key, times := range g.joins {
		kept := trimWindow(times, now, joinWindow)
		if len(kept) == 0 {
			delete(g.joins, key)
		} else {
			g.joins[key] = kept
		}
	}
}

func appendWindow(times []int64, now, window int64) []int64 {
	return append(trimWindow(times, now, window), now)
}

func trimWindow(times []int64, now, window int64) []int64 {
	kept := times[:0]
	for _, t := range times {
		if now-t < window {
			kept = append(kept, t)
		}
	}
	return kept
}
