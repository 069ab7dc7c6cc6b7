package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/utils/database/chats"
	"guard-bot/utils/database/moderation"

	"github.com/jmoiron/sqlx"
)

const maxConcurrentChats = 10 // bound on chats scanned in parallel per cycle

// Reconciler runs one background loop per expiring punishment kind, finding
// punishments whose time has elapsed and reversing their platform effect
// exactly once. Ownership of a reversal is decided by the store's
// compare-and-set, so overlapping scans and manual reversals can race safely.
type Reconciler struct {
	moderationDB *sqlx.DB
	chatsDB      *sqlx.DB
	platform     model.Platform
	dispatcher   *dispatch.Dispatcher
	settings     model.Settings
	debug        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reconciler. Start must be called to begin scanning.
func New(moderationDB, chatsDB *sqlx.DB, platform model.Platform, dispatcher *dispatch.Dispatcher, settings model.Settings, debug bool) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		moderationDB: moderationDB,
		chatsDB:      chatsDB,
		platform:     platform,
		dispatcher:   dispatcher,
		settings:     settings,
		debug:        debug,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the expiry loops. Warns never expire, so only mutes and
// bans get a loop.
func (r *Reconciler) Start() {
	for _, kind := range []string{model.PunishmentMute, model.PunishmentBan} {
		r.wg.Add(1)
		go r.run(kind)
	}
	log.Println("Expiry reconciler started.")
}

// Stop cancels the loops and waits for in-flight scans to finish.
func (r *Reconciler) Stop() {
	r.cancel()
	r.wg.Wait()
	log.Println("Expiry reconciler stopped.")
}

// run is one kind's scan loop. Pacing is adaptive: chats holding any active
// punishment of this kind are rescanned quickly, an idle system slowly.
func (r *Reconciler) run(kind string) {
	defer r.wg.Done()

	cache := newProcessedCache(r.settings.DedupTTL, r.settings.DedupSkipWindow)

	for {
		activeSeen, err := r.scanOnce(kind, cache)

		var sleep time.Duration
		switch {
		case err != nil:
			log.Printf("Error scanning %s expiries: %v", kind, err)
			sleep = r.settings.ScanIntervalErr
		case activeSeen > 0:
			if r.debug {
				log.Printf("Found %d active %ss, next scan in %s", activeSeen, kind, r.settings.ScanIntervalBusy)
			}
			sleep = r.settings.ScanIntervalBusy
		default:
			sleep = r.settings.ScanIntervalIdle
		}

		select {
		case <-time.After(sleep):
		case <-r.ctx.Done():
			return
		}
	}
}

// scanOnce walks every active chat and reconciles expired punishments of the
// kind. It returns how many active punishments were seen anywhere, expired
// or not. Each chat's processing is isolated so one failure cannot abort the
// batch.
func (r *Reconciler) scanOnce(kind string, cache *processedCache) (int, error) {
	cache.prune()

	chatList, err := chats.GetActiveChats(r.chatsDB)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate chats: %w", err)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		activeSeen int
	)
	guard := make(chan struct{}, maxConcurrentChats)

	for _, chat := range chatList {
		select {
		case <-r.ctx.Done():
			wg.Wait()
			return activeSeen, nil
		default:
		}

		wg.Add(1)
		guard <- struct{}{}
		go func(chat model.Chat) {
			defer func() {
				<-guard
				wg.Done()
			}()
			n := r.reconcileChat(chat, kind, cache)
			mu.Lock()
			activeSeen += n
			mu.Unlock()
		}(chat)
	}
	wg.Wait()

	return activeSeen, nil
}

// reconcileChat handles one chat and returns the number of active
// punishments of the kind it saw there.
func (r *Reconciler) reconcileChat(chat model.Chat, kind string, cache *processedCache) int {
	var ok bool
	err := r.dispatcher.Do(r.ctx, func() error {
		var checkErr error
		ok, checkErr = r.platform.CanModerate(chat.GuildID)
		return checkErr
	})
	if err != nil {
		r.handleChatError(chat.GuildID, "checking permissions", err)
		return 0
	}
	if !ok {
		return 0
	}

	active, err := moderation.GetActivePunishments(r.moderationDB, chat.GuildID, kind)
	if err != nil {
		log.Printf("Error fetching active %ss for guild %s: %v", kind, chat.GuildID, err)
		return 0
	}
	if len(active) == 0 {
		return 0
	}

	now := time.Now().Unix()
	for i := range active {
		p := &active[i]
		if !p.Expired(now) {
			continue
		}
		if cache.recentlyProcessed(p.PunishmentID) {
			continue
		}

		// The CAS is the correctness anchor: only the caller that flips
		// active owns the reversal and its notification.
		won, err := moderation.DeactivatePunishment(r.moderationDB, p.PunishmentID)
		if err != nil {
			log.Printf("Error deactivating punishment %d: %v", p.PunishmentID, err)
			continue
		}
		cache.mark(p.PunishmentID)
		if !won {
			if r.debug {
				log.Printf("Punishment %d already handled by another scan, skipping", p.PunishmentID)
			}
			continue
		}

		r.reverse(chat, p)
	}

	return len(active)
}

// reverse undoes the platform-side effect of an expired punishment and
// notifies the chat. The record is already inactive at this point; a failed
// platform call or notification is logged for manual follow-up but never
// re-attempted, since re-attempting would risk double effects.
func (r *Reconciler) reverse(chat model.Chat, p *model.Punishment) {
	var err error
	switch p.Kind {
	case model.PunishmentMute:
		err = r.dispatcher.Do(r.ctx, func() error {
			return r.platform.UnrestrictMember(p.GuildID, p.UserID)
		})
	case model.PunishmentBan:
		err = r.dispatcher.Do(r.ctx, func() error {
			return r.platform.UnbanMember(p.GuildID, p.UserID)
		})
	default:
		return
	}
	if err != nil {
		if dispatch.IsEntityGone(err) {
			r.handleChatError(p.GuildID, "reversing punishment", err)
		} else {
			log.Printf("Error reversing expired %s %d for user %s in guild %s: %v (state already retired, follow up manually)",
				p.Kind, p.PunishmentID, p.UserID, p.GuildID, err)
		}
		return
	}
	log.Printf("Expired %s %d reversed for user %s in guild %s", p.Kind, p.PunishmentID, p.UserID, p.GuildID)

	if chat.AnnounceID == "" {
		return
	}
	var content string
	switch p.Kind {
	case model.PunishmentMute:
		content = fmt.Sprintf("🔊 <@%s> is no longer muted. The timeout ran out, keep to the rules.", p.UserID)
	case model.PunishmentBan:
		content = fmt.Sprintf("✅ <@%s> has been unbanned. The sentence ran out.", p.UserID)
	}
	err = r.dispatcher.Do(r.ctx, func() error {
		_, sendErr := r.platform.SendMessage(chat.AnnounceID, content)
		return sendErr
	})
	if err != nil {
		// Notification failure is non-fatal; the state transition stands.
		if dispatch.IsEntityGone(err) {
			r.handleChatError(p.GuildID, "announcing reversal", err)
		} else {
			log.Printf("Error announcing reversal of punishment %d: %v", p.PunishmentID, err)
		}
	}
}

// handleChatError deactivates a chat when the platform reports it gone, and
// logs everything else at error severity.
func (r *Reconciler) handleChatError(guildID, action string, err error) {
	if dispatch.IsEntityGone(err) {
		if r.debug {
			log.Printf("Guild %s unreachable while %s, deactivating: %v", guildID, action, err)
		}
		if derr := chats.DeactivateChat(r.chatsDB, guildID); derr != nil {
			log.Printf("Error deactivating chat %s: %v", guildID, derr)
		}
		return
	}
	log.Printf("Error %s for guild %s: %v", action, guildID, err)
}
