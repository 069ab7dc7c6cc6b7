package votemute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/moderation"
	"guard-bot/utils/database/votes"

	"github.com/jmoiron/sqlx"
)

// Precondition errors surfaced to the command layer.
var (
	ErrVoteInProgress  = errors.New("a vote is already running in this chat")
	ErrOnCooldown      = errors.New("a vote was started here too recently")
	ErrIneligibleVoter = errors.New("you may not take part in this vote")
	ErrBallotCooldown  = errors.New("you changed your ballot too recently")
	ErrNoSuchVote      = errors.New("this vote has already finished")
)

// Engine runs at most one live mute vote per chat to a conclusion. Two
// triggers race to finalize a vote: the threshold check after each ballot
// and the deadline timer armed at creation. The store's FinalizeVote is the
// compare-and-set that lets exactly one of them own the resolution.
type Engine struct {
	db         *sqlx.DB
	platform   model.Platform
	dispatcher *dispatch.Dispatcher
	mods       *moderation.Service
	settings   model.Settings

	mu     sync.Mutex
	timers map[int64]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates the vote engine.
func NewEngine(db *sqlx.DB, platform model.Platform, dispatcher *dispatch.Dispatcher, mods *moderation.Service, settings model.Settings) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		db:         db,
		platform:   platform,
		dispatcher: dispatcher,
		mods:       mods,
		settings:   settings,
		timers:     make(map[int64]*time.Timer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Recover re-arms deadline timers for votes that were live when the process
// last stopped. Must run before new moderation actions are accepted so no
// vote is left without a deadline.
func (e *Engine) Recover() error {
	live, err := votes.ListActiveVotes(e.db)
	if err != nil {
		return fmt.Errorf("failed to recover live votes: %w", err)
	}
	now := time.Now().Unix()
	for _, v := range live {
		wait := time.Duration(v.Deadline-now) * time.Second
		if wait < 0 {
			wait = 0 // past due, fire immediately
		}
		e.armTimer(v.VoteID, wait)
	}
	if len(live) > 0 {
		log.Printf("Recovered %d live vote(s), deadline timers re-armed", len(live))
	}
	return nil
}

// Stop cancels all deadline timers and waits for in-flight resolutions.
func (e *Engine) Stop() {
	e.cancel()
	e.mu.Lock()
	ids := make([]int64, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.disarm(id)
	}
	e.wg.Wait()
}

// StartVote creates a new vote against target. Creation is refused while
// another vote is live in the guild or while the per-chat creation cooldown
// has not elapsed.
func (e *Engine) StartVote(ctx context.Context, guildID, channelID, targetID, creatorID string) (*model.Vote, error) {
	ready, err := votes.CheckCooldown(e.db, guildID, e.settings.VoteCreateCooldown)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrOnCooldown
	}

	existing, err := votes.GetActiveVote(e.db, guildID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrVoteInProgress
	}

	v := model.Vote{
		GuildID:         guildID,
		TargetID:        targetID,
		CreatorID:       creatorID,
		MuteDuration:    int64(e.settings.VoteMuteDuration.Seconds()),
		RequiredBallots: e.settings.VoteRequiredBallots,
		WindowMinutes:   e.settings.VoteWindowMinutes,
		ChannelID:       channelID,
		Pinned:          true,
	}
	// The GetActiveVote check above is advisory; interaction handlers run
	// on separate goroutines, so the store's unique guild index is what
	// actually decides a racing creation.
	id, err := votes.CreateVote(e.db, v)
	if errors.Is(err, votes.ErrGuildHasVote) {
		return nil, ErrVoteInProgress
	}
	if err != nil {
		return nil, err
	}
	v.VoteID = id
	v.CreatedAt = time.Now().Unix()
	v.Deadline = v.CreatedAt + int64(v.WindowMinutes)*60

	if err := votes.SetCooldown(e.db, guildID); err != nil {
		log.Printf("Error setting vote cooldown for guild %s: %v", guildID, err)
	}

	// Post the prompt; a failed pin is cosmetic and only logged.
	var messageID string
	err = e.dispatcher.Do(ctx, func() error {
		var sendErr error
		messageID, sendErr = e.platform.SendMessage(channelID, promptText(&v, model.Tally{}))
		return sendErr
	})
	if err != nil {
		log.Printf("Error posting vote prompt for vote %d: %v", id, err)
	} else {
		v.MessageID = messageID
		if err := votes.SetVoteMessage(e.db, id, channelID, messageID); err != nil {
			log.Printf("Error saving prompt reference for vote %d: %v", id, err)
		}
		if pinErr := e.dispatcher.Do(ctx, func() error {
			return e.platform.PinMessage(channelID, messageID)
		}); pinErr != nil {
			log.Printf("Error pinning vote prompt for vote %d: %v", id, pinErr)
		}
	}

	e.armTimer(id, time.Duration(v.WindowMinutes)*time.Minute)
	log.Printf("Vote %d started in guild %s against user %s", id, guildID, targetID)
	return &v, nil
}

// CastBallot validates and records one member's choice, then checks the
// early-resolution threshold. Changing an existing ballot is allowed, at
// most once per change window.
func (e *Engine) CastBallot(ctx context.Context, voteID int64, voterID, choice string) (model.Tally, error) {
	v, err := votes.GetVoteByID(e.db, voteID)
	if err != nil {
		return model.Tally{}, err
	}
	if v == nil {
		return model.Tally{}, ErrNoSuchVote
	}

	if voterID == v.CreatorID || voterID == v.TargetID {
		return model.Tally{}, ErrIneligibleVoter
	}
	elevated, err := e.platform.IsElevated(v.GuildID, voterID)
	if err != nil {
		return model.Tally{}, fmt.Errorf("failed to check voter eligibility: %w", err)
	}
	if elevated {
		return model.Tally{}, ErrIneligibleVoter
	}

	accepted, err := votes.RecordBallot(e.db, voteID, voterID, choice, e.settings.BallotChangeWindow)
	if err != nil {
		return model.Tally{}, err
	}
	if !accepted {
		return model.Tally{}, ErrBallotCooldown
	}

	tally, err := votes.GetTally(e.db, voteID)
	if err != nil {
		return model.Tally{}, err
	}

	if tally.Total() >= v.RequiredBallots {
		e.resolve(voteID, false)
	} else {
		e.updatePrompt(ctx, v, tally)
	}
	return tally, nil
}

// ActiveVote returns the live vote in a guild, if any.
func (e *Engine) ActiveVote(guildID string) (*model.Vote, error) {
	return votes.GetActiveVote(e.db, guildID)
}

// armTimer schedules the deadline resolution for a vote.
func (e *Engine) armTimer(voteID int64, wait time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.timers[voteID]; exists {
		return
	}
	e.wg.Add(1)
	e.timers[voteID] = time.AfterFunc(wait, func() {
		defer e.wg.Done()
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		e.resolve(voteID, true)
		e.mu.Lock()
		delete(e.timers, voteID)
		e.mu.Unlock()
	})
}

// disarm cancels a vote's deadline timer without resolving it. Stopping the
// timer and releasing its waitgroup slot must happen together, or shutdown
// waits on a callback that will never run.
func (e *Engine) disarm(voteID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[voteID]
	if !ok {
		return
	}
	if t.Stop() {
		e.wg.Done()
	}
	delete(e.timers, voteID)
}

// resolve finalizes a vote by majority rule; a tie rejects. FinalizeVote is
// the liveness CAS: whichever trigger loses the race observes the vote
// already gone and does nothing. The outcome is decided from the tally read
// inside the finalize transaction itself.
func (e *Engine) resolve(voteID int64, deadline bool) {
	v, tally, outcome, err := votes.FinalizeVote(e.db, voteID, func(t model.Tally) (string, string) {
		if t.Yes > t.No {
			return model.VoteOutcomeApplied, "majority voted yes"
		}
		if deadline {
			return model.VoteOutcomeTimedOut, "voting window closed"
		}
		return model.VoteOutcomeRejected, "majority voted no"
	})
	if err != nil {
		log.Printf("Error finalizing vote %d: %v", voteID, err)
		return
	}
	if v == nil {
		return // the other trigger won
	}

	log.Printf("Vote %d resolved: %s (yes=%d no=%d, deadline=%t)", voteID, outcome, tally.Yes, tally.No, deadline)

	// Side effects after the liveness CAS. A platform failure here leaves
	// the vote resolved in history; it is never resurrected.
	if outcome == model.VoteOutcomeApplied {
		d := time.Duration(v.MuteDuration) * time.Second
		_, err := e.mods.Mute(e.ctx, v.GuildID, v.TargetID, "vote", fmt.Sprintf("vote %d (yes=%d no=%d)", v.VoteID, tally.Yes, tally.No), &d)
		if err != nil {
			log.Printf("Error applying vote %d mute: %v", voteID, err)
		}
	}

	if v.MessageID != "" {
		if v.Pinned {
			if err := e.dispatcher.Do(e.ctx, func() error {
				return e.platform.UnpinMessage(v.ChannelID, v.MessageID)
			}); err != nil {
				log.Printf("Error unpinning vote %d prompt: %v", voteID, err)
			}
		}
		if err := e.dispatcher.Do(e.ctx, func() error {
			return e.platform.EditMessage(v.ChannelID, v.MessageID, resultText(v, tally, outcome))
		}); err != nil {
			log.Printf("Error editing vote %d prompt: %v", voteID, err)
		}
	}
}

// updatePrompt refreshes the live tally shown on the prompt message.
func (e *Engine) updatePrompt(ctx context.Context, v *model.Vote, tally model.Tally) {
	if v.MessageID == "" {
		return
	}
	if err := e.dispatcher.Do(ctx, func() error {
		return e.platform.EditMessage(v.ChannelID, v.MessageID, promptText(v, tally))
	}); err != nil {
		log.Printf("Error updating vote %d prompt: %v", v.VoteID, err)
	}
}
