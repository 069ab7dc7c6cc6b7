package votemute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/moderation"
	"guard-bot/utils/database/chats"
	moderation_db "guard-bot/utils/database/moderation"
	"guard-bot/utils/database/votes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu        sync.Mutex
	restricts []string
	pins      []string
	unpins    []string
	edits     []string
	elevated  map[string]bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{elevated: make(map[string]bool)}
}

func (f *fakePlatform) RestrictMember(guildID, userID string, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restricts = append(f.restricts, guildID+":"+userID)
	return nil
}

func (f *fakePlatform) UnrestrictMember(guildID, userID string) error       { return nil }
func (f *fakePlatform) BanMember(guildID, userID, reason string) error      { return nil }
func (f *fakePlatform) UnbanMember(guildID, userID string) error            { return nil }

func (f *fakePlatform) SendMessage(channelID, content string) (string, error) {
	return "prompt-msg", nil
}

func (f *fakePlatform) EditMessage(channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, content)
	return nil
}

func (f *fakePlatform) PinMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins = append(f.pins, messageID)
	return nil
}

func (f *fakePlatform) UnpinMessage(channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpins = append(f.unpins, messageID)
	return nil
}

func (f *fakePlatform) CanModerate(guildID string) (bool, error) { return true, nil }

func (f *fakePlatform) IsElevated(guildID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elevated[userID], nil
}

func (f *fakePlatform) restrictCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.restricts)
}

func testEngine(t *testing.T, settings model.Settings) (*Engine, *fakePlatform) {
	t.Helper()
	dir := t.TempDir()

	vdb, err := votes.Init(filepath.Join(dir, "votemute.db"))
	require.NoError(t, err)
	vdb.SetMaxOpenConns(1)
	mdb, err := moderation_db.Init(filepath.Join(dir, "moderation.db"))
	require.NoError(t, err)
	mdb.SetMaxOpenConns(1)
	cdb, err := chats.Init(filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	cdb.SetMaxOpenConns(1)
	t.Cleanup(func() {
		vdb.Close()
		mdb.Close()
		cdb.Close()
	})

	platform := newFakePlatform()
	d := dispatch.New(5, time.Nanosecond, 3)
	mods := moderation.NewService(mdb, cdb, platform, d)
	e := NewEngine(vdb, platform, d, mods, settings)
	t.Cleanup(e.Stop)
	return e, platform
}

func voteSettings() model.Settings {
	return model.Settings{
		VoteRequiredBallots: 5,
		VoteWindowMinutes:   5,
		VoteMuteDuration:    30 * time.Minute,
		VoteCreateCooldown:  0,
		BallotChangeWindow:  30 * time.Second,
	}
}

func TestStartVotePostsAndPinsPrompt(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	assert.Equal(t, "prompt-msg", v.MessageID)
	assert.Equal(t, []string{"prompt-msg"}, platform.pins)
	assert.Equal(t, v.CreatedAt+int64(v.WindowMinutes)*60, v.Deadline)

	live, err := e.ActiveVote("g1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, v.VoteID, live.VoteID)
	assert.Equal(t, "prompt-msg", live.MessageID)
}

func TestStartVoteRefusedWhileOneIsLive(t *testing.T) {
	e, _ := testEngine(t, voteSettings())
	ctx := context.Background()

	_, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	_, err = e.StartVote(ctx, "g1", "c1", "other", "creator")
	assert.ErrorIs(t, err, ErrVoteInProgress)

	// Another guild is unaffected.
	_, err = e.StartVote(ctx, "g2", "c2", "target", "creator")
	assert.NoError(t, err)
}

func TestConcurrentStartVoteCreatesOne(t *testing.T) {
	e, _ := testEngine(t, voteSettings())
	ctx := context.Background()

	// Interaction handlers run on separate goroutines, so simultaneous
	// creations must be decided by the store, not the advisory check.
	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		refused  int
	)
	for n := 0; n < racers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrVoteInProgress):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created, "exactly one racing creation may win")
	assert.Equal(t, racers-1, refused)

	live, err := votes.ListActiveVotes(e.db)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestStartVoteCreationCooldown(t *testing.T) {
	s := voteSettings()
	s.VoteCreateCooldown = 3 * time.Minute
	e, _ := testEngine(t, s)
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	e.resolve(v.VoteID, true)

	// The live vote is gone, but the creation cooldown still holds.
	_, err = e.StartVote(ctx, "g1", "c1", "target", "creator")
	assert.ErrorIs(t, err, ErrOnCooldown)
}

func TestCastBallotIneligibleVoters(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	_, err = e.CastBallot(ctx, v.VoteID, "creator", model.BallotYes)
	assert.ErrorIs(t, err, ErrIneligibleVoter, "the creator may not vote")

	_, err = e.CastBallot(ctx, v.VoteID, "target", model.BallotNo)
	assert.ErrorIs(t, err, ErrIneligibleVoter, "the target may not vote")

	platform.mu.Lock()
	platform.elevated["mod"] = true
	platform.mu.Unlock()
	_, err = e.CastBallot(ctx, v.VoteID, "mod", model.BallotYes)
	assert.ErrorIs(t, err, ErrIneligibleVoter, "elevated members may not vote")

	tally, err := e.CastBallot(ctx, v.VoteID, "bystander", model.BallotYes)
	require.NoError(t, err)
	assert.Equal(t, model.Tally{Yes: 1}, tally)
}

func TestCastBallotChangeCooldown(t *testing.T) {
	e, _ := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	require.NoError(t, err)

	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotNo)
	assert.ErrorIs(t, err, ErrBallotCooldown)

	tally, err := votes.GetTally(e.db, v.VoteID)
	require.NoError(t, err)
	assert.Equal(t, model.Tally{Yes: 1}, tally, "a rejected change leaves the ballot as it was")
}

func TestThresholdResolvesByMajority(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	for i, choice := range []string{model.BallotYes, model.BallotYes, model.BallotNo, model.BallotNo} {
		_, err := e.CastBallot(ctx, v.VoteID, fmt.Sprintf("v%d", i), choice)
		require.NoError(t, err)
	}
	assert.Zero(t, platform.restrictCount(), "under the threshold nothing resolves")

	// The fifth ballot makes it 3 yes to 2 no and resolves the vote.
	_, err = e.CastBallot(ctx, v.VoteID, "v4", model.BallotYes)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1:target"}, platform.restricts)
	assert.Equal(t, []string{"prompt-msg"}, platform.unpins)

	live, err := e.ActiveVote("g1")
	require.NoError(t, err)
	assert.Nil(t, live)

	hist, err := votes.GetHistory(e.db, "g1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.VoteOutcomeApplied, hist[0].Outcome)
	assert.Equal(t, 3, hist[0].VotesYes)
	assert.Equal(t, 2, hist[0].VotesNo)

	// The applied mute carries the configured duration.
	active, err := moderation_db.GetActivePunishment(e.mods.DB(), "g1", "target", model.PunishmentMute)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.True(t, active.ExpiresAt.Valid)
	assert.InDelta(t, time.Now().Add(30*time.Minute).Unix(), active.ExpiresAt.Int64, 5)
}

func TestThresholdTieRejects(t *testing.T) {
	s := voteSettings()
	s.VoteRequiredBallots = 4
	e, platform := testEngine(t, s)
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	for i, choice := range []string{model.BallotYes, model.BallotNo, model.BallotYes, model.BallotNo} {
		_, err := e.CastBallot(ctx, v.VoteID, fmt.Sprintf("v%d", i), choice)
		require.NoError(t, err)
	}

	assert.Zero(t, platform.restrictCount(), "a tie never mutes")

	hist, err := votes.GetHistory(e.db, "g1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.VoteOutcomeRejected, hist[0].Outcome)
}

func TestDeadlineTieTimesOut(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)

	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	require.NoError(t, err)
	_, err = e.CastBallot(ctx, v.VoteID, "v2", model.BallotNo)
	require.NoError(t, err)

	e.resolve(v.VoteID, true)

	assert.Zero(t, platform.restrictCount())
	hist, err := votes.GetHistory(e.db, "g1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.VoteOutcomeTimedOut, hist[0].Outcome)
}

func TestDeadlineMajorityStillApplies(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	require.NoError(t, err)

	e.resolve(v.VoteID, true)

	assert.Equal(t, 1, platform.restrictCount(), "a yes majority applies even at the deadline")
	hist, err := votes.GetHistory(e.db, "g1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.VoteOutcomeApplied, hist[0].Outcome)
}

func TestBallotAfterResolutionFails(t *testing.T) {
	e, _ := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	e.resolve(v.VoteID, true)

	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	assert.ErrorIs(t, err, ErrNoSuchVote)
}

func TestConcurrentResolutionHappensOnce(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	for n := 0; n < racers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.resolve(v.VoteID, true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, platform.restrictCount(), "racing triggers must apply the mute once")
	hist, err := votes.GetHistory(e.db, "g1", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "exactly one history row")
}

func TestStopReturnsAfterDisarmedTimer(t *testing.T) {
	e, _ := testEngine(t, voteSettings())

	v, err := e.StartVote(context.Background(), "g1", "c1", "target", "creator")
	require.NoError(t, err)
	e.disarm(v.VoteID)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the deadline timer was disarmed")
	}
}

func TestRecoverFiresPastDueDeadline(t *testing.T) {
	e, platform := testEngine(t, voteSettings())
	ctx := context.Background()

	v, err := e.StartVote(ctx, "g1", "c1", "target", "creator")
	require.NoError(t, err)
	_, err = e.CastBallot(ctx, v.VoteID, "v1", model.BallotYes)
	require.NoError(t, err)

	// Drop the in-memory timer and push the deadline into the past, as if
	// the process had been down across the deadline.
	e.disarm(v.VoteID)
	_, err = e.db.Exec("UPDATE active_votes SET deadline = ? WHERE vote_id = ?", time.Now().Unix()-60, v.VoteID)
	require.NoError(t, err)

	require.NoError(t, e.Recover())
	require.Eventually(t, func() bool {
		return platform.restrictCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "a past-due vote resolves immediately after recovery")
}
