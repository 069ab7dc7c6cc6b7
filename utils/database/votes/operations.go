package votes

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guard-bot/model"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// ErrGuildHasVote is returned by CreateVote when the guild already holds a
// live vote. The unique index on active_votes(guild_id) enforces this, so
// two racing creations cannot both succeed.
var ErrGuildHasVote = errors.New("guild already has a live vote")

// CreateVote inserts a new live vote and returns its ID. At most one live
// vote exists per guild; the loser of a racing creation gets ErrGuildHasVote.
func CreateVote(db *sqlx.DB, v model.Vote) (int64, error) {
	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().Unix()
	}
	if v.Deadline == 0 {
		v.Deadline = v.CreatedAt + int64(v.WindowMinutes)*60
	}

	result, err := db.NamedExec(`INSERT INTO active_votes (guild_id, target_id, creator_id, mute_duration, required_ballots, window_minutes, created_at, deadline, pinned, channel_id, message_id)
			  VALUES (:guild_id, :target_id, :creator_id, :mute_duration, :required_ballots, :window_minutes, :created_at, :deadline, :pinned, :channel_id, :message_id)`, v)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrGuildHasVote
		}
		return 0, fmt.Errorf("failed to insert vote: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get vote insert ID: %w", err)
	}
	return id, nil
}

// GetActiveVote returns the live vote in a guild, or nil if there is none.
func GetActiveVote(db *sqlx.DB, guildID string) (*model.Vote, error) {
	var v model.Vote
	err := db.Get(&v, "SELECT * FROM active_votes WHERE guild_id = ? ORDER BY created_at DESC LIMIT 1", guildID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active vote for guild %s: %w", guildID, err)
	}
	return &v, nil
}

// GetVoteByID returns a live vote by ID, or nil if it has been finalized.
func GetVoteByID(db *sqlx.DB, voteID int64) (*model.Vote, error) {
	var v model.Vote
	err := db.Get(&v, "SELECT * FROM active_votes WHERE vote_id = ?", voteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote %d: %w", voteID, err)
	}
	return &v, nil
}

// ListActiveVotes returns every live vote. Used at startup to re-arm
// deadline timers.
func ListActiveVotes(db *sqlx.DB) ([]model.Vote, error) {
	var vs []model.Vote
	if err := db.Select(&vs, "SELECT * FROM active_votes"); err != nil {
		return nil, fmt.Errorf("failed to list active votes: %w", err)
	}
	return vs, nil
}

// SetVoteMessage records the prompt message reference for a vote.
func SetVoteMessage(db *sqlx.DB, voteID int64, channelID, messageID string) error {
	_, err := db.Exec("UPDATE active_votes SET channel_id = ?, message_id = ? WHERE vote_id = ?", channelID, messageID, voteID)
	if err != nil {
		return fmt.Errorf("failed to set message for vote %d: %w", voteID, err)
	}
	return nil
}

// RecordBallot inserts a voter's ballot, or updates it when the voter changes
// their mind. A change is accepted at most once per changeWindow, measured
// from the last change; a rejected change returns false with the stored
// ballot untouched.
func RecordBallot(db *sqlx.DB, voteID int64, voterID, choice string, changeWindow time.Duration) (bool, error) {
	tx, err := db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin ballot transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var existing model.Ballot
	err = tx.Get(&existing, "SELECT * FROM ballots WHERE vote_id = ? AND voter_id = ?", voteID, voterID)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`INSERT INTO ballots (vote_id, voter_id, choice, cast_at, last_change_at) VALUES (?, ?, ?, ?, ?)`,
			voteID, voterID, choice, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert ballot for voter %s: %w", voterID, err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to read ballot for voter %s: %w", voterID, err)
	default:
		if now-existing.LastChangeAt < int64(changeWindow.Seconds()) {
			return false, nil
		}
		_, err = tx.Exec(`UPDATE ballots SET choice = ?, last_change_at = ? WHERE vote_id = ? AND voter_id = ?`,
			choice, now, voteID, voterID)
		if err != nil {
			return false, fmt.Errorf("failed to update ballot for voter %s: %w", voterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ballot transaction: %w", err)
	}
	return true, nil
}

// GetTally returns the current ballot counts for a vote.
func GetTally(db *sqlx.DB, voteID int64) (model.Tally, error) {
	rows, err := db.Query(`SELECT choice, COUNT(*) FROM ballots WHERE vote_id = ? GROUP BY choice`, voteID)
	if err != nil {
		return model.Tally{}, fmt.Errorf("failed to tally vote %d: %w", voteID, err)
	}
	defer rows.Close()

	var t model.Tally
	for rows.Next() {
		var choice string
		var count int
		if err := rows.Scan(&choice, &count); err != nil {
			return model.Tally{}, fmt.Errorf("failed to scan tally row: %w", err)
		}
		switch choice {
		case model.BallotYes:
			t.Yes = count
		case model.BallotNo:
			t.No = count
		}
	}
	return t, rows.Err()
}

// FinalizeVote atomically moves a live vote to history, deleting the live
// row and its ballots. The outcome is decided by the callback from the tally
// read inside the same transaction, so no late ballot can slip in between
// the count and the removal. It returns a nil vote if another caller already
// finalized; only a non-nil return owns the resolution side effects.
func FinalizeVote(db *sqlx.DB, voteID int64, decide func(model.Tally) (outcome, reason string)) (*model.Vote, model.Tally, string, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback()

	var v model.Vote
	err = tx.Get(&v, "SELECT * FROM active_votes WHERE vote_id = ?", voteID)
	if err == sql.ErrNoRows {
		return nil, model.Tally{}, "", nil
	}
	if err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to read vote %d for finalize: %w", voteID, err)
	}

	var t model.Tally
	rows, err := tx.Query(`SELECT choice, COUNT(*) FROM ballots WHERE vote_id = ? GROUP BY choice`, voteID)
	if err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to tally vote %d for finalize: %w", voteID, err)
	}
	for rows.Next() {
		var choice string
		var count int
		if err := rows.Scan(&choice, &count); err != nil {
			rows.Close()
			return nil, model.Tally{}, "", fmt.Errorf("failed to scan finalize tally row: %w", err)
		}
		switch choice {
		case model.BallotYes:
			t.Yes = count
		case model.BallotNo:
			t.No = count
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to iterate finalize tally: %w", err)
	}

	outcome, reason := decide(t)

	_, err = tx.Exec(`INSERT INTO vote_history (vote_id, guild_id, target_id, creator_id, mute_duration, required_ballots, window_minutes, created_at, finished_at, outcome, reason, votes_yes, votes_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VoteID, v.GuildID, v.TargetID, v.CreatorID, v.MuteDuration, v.RequiredBallots, v.WindowMinutes,
		v.CreatedAt, time.Now().Unix(), outcome, reason, t.Yes, t.No)
	if err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to insert vote history for vote %d: %w", voteID, err)
	}

	if _, err = tx.Exec("DELETE FROM active_votes WHERE vote_id = ?", voteID); err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to delete live vote %d: %w", voteID, err)
	}
	if _, err = tx.Exec("DELETE FROM ballots WHERE vote_id = ?", voteID); err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to delete ballots for vote %d: %w", voteID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, model.Tally{}, "", fmt.Errorf("failed to commit finalize for vote %d: %w", voteID, err)
	}
	return &v, t, outcome, nil
}

// CheckCooldown reports whether enough time has passed since the last vote
// was created in a guild.
func CheckCooldown(db *sqlx.DB, guildID string, cooldown time.Duration) (bool, error) {
	var last int64
	err := db.Get(&last, "SELECT last_created_at FROM vote_cooldowns WHERE guild_id = ?", guildID)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check vote cooldown for guild %s: %w", guildID, err)
	}
	return time.Now().Unix()-last >= int64(cooldown.Seconds()), nil
}

// SetCooldown marks now as the last vote creation time in a guild.
func SetCooldown(db *sqlx.DB, guildID string) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO vote_cooldowns (guild_id, last_created_at) VALUES (?, ?)`,
		guildID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set vote cooldown for guild %s: %w", guildID, err)
	}
	return nil
}

// GetHistory returns finished votes for a guild, newest first.
func GetHistory(db *sqlx.DB, guildID string, limit int) ([]model.VoteRecord, error) {
	var records []model.VoteRecord
	err := db.Select(&records, "SELECT * FROM vote_history WHERE guild_id = ? ORDER BY finished_at DESC LIMIT ?", guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get vote history for guild %s: %w", guildID, err)
	}
	return records, nil
}
