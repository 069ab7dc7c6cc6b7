package model

// Vote outcomes recorded to history.
const (
	VoteOutcomeApplied  = "applied"
	VoteOutcomeRejected = "rejected"
	VoteOutcomeTimedOut = "timed_out"
)

// Ballot choices.
const (
	BallotYes = "yes"
	BallotNo  = "no"
)

// Vote represents a live mute vote. The database table is 'active_votes';
// finished votes move to 'vote_history' and the live row is deleted.
type Vote struct {
	VoteID          int64  `db:"vote_id"` // Primary Key, Auto-increment
	GuildID         string `db:"guild_id"`
	TargetID        string `db:"target_id"`
	CreatorID       string `db:"creator_id"`
	MuteDuration    int64  `db:"mute_duration"` // seconds
	RequiredBallots int    `db:"required_ballots"`
	WindowMinutes   int    `db:"window_minutes"`
	CreatedAt       int64  `db:"created_at"`
	Deadline        int64  `db:"deadline"`
	Pinned          bool   `db:"pinned"`
	ChannelID       string `db:"channel_id"`
	MessageID       string `db:"message_id"`
}

// Ballot is one voter's choice within a vote. Identity is (vote_id, voter_id).
type Ballot struct {
	VoteID       int64  `db:"vote_id"`
	VoterID      string `db:"voter_id"`
	Choice       string `db:"choice"`
	CastAt       int64  `db:"cast_at"`
	LastChangeAt int64  `db:"last_change_at"`
}

// Tally is the aggregate ballot count for a vote.
type Tally struct {
	Yes int
	No  int
}

// Total returns the number of ballots cast.
func (t Tally) Total() int { return t.Yes + t.No }

// VoteRecord is a finished vote as stored in 'vote_history'.
type VoteRecord struct {
	VoteID          int64  `db:"vote_id"`
	GuildID         string `db:"guild_id"`
	TargetID        string `db:"target_id"`
	CreatorID       string `db:"creator_id"`
	MuteDuration    int64  `db:"mute_duration"`
	RequiredBallots int    `db:"required_ballots"`
	WindowMinutes   int    `db:"window_minutes"`
	CreatedAt       int64  `db:"created_at"`
	FinishedAt      int64  `db:"finished_at"`
	Outcome         string `db:"outcome"`
	Reason          string `db:"reason"`
	VotesYes        int    `db:"votes_yes"`
	VotesNo         int    `db:"votes_no"`
}
