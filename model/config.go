package model

import "time"

// Config holds the bot configuration loaded from environment variables
// and the settings file.
type Config struct {
	BotToken     string
	AppID        string
	LogChannelID string
	DataDir      string
	Debug        bool

	Settings Settings
}

// Settings are the runtime tunables read from data/settings.yaml.
// Defaults live in config.Load.
type Settings struct {
	// Reconciler pacing.
	ScanIntervalBusy time.Duration // sleep after a scan that saw active punishments
	ScanIntervalIdle time.Duration // sleep after a scan that saw none
	ScanIntervalErr  time.Duration // sleep after a failed scan
	DedupTTL         time.Duration // how long processed ids are remembered
	DedupSkipWindow  time.Duration // skip ids processed this recently

	// Dispatcher.
	DispatchConcurrency int
	DispatchMinSpacing  time.Duration
	DispatchMaxRetries  int

	// Vote defaults.
	VoteRequiredBallots int
	VoteWindowMinutes   int
	VoteMuteDuration    time.Duration
	VoteCreateCooldown  time.Duration
	BallotChangeWindow  time.Duration

	// Raid guard thresholds.
	RaidMessageLimit  int
	RaidMessageWindow time.Duration
	RaidJoinLimit     int
	RaidJoinWindow    time.Duration
	RaidMuteDuration  time.Duration
}
