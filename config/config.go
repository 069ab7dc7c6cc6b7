package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"guard-bot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load loads the configuration from environment variables and the settings file.
func Load() (*model.Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, relying on environment variables")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatal("Error: BOT_TOKEN environment variable not set")
	}

	appID := os.Getenv("APP_ID")
	if appID == "" {
		log.Fatal("Error: APP_ID environment variable not set")
	}

	logChannelID := os.Getenv("LOG_CHANNEL_ID")
	if logChannelID == "" {
		log.Println("Warning: LOG_CHANNEL_ID not set, bot log messages will be disabled")
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	cfg := &model.Config{
		BotToken:     token,
		AppID:        appID,
		LogChannelID: logChannelID,
		DataDir:      dataDir,
		Debug:        os.Getenv("DEBUG") == "true",
	}

	settings, err := loadSettings(dataDir)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

// loadSettings reads data/settings.yaml via viper, falling back to defaults
// for anything missing. The file itself is optional.
func loadSettings(dataDir string) (model.Settings, error) {
	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)

	v.SetDefault("reconciler.scan_interval_busy", 10*time.Second)
	v.SetDefault("reconciler.scan_interval_idle", 60*time.Second)
	v.SetDefault("reconciler.scan_interval_err", 30*time.Second)
	v.SetDefault("reconciler.dedup_ttl", 60*time.Second)
	v.SetDefault("reconciler.dedup_skip_window", 30*time.Second)

	v.SetDefault("dispatch.concurrency", 5)
	v.SetDefault("dispatch.min_spacing", 200*time.Millisecond)
	v.SetDefault("dispatch.max_retries", 3)

	v.SetDefault("vote.required_ballots", 5)
	v.SetDefault("vote.window_minutes", 5)
	v.SetDefault("vote.mute_duration", 30*time.Minute)
	v.SetDefault("vote.create_cooldown", 3*time.Minute)
	v.SetDefault("vote.ballot_change_window", 30*time.Second)

	v.SetDefault("raid.message_limit", 8)
	v.SetDefault("raid.message_window", 10*time.Second)
	v.SetDefault("raid.join_limit", 10)
	v.SetDefault("raid.join_window", 60*time.Second)
	v.SetDefault("raid.mute_duration", 10*time.Minute)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return model.Settings{}, err
		}
		log.Printf("Info: no settings file at %s, using defaults", filepath.Join(dataDir, "settings.yaml"))
	}

	return model.Settings{
		ScanIntervalBusy: v.GetDuration("reconciler.scan_interval_busy"),
		ScanIntervalIdle: v.GetDuration("reconciler.scan_interval_idle"),
		ScanIntervalErr:  v.GetDuration("reconciler.scan_interval_err"),
		DedupTTL:         v.GetDuration("reconciler.dedup_ttl"),
		DedupSkipWindow:  v.GetDuration("reconciler.dedup_skip_window"),

		DispatchConcurrency: v.GetInt("dispatch.concurrency"),
		DispatchMinSpacing:  v.GetDuration("dispatch.min_spacing"),
		DispatchMaxRetries:  v.GetInt("dispatch.max_retries"),

		VoteRequiredBallots: v.GetInt("vote.required_ballots"),
		VoteWindowMinutes:   v.GetInt("vote.window_minutes"),
		VoteMuteDuration:    v.GetDuration("vote.mute_duration"),
		VoteCreateCooldown:  v.GetDuration("vote.create_cooldown"),
		BallotChangeWindow:  v.GetDuration("vote.ballot_change_window"),

		RaidMessageLimit:  v.GetInt("raid.message_limit"),
		RaidMessageWindow: v.GetDuration("raid.message_window"),
		RaidJoinLimit:     v.GetInt("raid.join_limit"),
		RaidJoinWindow:    v.GetDuration("raid.join_window"),
		RaidMuteDuration:  v.GetDuration("raid.mute_duration"),
	}, nil
}
