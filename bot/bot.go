package bot

import (
	"log"
	"path/filepath"

	"guard-bot/dispatch"
	"guard-bot/model"
	"guard-bot/moderation"
	"guard-bot/platform"
	"guard-bot/raidguard"
	"guard-bot/reconciler"
	"guard-bot/utils/database/chats"
	moderation_db "guard-bot/utils/database/moderation"
	"guard-bot/utils/database/votes"
	"guard-bot/votemute"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
)

type Bot struct {
	Session            *discordgo.Session
	Config             *model.Config
	RegisteredCommands []*discordgo.ApplicationCommand
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	ModerationDB *sqlx.DB
	VotesDB      *sqlx.DB
	ChatsDB      *sqlx.DB

	Platform   model.Platform
	Dispatcher *dispatch.Dispatcher
	Mods       *moderation.Service
	Reconciler *reconciler.Reconciler
	VoteEngine *votemute.Engine
	RaidGuard  *raidguard.Guard

	scheduler *Scheduler
}

func New(cfg *model.Config) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

	b := &Bot{
		Session: dg,
		Config:  cfg,
	}
	b.Platform = platform.New(dg)
	b.Dispatcher = dispatch.New(cfg.Settings.DispatchConcurrency, cfg.Settings.DispatchMinSpacing, cfg.Settings.DispatchMaxRetries)

	if b.ModerationDB, err = moderation_db.Init(filepath.Join(cfg.DataDir, "moderation.db")); err != nil {
		return nil, err
	}
	if b.VotesDB, err = votes.Init(filepath.Join(cfg.DataDir, "votemute.db")); err != nil {
		return nil, err
	}
	if b.ChatsDB, err = chats.Init(filepath.Join(cfg.DataDir, "chats.db")); err != nil {
		return nil, err
	}

	b.Mods = moderation.NewService(b.ModerationDB, b.ChatsDB, b.Platform, b.Dispatcher)
	b.Reconciler = reconciler.New(b.ModerationDB, b.ChatsDB, b.Platform, b.Dispatcher, cfg.Settings, cfg.Debug)
	b.VoteEngine = votemute.NewEngine(b.VotesDB, b.Platform, b.Dispatcher, b.Mods, cfg.Settings)
	b.RaidGuard = raidguard.New(b.Mods, cfg.Settings)
	b.scheduler = NewScheduler(b)

	return b, nil
}

func (b *Bot) Close() {
	log.Println("Gracefully shutting down.")
	b.scheduler.Stop()
	b.Session.Close()
	b.ModerationDB.Close()
	b.VotesDB.Close()
	b.ChatsDB.Close()
}
