package handlers

import (
	"context"
	"log"

	"guard-bot/bot"
	"guard-bot/model"
	"guard-bot/utils/database/chats"

	"github.com/bwmarrin/discordgo"
)

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers(b)
	addHandlers(b)
}

func commandHandlers(b *bot.Bot) map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		"warn": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleWarn(s, i, b)
		},
		"mute": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleMute(s, i, b)
		},
		"unmute": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleUnmute(s, i, b)
		},
		"ban": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleBan(s, i, b)
		},
		"unban": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleUnban(s, i, b)
		},
		"votemute": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleVoteMute(s, i, b)
		},
		"vote": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleBallot(s, i, b)
		},
		"modstats": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleModStats(s, i, b)
		},
		"status": func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			HandleStatus(s, i, b)
		},
	}
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	})

	// Keep the chat registry in step with guild membership; the reconciler
	// only scans registered active chats.
	b.Session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		announceID := g.SystemChannelID
		if err := chats.UpsertChat(b.ChatsDB, model.Chat{
			GuildID:    g.ID,
			Title:      g.Name,
			AnnounceID: announceID,
		}); err != nil {
			log.Printf("Error registering guild %s: %v", g.ID, err)
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if err := chats.DeactivateChat(b.ChatsDB, g.ID); err != nil {
			log.Printf("Error deactivating guild %s: %v", g.ID, err)
		}
	})

	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		b.RaidGuard.ObserveJoin(m.GuildID)
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		b.RaidGuard.ObserveMessage(context.Background(), m.GuildID, m.Author.ID)
	})
}
