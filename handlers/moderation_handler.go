package handlers

import (
	"context"
	"fmt"
	"log"
	"time"

	"guard-bot/bot"
	"guard-bot/model"
	"guard-bot/utils"
	moderation_db "guard-bot/utils/database/moderation"

	"github.com/bwmarrin/discordgo"
)

func HandleWarn(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target, reason, _ := moderationOptions(i)
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	_, err := b.Mods.Warn(context.Background(), i.GuildID, target, issuerID(i), reason)
	if err != nil {
		log.Printf("Error warning user %s: %v", target, err)
		respond(s, i, "Could not record the warning.")
		return
	}
	respond(s, i, fmt.Sprintf("Warned <@%s>.", target))
}

func HandleMute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target, reason, duration := moderationOptions(i)
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	_, err := b.Mods.Mute(context.Background(), i.GuildID, target, issuerID(i), reason, duration)
	if err != nil {
		log.Printf("Error muting user %s: %v", target, err)
		respond(s, i, "Could not mute the member.")
		return
	}
	respond(s, i, fmt.Sprintf("Muted <@%s>%s.", target, untilText(duration)))
}

func HandleUnmute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target, _, _ := moderationOptions(i)
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	done, err := b.Mods.Unmute(context.Background(), i.GuildID, target)
	if err != nil {
		log.Printf("Error unmuting user %s: %v", target, err)
		respond(s, i, "Could not unmute the member.")
		return
	}
	if !done {
		respond(s, i, fmt.Sprintf("<@%s> has no active mute.", target))
		return
	}
	respond(s, i, fmt.Sprintf("Unmuted <@%s>.", target))
}

func HandleBan(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target, reason, duration := moderationOptions(i)
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	_, err := b.Mods.Ban(context.Background(), i.GuildID, target, issuerID(i), reason, duration)
	if err != nil {
		log.Printf("Error banning user %s: %v", target, err)
		respond(s, i, "Could not ban the member.")
		return
	}
	respond(s, i, fmt.Sprintf("Banned <@%s>%s.", target, untilText(duration)))
}

func HandleUnban(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target, _, _ := moderationOptions(i)
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	done, err := b.Mods.Unban(context.Background(), i.GuildID, target)
	if err != nil {
		log.Printf("Error unbanning user %s: %v", target, err)
		respond(s, i, "Could not unban the member.")
		return
	}
	if !done {
		respond(s, i, fmt.Sprintf("<@%s> has no active ban.", target))
		return
	}
	respond(s, i, fmt.Sprintf("Unbanned <@%s>.", target))
}

func HandleModStats(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	since := time.Now().AddDate(0, 0, -30)
	stats, err := moderation_db.CountPunishmentsSince(b.ModerationDB, i.GuildID, since)
	if err != nil {
		log.Printf("Error reading punishment stats for guild %s: %v", i.GuildID, err)
		respond(s, i, "Could not read moderation stats.")
		return
	}
	respond(s, i, fmt.Sprintf("Last 30 days: %d warns, %d mutes, %d bans.",
		stats[model.PunishmentWarn], stats[model.PunishmentMute], stats[model.PunishmentBan]))
}

// moderationOptions pulls the shared option set out of a moderation command.
func moderationOptions(i *discordgo.InteractionCreate) (target, reason string, duration *time.Duration) {
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "user":
			target = opt.UserValue(nil).ID
		case "reason":
			reason = opt.StringValue()
		case "duration":
			d, err := utils.ParseDuration(opt.StringValue())
			if err == nil && d > 0 {
				duration = &d
			}
		}
	}
	return target, reason, duration
}

func issuerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	return ""
}

func untilText(d *time.Duration) string {
	if d == nil {
		return " permanently"
	}
	return fmt.Sprintf(" for %s", d.Round(time.Second))
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("Error responding to interaction: %v", err)
	}
}
