package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"guard-bot/bot"
	"guard-bot/votemute"

	"github.com/bwmarrin/discordgo"
)

func HandleVoteMute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	var target string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "user" {
			target = opt.UserValue(nil).ID
		}
	}
	if target == "" {
		respond(s, i, "No target user given.")
		return
	}
	creator := issuerID(i)
	if target == creator {
		respond(s, i, "You cannot start a vote against yourself.")
		return
	}

	v, err := b.VoteEngine.StartVote(context.Background(), i.GuildID, i.ChannelID, target, creator)
	if err != nil {
		switch {
		case errors.Is(err, votemute.ErrVoteInProgress):
			respond(s, i, "A vote is already running in this chat.")
		case errors.Is(err, votemute.ErrOnCooldown):
			respond(s, i, "A vote was started here too recently, try again later.")
		default:
			log.Printf("Error starting vote against %s in guild %s: %v", target, i.GuildID, err)
			respond(s, i, "Could not start the vote.")
		}
		return
	}
	respond(s, i, fmt.Sprintf("Vote %d started. Ballots close <t:%d:R>.", v.VoteID, v.Deadline))
}

func HandleBallot(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	var choice string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "choice" {
			choice = opt.StringValue()
		}
	}

	v, err := b.VoteEngine.ActiveVote(i.GuildID)
	if err != nil {
		log.Printf("Error looking up active vote in guild %s: %v", i.GuildID, err)
		respond(s, i, "Could not look up the running vote.")
		return
	}
	if v == nil {
		respond(s, i, "There is no vote running in this chat.")
		return
	}

	tally, err := b.VoteEngine.CastBallot(context.Background(), v.VoteID, issuerID(i), choice)
	if err != nil {
		switch {
		case errors.Is(err, votemute.ErrIneligibleVoter):
			respond(s, i, "You may not take part in this vote.")
		case errors.Is(err, votemute.ErrBallotCooldown):
			respond(s, i, "You changed your ballot too recently, wait a moment.")
		case errors.Is(err, votemute.ErrNoSuchVote):
			respond(s, i, "That vote has already finished.")
		default:
			log.Printf("Error casting ballot in vote %d: %v", v.VoteID, err)
			respond(s, i, "Could not record your ballot.")
		}
		return
	}
	respond(s, i, fmt.Sprintf("Ballot recorded. Current tally: %d yes / %d no.", tally.Yes, tally.No))
}
