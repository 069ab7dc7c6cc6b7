package commands

import "github.com/bwmarrin/discordgo"

// Generate builds the application command set.
func Generate() []*discordgo.ApplicationCommand {
	moderatorPerms := int64(discordgo.PermissionModerateMembers)

	userOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: desc,
			Required:    true,
		}
	}
	reasonOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason for the action",
	}
	durationOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: "Duration such as 30m, 2h or 7d; omit for permanent",
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "warn",
			Description:              "Warn a member",
			DefaultMemberPermissions: &moderatorPerms,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to warn"), reasonOption},
		},
		{
			Name:                     "mute",
			Description:              "Mute a member",
			DefaultMemberPermissions: &moderatorPerms,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to mute"), durationOption, reasonOption},
		},
		{
			Name:                     "unmute",
			Description:              "Lift a member's mute",
			DefaultMemberPermissions: &moderatorPerms,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to unmute")},
		},
		{
			Name:                     "ban",
			Description:              "Ban a member",
			DefaultMemberPermissions: &moderatorPerms,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to ban"), durationOption, reasonOption},
		},
		{
			Name:                     "unban",
			Description:              "Lift a member's ban",
			DefaultMemberPermissions: &moderatorPerms,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to unban")},
		},
		{
			Name:        "votemute",
			Description: "Start a vote to mute a member",
			Options:     []*discordgo.ApplicationCommandOption{userOption("Member the vote is about")},
		},
		{
			Name:        "vote",
			Description: "Cast your ballot in the running vote",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "choice",
					Description: "Your ballot",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "yes", Value: "yes"},
						{Name: "no", Value: "no"},
					},
				},
			},
		},
		{
			Name:        "modstats",
			Description: "Show moderation activity for this chat",
		},
		{
			Name:        "status",
			Description: "Show bot system status",
		},
	}
}
