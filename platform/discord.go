package platform

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Elevated permissions: members holding any of these are moderators and may
// not take part in votes.
const elevatedPermissions = discordgo.PermissionAdministrator |
	discordgo.PermissionModerateMembers |
	discordgo.PermissionKickMembers |
	discordgo.PermissionBanMembers |
	discordgo.PermissionManageMessages

// Discord adapts a discordgo session to the model.Platform contract.
type Discord struct {
	session *discordgo.Session
}

// New wraps a discordgo session.
func New(s *discordgo.Session) *Discord {
	return &Discord{session: s}
}

// RestrictMember times a member out until the given time, or indefinitely
// when until is nil (Discord caps timeouts at 28 days; longer mutes are kept
// honest by the expiry reconciler).
func (d *Discord) RestrictMember(guildID, userID string, until *time.Time) error {
	if until == nil {
		far := time.Now().Add(28 * 24 * time.Hour)
		until = &far
	}
	return d.session.GuildMemberTimeout(guildID, userID, until)
}

// UnrestrictMember lifts a member's timeout.
func (d *Discord) UnrestrictMember(guildID, userID string) error {
	return d.session.GuildMemberTimeout(guildID, userID, nil)
}

// BanMember bans a member without deleting message history.
func (d *Discord) BanMember(guildID, userID, reason string) error {
	return d.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

// UnbanMember lifts a ban.
func (d *Discord) UnbanMember(guildID, userID string) error {
	return d.session.GuildBanDelete(guildID, userID)
}

// SendMessage posts to a channel and returns the new message ID.
func (d *Discord) SendMessage(channelID, content string) (string, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EditMessage replaces a message's content.
func (d *Discord) EditMessage(channelID, messageID, content string) error {
	_, err := d.session.ChannelMessageEdit(channelID, messageID, content)
	return err
}

// PinMessage pins a message in its channel.
func (d *Discord) PinMessage(channelID, messageID string) error {
	return d.session.ChannelMessagePin(channelID, messageID)
}

// UnpinMessage unpins a message.
func (d *Discord) UnpinMessage(channelID, messageID string) error {
	return d.session.ChannelMessageUnpin(channelID, messageID)
}

// CanModerate reports whether the bot itself still holds moderation rights
// in the guild.
func (d *Discord) CanModerate(guildID string) (bool, error) {
	if d.session.State == nil || d.session.State.User == nil {
		return false, fmt.Errorf("session has no identified user")
	}
	perms, err := d.guildPermissions(guildID, d.session.State.User.ID)
	if err != nil {
		return false, err
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionModerateMembers|discordgo.PermissionBanMembers) != 0, nil
}

// IsElevated reports whether a member holds moderator-level permissions.
func (d *Discord) IsElevated(guildID, userID string) (bool, error) {
	perms, err := d.guildPermissions(guildID, userID)
	if err != nil {
		return false, err
	}
	return perms&elevatedPermissions != 0, nil
}

// guildPermissions computes a member's guild-level permission set from their
// roles. Member.Permissions is only populated on interaction payloads, so
// background checks have to derive it.
func (d *Discord) guildPermissions(guildID, userID string) (int64, error) {
	guild, err := d.session.Guild(guildID)
	if err != nil {
		return 0, err
	}
	if guild.OwnerID == userID {
		return discordgo.PermissionAdministrator, nil
	}

	member, err := d.session.GuildMember(guildID, userID)
	if err != nil {
		return 0, err
	}

	roleIDs := make(map[string]bool, len(member.Roles)+1)
	for _, id := range member.Roles {
		roleIDs[id] = true
	}
	roleIDs[guildID] = true // @everyone

	var perms int64
	for _, role := range guild.Roles {
		if roleIDs[role.ID] {
			perms |= role.Permissions
		}
	}
	return perms, nil
}
