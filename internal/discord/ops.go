package discord

import (
	"io"

	"github.com/bwmarrin/discordgo"

	"steward/internal/ticket"
	"steward/internal/voice"
)

// ChannelOps returns the live ticket.ChannelOps bound to the session.
func (b *Bot) ChannelOps() ticket.ChannelOps {
	return &sessionChannelOps{s: b.session}
}

// VoiceOps returns the live voice.VoiceOps bound to the session.
func (b *Bot) VoiceOps() voice.VoiceOps {
	return &sessionVoiceOps{s: b.session}
}

type sessionChannelOps struct {
	s *discordgo.Session
}

func (o *sessionChannelOps) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return o.s.GuildChannelCreateComplex(guildID, data)
}

func (o *sessionChannelOps) EditPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return o.s.ChannelPermissionSet(channelID, targetID, targetType, allow, deny)
}

func (o *sessionChannelOps) DeletePermission(channelID, targetID string) error {
	return o.s.ChannelPermissionDelete(channelID, targetID)
}

func (o *sessionChannelOps) Messages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	return o.s.ChannelMessages(channelID, limit, beforeID, "", "")
}

func (o *sessionChannelOps) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := o.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (o *sessionChannelOps) SendFile(channelID, name string, r io.Reader, embed *discordgo.MessageEmbed) error {
	_, err := o.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files:  []*discordgo.File{{Name: name, ContentType: "text/plain", Reader: r}},
	})
	return err
}

func (o *sessionChannelOps) DM(userID string, embed *discordgo.MessageEmbed) error {
	ch, err := o.s.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = o.s.ChannelMessageSendEmbed(ch.ID, embed)
	return err
}

func (o *sessionChannelOps) DeleteChannel(channelID string) error {
	_, err := o.s.ChannelDelete(channelID)
	return err
}

func (o *sessionChannelOps) MemberRoles(guildID, userID string) ([]string, error) {
	if member, err := o.s.State.Member(guildID, userID); err == nil && member != nil {
		return member.Roles, nil
	}
	member, err := o.s.GuildMember(guildID, userID)
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}

type sessionVoiceOps struct {
	s *discordgo.Session
}

func (o *sessionVoiceOps) CreateVoiceChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return o.s.GuildChannelCreateComplex(guildID, data)
}

func (o *sessionVoiceOps) EditChannel(channelID string, edit *discordgo.ChannelEdit) error {
	_, err := o.s.ChannelEdit(channelID, edit)
	return err
}

func (o *sessionVoiceOps) EditPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error {
	return o.s.ChannelPermissionSet(channelID, targetID, targetType, allow, deny)
}

func (o *sessionVoiceOps) DeletePermission(channelID, targetID string) error {
	return o.s.ChannelPermissionDelete(channelID, targetID)
}

func (o *sessionVoiceOps) DeleteChannel(channelID string) error {
	_, err := o.s.ChannelDelete(channelID)
	return err
}

func (o *sessionVoiceOps) MoveMember(guildID, userID, channelID string) error {
	return o.s.GuildMemberMove(guildID, userID, &channelID)
}

func (o *sessionVoiceOps) Disconnect(guildID, userID string) error {
	return o.s.GuildMemberMove(guildID, userID, nil)
}

// ChannelOccupants reads the cached guild voice states.
func (o *sessionVoiceOps) ChannelOccupants(guildID, channelID string) ([]string, error) {
	guild, err := o.s.State.Guild(guildID)
	if err != nil {
		return nil, err
	}

	var users []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			users = append(users, vs.UserID)
		}
	}
	return users, nil
}

func (o *sessionVoiceOps) MemberName(guildID, userID string) string {
	if member, err := o.s.State.Member(guildID, userID); err == nil && member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil {
			return member.User.Username
		}
	}
	if user, err := o.s.User(userID); err == nil {
		return user.Username
	}
	return ""
}
