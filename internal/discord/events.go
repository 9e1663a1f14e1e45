package discord

import (
	"github.com/bwmarrin/discordgo"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")

	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.leaveBlacklisted(s, g.ID)
			continue
		}
		if b.cfg.RegisterCommands {
			if err := b.registerCommands(g.ID); err != nil {
				b.log.Error().Err(err).Str("guild", g.ID).Msg("slash registration failed")
			}
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.isGuildBlacklisted(g.Guild.ID) {
		b.leaveBlacklisted(s, g.Guild.ID)
		return
	}

	b.log.Info().Str("guild", g.Guild.ID).Str("name", g.Guild.Name).Msg("guild available")
	if b.cfg.RegisterCommands {
		if err := b.registerCommands(g.Guild.ID); err != nil {
			b.log.Error().Err(err).Str("guild", g.Guild.ID).Msg("slash registration failed")
		}
	}
}

func (b *Bot) leaveBlacklisted(s *discordgo.Session, guildID string) {
	b.log.Info().Str("guild", guildID).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.dispatcher.HandleInteraction(s, i)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State.User != nil && m.Author != nil && m.Author.ID == s.State.User.ID {
		return
	}
	b.dispatcher.HandleMessage(s, m)
}

// onVoiceStateUpdate feeds the join-to-create manager. BeforeUpdate
// carries the previous state, so both the origin and the destination
// channel get a garbage-collection pass.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if b.voices == nil || v.GuildID == "" {
		return
	}
	if s.State.User != nil && v.UserID == s.State.User.ID {
		return
	}

	from := ""
	if v.BeforeUpdate != nil {
		from = v.BeforeUpdate.ChannelID
	}

	var (
		roles   []string
		isAdmin bool
	)
	if member, err := s.State.Member(v.GuildID, v.UserID); err == nil && member != nil {
		roles = member.Roles
	}
	if perms, err := s.State.UserChannelPermissions(v.UserID, v.ChannelID); err == nil {
		isAdmin = perms&discordgo.PermissionAdministrator != 0
	}

	b.voices.HandleVoiceStateUpdate(v.GuildID, v.UserID, from, v.ChannelID, roles, isAdmin)
}
