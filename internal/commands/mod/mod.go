// Package mod holds the moderation utilities: bulk message deletion
// and the warning ledger.
package mod

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"steward/internal/command"
	st "steward/internal/storagetypes"
)

// New returns the moderation command set.
func New() []*command.Command {
	return []*command.Command{
		purge(),
		warn(),
		infractions(),
	}
}

func purge() *command.Command {
	run := func(ctx *command.Context) error {
		count := int(ctx.Option("count").IntValue())

		msgs, err := ctx.Session.ChannelMessages(ctx.ChannelID, count, "", "", "")
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		// Bulk delete refuses messages older than two weeks; split them
		// out and drop them one by one.
		cutoff := time.Now().AddDate(0, 0, -14)
		var bulk []string
		var old []string
		for _, msg := range msgs {
			if msg.Timestamp.After(cutoff) {
				bulk = append(bulk, msg.ID)
			} else {
				old = append(old, msg.ID)
			}
		}

		if len(bulk) > 0 {
			if err := ctx.Session.ChannelMessagesBulkDelete(ctx.ChannelID, bulk); err != nil {
				return fmt.Errorf("bulk delete: %w", err)
			}
		}
		for _, id := range old {
			if err := ctx.Session.ChannelMessageDelete(ctx.ChannelID, id); err != nil {
				ctx.Log.Warn().Err(err).Str("channel", ctx.ChannelID).Str("message", id).Msg("failed to delete old message")
			}
		}

		return ctx.ReplyEphemeral(fmt.Sprintf("Deleted %d messages.", len(bulk)+len(old)))
	}

	return &command.Command{
		Name:        "purge",
		Description: "Delete the last N messages in this channel.",
		Category:    "mod",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionManageMessages},
			BotPermissions:  []int64{discordgo.PermissionManageMessages},
			CooldownSeconds: 10,
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "purge",
			Description: "Delete the last N messages in this channel.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "count", Description: "How many messages (max 100).", Required: true, MinValue: &minCount, MaxValue: 100},
			},
		},
		Run: run,
	}
}

func warn() *command.Command {
	run := func(ctx *command.Context) error {
		user := ctx.Option("user").UserValue(ctx.Session)
		reason := ctx.Option("reason").StringValue()

		inf := st.Infraction{
			ID:     uuid.NewString(),
			UserID: user.ID,
			ModID:  ctx.Actor.ID,
			Reason: reason,
			At:     time.Now(),
		}
		if err := ctx.Store.AddInfraction(ctx.GuildID, inf); err != nil {
			return err
		}

		all, err := ctx.Store.Infractions(ctx.GuildID, user.ID)
		if err != nil {
			return err
		}

		// Best effort, users can close their DMs.
		if dm, err := ctx.Session.UserChannelCreate(user.ID); err == nil {
			_, _ = ctx.Session.ChannelMessageSend(dm.ID, fmt.Sprintf("You were warned in a server: %s", reason))
		}

		return ctx.Reply(fmt.Sprintf("Warned %s (%d total). Reason: %s", user.Username, len(all), reason))
	}

	return &command.Command{
		Name:        "warn",
		Description: "Record a warning against a member.",
		Category:    "mod",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionModerateMembers},
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "warn",
			Description: "Record a warning against a member.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to warn.", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "What they did.", Required: true},
			},
		},
		Run: run,
	}
}

func infractions() *command.Command {
	run := func(ctx *command.Context) error {
		user := ctx.Option("user").UserValue(ctx.Session)

		all, err := ctx.Store.Infractions(ctx.GuildID, user.ID)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return ctx.ReplyEphemeral(fmt.Sprintf("%s has a clean record.", user.Username))
		}

		embed := &discordgo.MessageEmbed{
			Title: fmt.Sprintf("Infractions for %s (%d)", user.Username, len(all)),
		}
		for _, inf := range all {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  inf.At.Format("2006-01-02 15:04"),
				Value: fmt.Sprintf("%s — by <@%s>", inf.Reason, inf.ModID),
			})
		}
		return ctx.ReplyEmbedEphemeral(embed)
	}

	return &command.Command{
		Name:        "infractions",
		Description: "Show a member's warning history.",
		Category:    "mod",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionModerateMembers},
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "infractions",
			Description: "Show a member's warning history.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to look up.", Required: true},
			},
		},
		Run: run,
	}
}

var minCount float64 = 1
