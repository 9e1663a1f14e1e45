// Package voicecmd exposes the join-to-create system as commands: an
// admin setup command and the owner controls, both as slash
// subcommands and as a button panel.
package voicecmd

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
	st "steward/internal/storagetypes"
	"steward/internal/voice"
)

const (
	lockButtonID   = "voice:lock"
	unlockButtonID = "voice:unlock"
	renameButtonID = "voice:rename"
	renameModalID  = "voice:rename-modal"
	nameInputID    = "name"
)

// New returns the voice command set.
func New(m *voice.Manager) []*command.Command {
	return []*command.Command{
		setup(m),
		controls(m),
	}
}

func setup(m *voice.Manager) *command.Command {
	run := func(ctx *command.Context) error {
		cfg := st.VoiceSetup{
			TriggerChannelID: ctx.Option("trigger").ChannelValue(nil).ID,
		}
		if opt := ctx.Option("category"); opt != nil {
			cfg.ParentID = opt.ChannelValue(nil).ID
		}

		if err := m.Setup(ctx.GuildID, cfg); err != nil {
			return err
		}
		return ctx.ReplyEphemeral("Join-to-create configured. Joining the trigger channel now spawns a personal channel.")
	}

	return &command.Command{
		Name:        "voice-setup",
		Description: "Configure the join-to-create voice system.",
		Category:    "voice",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionManageServer},
			BotPermissions:  []int64{discordgo.PermissionManageChannels, discordgo.PermissionVoiceMoveMembers},
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "voice-setup",
			Description: "Configure the join-to-create voice system.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "trigger", Description: "Voice channel that spawns personal channels.", Required: true},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "category", Description: "Category the spawned channels go under."},
			},
		},
		Run: run,
	}
}

// controls is the single "voice" capability: owner subcommands plus
// the button panel.
func controls(m *voice.Manager) *command.Command {
	run := func(ctx *command.Context) error {
		options := ctx.Interaction.ApplicationCommandData().Options
		if len(options) == 0 {
			return ctx.ReplyEphemeral("Pick a subcommand.")
		}
		sub := options[0]

		channelID, err := ownChannel(m, ctx)
		if err != nil {
			return voiceErrReply(ctx, err)
		}

		switch sub.Name {
		case "panel":
			return sendPanel(ctx)
		case "rename":
			return voiceErrReply(ctx, m.Rename(ctx.GuildID, channelID, ctx.Actor.ID, sub.Options[0].StringValue()))
		case "limit":
			return voiceErrReply(ctx, m.SetLimit(ctx.GuildID, channelID, ctx.Actor.ID, int(sub.Options[0].IntValue())))
		case "lock":
			return voiceErrReply(ctx, m.SetLocked(ctx.GuildID, channelID, ctx.Actor.ID, true))
		case "unlock":
			return voiceErrReply(ctx, m.SetLocked(ctx.GuildID, channelID, ctx.Actor.ID, false))
		case "permit":
			return voiceErrReply(ctx, permitTarget(m, ctx, channelID, sub, true))
		case "reject":
			return voiceErrReply(ctx, permitTarget(m, ctx, channelID, sub, false))
		case "kick":
			user := sub.Options[0].UserValue(ctx.Session)
			return voiceErrReply(ctx, m.Kick(ctx.GuildID, channelID, ctx.Actor.ID, user.ID))
		case "transfer":
			user := sub.Options[0].UserValue(ctx.Session)
			return voiceErrReply(ctx, m.Transfer(ctx.GuildID, channelID, ctx.Actor.ID, user.ID))
		}
		return ctx.ReplyEphemeral("Unknown subcommand.")
	}

	component := func(ctx *command.Context) error {
		channelID, err := ownChannel(m, ctx)
		if err != nil {
			return voiceErrReply(ctx, err)
		}

		switch ctx.CustomID {
		case lockButtonID:
			return voiceErrReply(ctx, m.SetLocked(ctx.GuildID, channelID, ctx.Actor.ID, true))
		case unlockButtonID:
			return voiceErrReply(ctx, m.SetLocked(ctx.GuildID, channelID, ctx.Actor.ID, false))
		case renameButtonID:
			return ctx.RespondModal(renameModalID, "Rename your channel", []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  nameInputID,
						Label:     "New name",
						Style:     discordgo.TextInputShort,
						Required:  true,
						MaxLength: 100,
					},
				}},
			})
		}
		return ctx.ReplyEphemeral("That button does nothing anymore.")
	}

	modal := func(ctx *command.Context) error {
		if ctx.CustomID != renameModalID {
			return nil
		}
		channelID, err := ownChannel(m, ctx)
		if err != nil {
			return voiceErrReply(ctx, err)
		}
		return voiceErrReply(ctx, m.Rename(ctx.GuildID, channelID, ctx.Actor.ID, ctx.ModalInput(nameInputID)))
	}

	return &command.Command{
		Name:         "voice",
		Description:  "Control your personal voice channel.",
		Category:     "voice",
		Requirements: command.Requirements{GuildOnly: true},
		Slash: &discordgo.ApplicationCommand{
			Name:        "voice",
			Description: "Control your personal voice channel.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "panel", Description: "Show the control panel."},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "rename", Description: "Rename your channel.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "New channel name.", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "limit", Description: "Set the user limit (0 = unlimited).",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "0 to 99.", Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "lock", Description: "Lock your channel."},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unlock", Description: "Unlock your channel."},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "permit", Description: "Allow a user or role to join.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionMentionable, Name: "target", Description: "User or role to allow.", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "reject", Description: "Revoke a user's or role's access.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionMentionable, Name: "target", Description: "User or role to revoke.", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "kick", Description: "Disconnect a user from your channel.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to disconnect.", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "transfer", Description: "Hand ownership to someone in the channel.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "New owner.", Required: true},
					},
				},
			},
		},
		Run:       run,
		Component: component,
		Modal:     modal,
	}
}

// ownChannel resolves the managed channel the actor currently sits in
// and owns. Ownership alone is not enough; controls only work from
// inside the channel.
func ownChannel(m *voice.Manager, ctx *command.Context) (string, error) {
	return m.ChannelFor(ctx.GuildID, ctx.Actor.ID)
}

func permitTarget(m *voice.Manager, ctx *command.Context, channelID string, sub *discordgo.ApplicationCommandInteractionDataOption, allow bool) error {
	targetID := sub.Options[0].Value.(string)
	isRole := ctx.Interaction.ApplicationCommandData().Resolved.Roles[targetID] != nil

	if allow {
		return m.Permit(ctx.GuildID, channelID, ctx.Actor.ID, targetID, isRole)
	}
	return m.Reject(ctx.GuildID, channelID, ctx.Actor.ID, targetID, isRole)
}

func sendPanel(ctx *command.Context) error {
	return ctx.Session.InteractionRespond(ctx.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Voice channel controls",
				Description: "Manage your personal channel.",
				Color:       command.EmbedColor,
			}},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Rename", Style: discordgo.SecondaryButton, CustomID: renameButtonID},
					discordgo.Button{Label: "Lock", Style: discordgo.DangerButton, CustomID: lockButtonID},
					discordgo.Button{Label: "Unlock", Style: discordgo.SuccessButton, CustomID: unlockButtonID},
				}},
			},
		},
	})
}

// voiceErrReply folds the manager sentinels into user-facing replies;
// nil becomes a confirmation.
func voiceErrReply(ctx *command.Context, err error) error {
	switch {
	case err == nil:
		return ctx.ReplyEphemeral("Done.")
	case errors.Is(err, voice.ErrNotOwner):
		return ctx.ReplyEphemeral("You don't own a personal voice channel here.")
	case errors.Is(err, voice.ErrNotInChannel):
		return ctx.ReplyEphemeral("Join your channel first.")
	case errors.Is(err, voice.ErrNotManaged):
		return ctx.ReplyEphemeral("That channel isn't managed by me.")
	case errors.Is(err, voice.ErrLimitRange):
		return ctx.ReplyEphemeral("The limit must be between 0 and 99.")
	case errors.Is(err, voice.ErrTargetAbsent):
		return ctx.ReplyEphemeral("They need to be in your channel first.")
	}
	return err
}
