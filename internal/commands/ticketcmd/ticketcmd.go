// Package ticketcmd exposes the support-ticket system as commands: an
// admin setup command that posts the panel, a button that opens
// tickets and a slash command with the staff lifecycle actions.
package ticketcmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
	"steward/internal/storage"
	st "steward/internal/storagetypes"
	"steward/internal/ticket"
)

const (
	openButtonID  = "ticket:open"
	closeButtonID = "ticket:close"
	claimButtonID = "ticket:claim"
	closeModalID  = "ticket:close-modal"
	reasonInputID = "reason"
)

// New returns the ticket command set.
func New(m *ticket.Manager) []*command.Command {
	return []*command.Command{
		setup(m),
		lifecycle(m),
	}
}

func setup(m *ticket.Manager) *command.Command {
	run := func(ctx *command.Context) error {
		cfg := st.TicketSetup{
			PanelChannelID: ctx.Option("panel").ChannelValue(nil).ID,
			StaffRoleID:    ctx.Option("staff-role").RoleValue(nil, "").ID,
		}
		if opt := ctx.Option("category"); opt != nil {
			cfg.CategoryID = opt.ChannelValue(nil).ID
		}
		if opt := ctx.Option("log-channel"); opt != nil {
			cfg.LogChannelID = opt.ChannelValue(nil).ID
		}

		if err := m.Setup(ctx.GuildID, cfg); err != nil {
			return err
		}

		_, err := ctx.Session.ChannelMessageSendComplex(cfg.PanelChannelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Support",
				Description: "Need help? Press the button below and a private channel will be opened for you.",
				Color:       command.EmbedColor,
			}},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Open a ticket",
						Style:    discordgo.PrimaryButton,
						CustomID: openButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🎫"},
					},
				}},
			},
		})
		if err != nil {
			return fmt.Errorf("post ticket panel: %w", err)
		}
		return ctx.ReplyEphemeral("Ticket system configured and panel posted.")
	}

	return &command.Command{
		Name:        "ticket-setup",
		Description: "Configure the ticket system and post the panel.",
		Category:    "ticket",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionManageServer},
			BotPermissions:  []int64{discordgo.PermissionManageChannels},
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "ticket-setup",
			Description: "Configure the ticket system and post the panel.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "panel", Description: "Channel for the open-a-ticket panel.", Required: true},
				{Type: discordgo.ApplicationCommandOptionRole, Name: "staff-role", Description: "Role that handles tickets.", Required: true},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "category", Description: "Category ticket channels are created under."},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "log-channel", Description: "Channel transcripts are archived to."},
			},
		},
		Run: run,
	}
}

// lifecycle is the single "ticket" capability: the panel button and
// close modal arrive here as components, staff actions as slash
// subcommands.
func lifecycle(m *ticket.Manager) *command.Command {
	component := func(ctx *command.Context) error {
		switch ctx.CustomID {
		case openButtonID:
			return openTicket(m, ctx)
		case closeButtonID:
			return ctx.RespondModal(closeModalID, "Close ticket", []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    reasonInputID,
						Label:       "Reason",
						Style:       discordgo.TextInputShort,
						Placeholder: "Why is this ticket being closed?",
					},
				}},
			})
		case claimButtonID:
			return claimTicket(m, ctx)
		}
		return ctx.ReplyEphemeral("That button does nothing anymore.")
	}

	modal := func(ctx *command.Context) error {
		if ctx.CustomID != closeModalID {
			return nil
		}
		return closeTicket(m, ctx, ctx.ModalInput(reasonInputID))
	}

	run := func(ctx *command.Context) error {
		options := ctx.Interaction.ApplicationCommandData().Options
		if len(options) == 0 {
			return ctx.ReplyEphemeral("Pick a subcommand.")
		}
		sub := options[0]

		switch sub.Name {
		case "close":
			reason := ""
			if len(sub.Options) > 0 {
				reason = sub.Options[0].StringValue()
			}
			return closeTicket(m, ctx, reason)
		case "claim":
			return claimTicket(m, ctx)
		case "lock":
			return lockTicket(m, ctx, true)
		case "unlock":
			return lockTicket(m, ctx, false)
		case "add":
			return editMembers(m, ctx, sub, true)
		case "remove":
			return editMembers(m, ctx, sub, false)
		}
		return ctx.ReplyEphemeral("Unknown subcommand.")
	}

	return &command.Command{
		Name:         "ticket",
		Description:  "Manage the ticket you are in.",
		Category:     "ticket",
		Requirements: command.Requirements{GuildOnly: true},
		Slash: &discordgo.ApplicationCommand{
			Name:        "ticket",
			Description: "Manage the ticket you are in.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "close", Description: "Close this ticket.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Why the ticket is closed."},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "claim", Description: "Claim this ticket."},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "lock", Description: "Lock this ticket."},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "unlock", Description: "Unlock this ticket."},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "add", Description: "Add a member to this ticket.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to add.", Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "Remove a member from this ticket.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to remove.", Required: true},
					},
				},
			},
		},
		Run:       run,
		Component: component,
		Modal:     modal,
	}
}

func openTicket(m *ticket.Manager, ctx *command.Context) error {
	name := ctx.Actor.Username
	if ctx.Member != nil && ctx.Member.Nick != "" {
		name = ctx.Member.Nick
	}

	t, err := m.Open(ctx.GuildID, ctx.Actor.ID, name)
	switch {
	case errors.Is(err, storage.ErrTicketExists):
		return ctx.ReplyEphemeral("You already have an open ticket.")
	case errors.Is(err, ticket.ErrNoSetup):
		return ctx.ReplyEphemeral("The ticket system is not set up here.")
	case err != nil:
		return err
	}

	// Greet inside the new channel with the staff controls.
	_, err = ctx.Session.ChannelMessageSendComplex(t.ChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s>, describe your issue and staff will be with you shortly.", ctx.Actor.ID),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Claim", Style: discordgo.SuccessButton, CustomID: claimButtonID},
				discordgo.Button{Label: "Close", Style: discordgo.DangerButton, CustomID: closeButtonID},
			}},
		},
	})
	if err != nil {
		ctx.Log.Warn().Err(err).Str("channel", t.ChannelID).Msg("failed to post ticket greeting")
	}
	return ctx.ReplyEphemeral(fmt.Sprintf("Your ticket is ready: <#%s>", t.ChannelID))
}

func claimTicket(m *ticket.Manager, ctx *command.Context) error {
	if ok, err := requireStaff(ctx); !ok {
		return err
	}

	err := m.Claim(ctx.GuildID, ctx.ChannelID, ctx.Actor.ID)
	switch {
	case errors.Is(err, ticket.ErrAlreadyClaimed):
		return ctx.ReplyEphemeral("This ticket is already claimed.")
	case errors.Is(err, ticket.ErrNotTicket):
		return ctx.ReplyEphemeral("This channel is not a ticket.")
	case err != nil:
		return err
	}
	return ctx.Reply(fmt.Sprintf("<@%s> will handle this ticket.", ctx.Actor.ID))
}

func lockTicket(m *ticket.Manager, ctx *command.Context, locked bool) error {
	if ok, err := requireStaff(ctx); !ok {
		return err
	}

	err := m.SetLocked(ctx.GuildID, ctx.ChannelID, ctx.Actor.ID, locked)
	switch {
	case errors.Is(err, ticket.ErrNotTicket):
		return ctx.ReplyEphemeral("This channel is not a ticket.")
	case errors.Is(err, storage.ErrTicketClosed):
		return ctx.ReplyEphemeral("This ticket is closed.")
	case err != nil:
		return err
	}
	if locked {
		return ctx.Reply("🔒 Ticket locked. Only staff can reply.")
	}
	return ctx.Reply("🔓 Ticket unlocked.")
}

func closeTicket(m *ticket.Manager, ctx *command.Context, reason string) error {
	t, err := m.Close(ctx.GuildID, ctx.ChannelID, ctx.Actor.ID, strings.TrimSpace(reason))
	switch {
	case errors.Is(err, ticket.ErrNotTicket):
		return ctx.ReplyEphemeral("This channel is not a ticket.")
	case errors.Is(err, storage.ErrTicketClosed):
		return ctx.ReplyEphemeral("This ticket is already closed.")
	case err != nil:
		return err
	}
	return ctx.Reply(fmt.Sprintf("Ticket closed by <@%s>. This channel will be removed shortly.", t.ClosedBy))
}

func editMembers(m *ticket.Manager, ctx *command.Context, sub *discordgo.ApplicationCommandInteractionDataOption, add bool) error {
	if ok, err := requireStaff(ctx); !ok {
		return err
	}
	user := sub.Options[0].UserValue(ctx.Session)

	if add {
		err := m.AddMember(ctx.GuildID, ctx.ChannelID, ctx.Actor.ID, user.ID)
		switch {
		case errors.Is(err, ticket.ErrMemberExists):
			return ctx.ReplyEphemeral("They already have access.")
		case errors.Is(err, ticket.ErrNotTicket):
			return ctx.ReplyEphemeral("This channel is not a ticket.")
		case err != nil:
			return err
		}
		return ctx.Reply(fmt.Sprintf("Added <@%s> to the ticket.", user.ID))
	}

	err := m.RemoveMember(ctx.GuildID, ctx.ChannelID, ctx.Actor.ID, user.ID)
	switch {
	case errors.Is(err, ticket.ErrNotMember):
		return ctx.ReplyEphemeral("They are not an added member of this ticket.")
	case errors.Is(err, ticket.ErrNotTicket):
		return ctx.ReplyEphemeral("This channel is not a ticket.")
	case err != nil:
		return err
	}
	return ctx.Reply(fmt.Sprintf("Removed <@%s> from the ticket.", user.ID))
}

// requireStaff allows the configured staff role and administrators.
// When the actor is not staff it sends the refusal itself and reports
// ok=false.
func requireStaff(ctx *command.Context) (bool, error) {
	if ctx.Member == nil {
		return false, ctx.ReplyEphemeral("This only works inside a guild.")
	}
	if ctx.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}

	setup, err := ctx.Store.TicketSetup(ctx.GuildID)
	if err != nil {
		return false, ctx.ReplyEphemeral("The ticket system is not set up here.")
	}
	for _, roleID := range ctx.Member.Roles {
		if roleID == setup.StaffRoleID {
			return true, nil
		}
	}
	return false, ctx.ReplyEphemeral("Only ticket staff can do that.")
}
