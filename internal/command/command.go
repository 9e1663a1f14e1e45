// Package command implements the inbound-event pipeline: a registry of
// capability descriptors, a permission/mode gate, a cooldown tracker
// and the dispatcher that ties them together.
package command

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"steward/internal/storage"
)

const EmbedColor = 0x4e6af0

// DefaultCooldownSeconds applies to commands that do not declare their
// own cooldown window.
const DefaultCooldownSeconds = 3.0

// Kind is the normalized inbound event kind.
type Kind string

const (
	KindSlash     Kind = "slash"
	KindComponent Kind = "component"
	KindModal     Kind = "modal"
	KindMessage   Kind = "message"
)

// Requirements declares what the gate checks before a handler runs.
// The zero value is an open, guild-agnostic command with the default
// cooldown.
type Requirements struct {
	DeveloperOnly bool
	GuildOnly     bool
	NSFWOnly      bool
	TestGuildOnly bool

	// UserPermissions is any-of: the actor needs at least one of them
	// (administrators always pass). BotPermissions is all-of.
	UserPermissions []int64
	BotPermissions  []int64

	CooldownSeconds float64
}

// Command is a single capability: static metadata plus one handler per
// supported event kind. Definitions are immutable after registration.
type Command struct {
	Name        string
	Description string
	Aliases     []string
	Category    string

	Requirements Requirements

	// Slash is the application-command definition registered with
	// Discord. Nil for message-only or component-only capabilities.
	Slash *discordgo.ApplicationCommand

	Run       func(*Context) error // slash invocation
	Component func(*Context) error // button / select, matched by custom ID prefix
	Modal     func(*Context) error // modal submission
	Message   func(*Context) error // prefixed text message
}

func (c *Command) handlerFor(kind Kind) func(*Context) error {
	switch kind {
	case KindSlash:
		return c.Run
	case KindComponent:
		return c.Component
	case KindModal:
		return c.Modal
	case KindMessage:
		return c.Message
	}
	return nil
}

func (c *Command) hasHandler() bool {
	return c.Run != nil || c.Component != nil || c.Modal != nil || c.Message != nil
}

// Context is the normalized request handed to a handler. Exactly one
// of Interaction/Message is set, depending on Kind.
type Context struct {
	Kind    Kind
	Session *discordgo.Session
	Store   *storage.Storage
	Gate    *Gate
	Log     zerolog.Logger

	Interaction *discordgo.InteractionCreate
	Message     *discordgo.MessageCreate

	GuildID   string
	ChannelID string
	Actor     *discordgo.User
	Member    *discordgo.Member // nil outside guilds

	// Args holds the whitespace-split arguments of a message command.
	Args []string

	// CustomID is the raw component or modal custom ID.
	CustomID string
}

// Reply sends a public plain-text reply appropriate to the event kind.
func (c *Context) Reply(content string) error {
	if c.Kind == KindMessage {
		_, err := c.Session.ChannelMessageSend(c.ChannelID, content)
		return err
	}
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// ReplyEphemeral sends a reply visible only to the actor. On the
// message path there is no ephemeral primitive, so it falls back to a
// regular channel message.
func (c *Context) ReplyEphemeral(content string) error {
	if c.Kind == KindMessage {
		_, err := c.Session.ChannelMessageSend(c.ChannelID, content)
		return err
	}
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// ReplyEmbed sends a public embed reply.
func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	if embed.Color == 0 {
		embed.Color = EmbedColor
	}
	if c.Kind == KindMessage {
		_, err := c.Session.ChannelMessageSendEmbed(c.ChannelID, embed)
		return err
	}
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
}

// ReplyEmbedEphemeral sends an embed reply visible only to the actor.
func (c *Context) ReplyEmbedEphemeral(embed *discordgo.MessageEmbed) error {
	if embed.Color == 0 {
		embed.Color = EmbedColor
	}
	if c.Kind == KindMessage {
		_, err := c.Session.ChannelMessageSendEmbed(c.ChannelID, embed)
		return err
	}
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// RespondModal opens a modal in response to a component interaction.
func (c *Context) RespondModal(customID, title string, components []discordgo.MessageComponent) error {
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: components,
		},
	})
}

// Option returns a named slash-command option, or nil.
func (c *Context) Option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	if c.Interaction == nil {
		return nil
	}
	for _, opt := range c.Interaction.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// ModalInput returns the value of a text input in a modal submission.
func (c *Context) ModalInput(customID string) string {
	if c.Interaction == nil {
		return ""
	}
	for _, row := range c.Interaction.ModalSubmitData().Components {
		actionRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionRow.Components {
			if input, ok := comp.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}

// SelectValues returns the chosen values of a select-menu interaction.
func (c *Context) SelectValues() []string {
	if c.Interaction == nil || c.Kind != KindComponent {
		return nil
	}
	return c.Interaction.MessageComponentData().Values
}

func (c *Context) String() string {
	return fmt.Sprintf("%s event in guild=%s channel=%s by actor=%s", c.Kind, c.GuildID, c.ChannelID, c.actorID())
}

func (c *Context) actorID() string {
	if c.Actor != nil {
		return c.Actor.ID
	}
	return ""
}
