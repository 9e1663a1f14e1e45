package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"steward/internal/storage"
	st "steward/internal/storagetypes"
)

const genericFailureReply = "Something went wrong while running that command. Try again later."

var denyText = map[Reason]string{
	DenyMaintenance:      "The bot is in maintenance mode. Try again later.",
	DenyDevOnly:          "That command is reserved for the bot developers.",
	DenyWrongEnvironment: "That command only works in the test server.",
	DenyModeRestricted:   "That command only works in age-restricted channels.",
	DenyGuildRequired:    "That command only works inside a server.",
	DenyActorPermission:  "You don't have the permissions required for that command.",
	DenyAgentPermission:  "I'm missing the channel permissions required for that command.",
}

// Dispatcher is the central control flow for inbound events: it
// normalizes the event, resolves the capability, runs the gate and the
// cooldown tracker, and invokes the handler. Handler failures never
// propagate to discordgo's own handler layer.
type Dispatcher struct {
	Registry  *Registry
	Gate      *Gate
	Cooldowns *Cooldowns
	Store     *storage.Storage
	Log       zerolog.Logger

	// DefaultPrefix applies to guilds without a stored override.
	DefaultPrefix string

	// OnError receives handler failures for reporting. Deny, cooldown
	// and not-found outcomes are expected and never reach it.
	OnError func(err error, commandName, actorID, guildID string)
}

// HandleInteraction is the discordgo InteractionCreate entrypoint.
//
// Unmatched interactions get an explicit ephemeral error: an
// interaction is always an intentional invocation, unlike free-form
// chat. Compare HandleMessage.
func (d *Dispatcher) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var (
		kind Kind
		key  string
	)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		kind, key = KindSlash, i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		kind, key = KindComponent, CommandKey(i.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		kind, key = KindModal, CommandKey(i.ModalSubmitData().CustomID)
	default:
		return
	}

	ctx := d.interactionContext(s, i, kind)

	cmd, ok := d.Registry.Resolve(key)
	if !ok {
		d.Log.Warn().Str("key", key).Str("kind", string(kind)).Msg("unknown command")
		_ = ctx.ReplyEphemeral("Command not found.")
		return
	}

	d.dispatch(cmd, ctx)
}

// HandleMessage is the discordgo MessageCreate entrypoint. Unmatched
// or unprefixed input is dropped silently: the message path scans all
// chat, so most messages are simply not for us.
func (d *Dispatcher) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	prefix := d.DefaultPrefix
	if m.GuildID != "" {
		if override, ok, err := d.Store.Prefix(m.GuildID); err == nil && ok {
			prefix = override
		}
	}

	line, ok := StripPrefix(m.Content, prefix)
	if !ok {
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	cmd, ok := d.Registry.Resolve(strings.ToLower(fields[0]))
	if !ok {
		return
	}

	ctx := &Context{
		Kind:      KindMessage,
		Session:   s,
		Store:     d.Store,
		Gate:      d.Gate,
		Log:       d.Log.With().Str("command", cmd.Name).Logger(),
		Message:   m,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Actor:     m.Author,
		Member:    m.Member,
		Args:      fields[1:],
	}
	if ctx.Member != nil && ctx.Member.User == nil {
		ctx.Member.User = m.Author
	}

	d.dispatch(cmd, ctx)
}

// dispatch runs the gate, the cooldown tracker and finally the
// handler. Order matters: a denied or cooling-down invocation must not
// consume a cooldown window, and neither outcome is reported as an
// error.
func (d *Dispatcher) dispatch(cmd *Command, ctx *Context) {
	if reason, allowed := d.Gate.Evaluate(cmd.Requirements, d.gateContext(cmd, ctx)); !allowed {
		d.Log.Debug().Str("command", cmd.Name).Str("reason", string(reason)).Msg("gate denied")
		_ = ctx.ReplyEphemeral(denyText[reason])
		return
	}

	// Resolve the handler before arming the cooldown; an invocation
	// with no effect must not consume the actor's window.
	handler := cmd.handlerFor(ctx.Kind)
	if handler == nil {
		if ctx.Kind != KindMessage {
			_ = ctx.ReplyEphemeral("That command can't be used this way.")
		}
		return
	}

	window := time.Duration(cmd.Requirements.CooldownSeconds * float64(time.Second))
	if ok, remaining := d.Cooldowns.TryAcquire(cmd.Name, ctx.actorID(), window); !ok {
		_ = ctx.ReplyEphemeral(fmt.Sprintf("Easy there. Try again in %.1fs.", remaining))
		return
	}

	if err := invoke(handler, ctx); err != nil {
		d.Log.Error().Err(err).Str("command", cmd.Name).Str("actor", ctx.actorID()).Str("guild", ctx.GuildID).Msg("command failed")
		_ = ctx.ReplyEphemeral(genericFailureReply)
		if d.OnError != nil {
			d.OnError(err, cmd.Name, ctx.actorID(), ctx.GuildID)
		}
		return
	}

	d.recordHistory(cmd, ctx)
}

// invoke runs the handler, converting a panic into an error so a
// misbehaving capability cannot take down the event loop.
func invoke(handler func(*Context) error, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx)
}

func (d *Dispatcher) interactionContext(s *discordgo.Session, i *discordgo.InteractionCreate, kind Kind) *Context {
	actor := i.User // DM path
	if i.Member != nil {
		actor = i.Member.User
	}

	ctx := &Context{
		Kind:        kind,
		Session:     s,
		Store:       d.Store,
		Gate:        d.Gate,
		Interaction: i,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		Actor:       actor,
		Member:      i.Member,
	}
	switch kind {
	case KindComponent:
		ctx.CustomID = i.MessageComponentData().CustomID
	case KindModal:
		ctx.CustomID = i.ModalSubmitData().CustomID
	}
	ctx.Log = d.Log.With().Str("kind", string(kind)).Str("guild", ctx.GuildID).Logger()
	return ctx
}

// gateContext snapshots what the gate needs. Permission lookups hit
// the session, so they only happen when the command declares
// permission requirements.
func (d *Dispatcher) gateContext(cmd *Command, ctx *Context) GateContext {
	gc := GateContext{
		ActorID: ctx.actorID(),
		GuildID: ctx.GuildID,
	}

	req := cmd.Requirements
	if len(req.UserPermissions) > 0 && ctx.Member != nil {
		if perms, err := ctx.Session.UserChannelPermissions(gc.ActorID, ctx.ChannelID); err == nil {
			gc.ActorPermissions = perms
		}
	}
	if len(req.BotPermissions) > 0 && ctx.GuildID != "" {
		if bot := ctx.Session.State.User; bot != nil {
			if perms, err := ctx.Session.UserChannelPermissions(bot.ID, ctx.ChannelID); err == nil {
				gc.AgentPermissions = perms
			}
		}
	}
	if req.NSFWOnly {
		if ch, err := ctx.Session.State.Channel(ctx.ChannelID); err == nil {
			gc.ChannelNSFW = ch.NSFW
		}
	}
	return gc
}

// recordHistory appends to the per-guild command log, best-effort.
func (d *Dispatcher) recordHistory(cmd *Command, ctx *Context) {
	if ctx.GuildID == "" || ctx.Actor == nil {
		return
	}
	entry := st.CommandHistoryRecord{
		ChannelID: ctx.ChannelID,
		UserID:    ctx.Actor.ID,
		Username:  ctx.Actor.Username,
		Command:   cmd.Name,
		Datetime:  time.Now(),
	}
	if err := d.Store.AppendCommandHistory(ctx.GuildID, entry); err != nil {
		d.Log.Warn().Err(err).Str("command", cmd.Name).Msg("failed to record command history")
	}
}

// StripPrefix removes the active prefix from a message line. An empty
// prefix means the guild runs in no-prefix mode and every message is
// scanned as a potential command.
func StripPrefix(content, prefix string) (string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" {
		return content, content != ""
	}
	if !strings.HasPrefix(content, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(content, prefix)), true
}

// CommandKey extracts the owning command name from a component or
// modal custom ID. Custom IDs follow the "name:detail" convention.
func CommandKey(customID string) string {
	if idx := strings.IndexAny(customID, ":_"); idx > 0 {
		return customID[:idx]
	}
	return customID
}
