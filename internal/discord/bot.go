// Package discord wires the capability pipeline, the lifecycle
// managers and the error reporter onto a discordgo session.
package discord

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"steward/internal/command"
	"steward/internal/config"
	"steward/internal/storage"
	"steward/internal/ticket"
	"steward/internal/voice"
	"steward/pkg/jobmgr"
)

// Bot owns the session and every subsystem hanging off it.
type Bot struct {
	session    *discordgo.Session
	cfg        *config.Config
	store      *storage.Storage
	registry   *command.Registry
	dispatcher *command.Dispatcher
	tickets    *ticket.Manager
	voices     *voice.Manager
	jobs       *jobmgr.Manager
	log        zerolog.Logger
}

// Deps carries everything the bot needs.
type Deps struct {
	Config     *config.Config
	Store      *storage.Storage
	Registry   *command.Registry
	Dispatcher *command.Dispatcher
	Jobs       *jobmgr.Manager
	Log        zerolog.Logger
}

// New creates the session and the platform-facing managers. The
// session is not opened yet; Run does that.
func New(d Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + d.Config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{
		session:    session,
		cfg:        d.Config,
		store:      d.Store,
		registry:   d.Registry,
		dispatcher: d.Dispatcher,
		jobs:       d.Jobs,
		log:        d.Log,
	}
	return b, nil
}

// Session exposes the underlying session for manager construction.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// SetManagers attaches the lifecycle managers. Separate from New
// because the managers need the session's adapter types first.
func (b *Bot) SetManagers(tickets *ticket.Manager, voices *voice.Manager) {
	b.tickets = tickets
	b.voices = voices
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer b.session.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	b.jobs.StopAll()
	return nil
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.GuildBlacklist, guildID)
}
