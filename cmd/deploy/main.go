// Command deploy bulk-overwrites the slash command set for an
// application, globally or for one guild. Meant for CI and first-time
// setup; the bot itself keeps guilds in sync incrementally.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
	"steward/internal/commands/core"
	"steward/internal/commands/economy"
	"steward/internal/commands/mod"
	"steward/internal/commands/ticketcmd"
	"steward/internal/commands/voicecmd"
	"steward/internal/config"
	"steward/internal/logutil"
)

func main() {
	guildID := flag.String("guild", "", "guild to deploy to (empty = global)")
	flag.Parse()

	if err := run(*guildID); err != nil {
		fmt.Fprintln(os.Stderr, "deploy:", err)
		os.Exit(1)
	}
}

func run(guildID string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logutil.New(cfg.LogLevel, "")

	// Handlers never run here; nil managers are fine, only the slash
	// definitions are read.
	registry := command.NewRegistry()
	var defs []*command.Command
	defs = append(defs, core.New(registry)...)
	defs = append(defs, economy.New()...)
	defs = append(defs, ticketcmd.New(nil)...)
	defs = append(defs, voicecmd.New(nil)...)
	defs = append(defs, mod.New()...)
	if errs := registry.RegisterAll(defs...); len(errs) > 0 {
		return errors.Join(errs...)
	}

	var payload []*discordgo.ApplicationCommand
	for _, cmd := range registry.All() {
		if cmd.Slash == nil {
			continue
		}
		if cmd.Slash.Type == 0 {
			cmd.Slash.Type = discordgo.ChatApplicationCommand
		}
		payload = append(payload, cmd.Slash)
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	app, err := session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch application user: %w", err)
	}

	created, err := session.ApplicationCommandBulkOverwrite(app.ID, guildID, payload)
	if err != nil {
		return fmt.Errorf("bulk overwrite: %w", err)
	}

	scope := "global"
	if guildID != "" {
		scope = "guild " + guildID
	}
	log.Info().Int("commands", len(created)).Str("scope", scope).Msg("slash commands deployed")
	return nil
}
