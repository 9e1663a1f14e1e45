package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"steward/datastore"
	"steward/internal/command"
	"steward/internal/commands/core"
	"steward/internal/commands/economy"
	"steward/internal/commands/mod"
	"steward/internal/commands/ticketcmd"
	"steward/internal/commands/voicecmd"
	"steward/internal/config"
	"steward/internal/discord"
	"steward/internal/errreport"
	"steward/internal/logutil"
	"steward/internal/storage"
	"steward/internal/ticket"
	"steward/internal/voice"
	"steward/pkg/jobmgr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "steward:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logutil.New(cfg.LogLevel, cfg.LogFile)
	log.Info().Msg("starting steward")

	ds, err := datastore.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer ds.Close()
	store := storage.New(ds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := command.NewGate(cfg.DeveloperIDs, cfg.TestGuildID, cfg.Maintenance)
	cooldowns := command.NewCooldowns()
	defer cooldowns.Stop()
	registry := command.NewRegistry()
	jobs := jobmgr.New()

	// The reporter needs the session for its webhook sink, and the
	// dispatcher is built before the session exists, so OnError closes
	// over the variable.
	var reporter *errreport.Reporter
	dispatcher := &command.Dispatcher{
		Registry:      registry,
		Gate:          gate,
		Cooldowns:     cooldowns,
		Store:         store,
		Log:           log,
		DefaultPrefix: cfg.DefaultPrefix,
		OnError: func(err error, commandName, actorID, guildID string) {
			reporter.Report(err, errreport.Context{Command: commandName, ActorID: actorID, GuildID: guildID})
		},
	}

	bot, err := discord.New(discord.Deps{
		Config:     cfg,
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Jobs:       jobs,
		Log:        log,
	})
	if err != nil {
		return err
	}

	var sink errreport.Sink
	if cfg.ErrorWebhookURL != "" {
		webhook, err := errreport.NewWebhookSink(bot.Session(), cfg.ErrorWebhookURL)
		if err != nil {
			return fmt.Errorf("error webhook: %w", err)
		}
		sink = webhook
	}
	reporter = errreport.New(sink, errreport.DefaultOptions(), log)

	botID := appUserID(bot)
	tickets := ticket.NewManager(store, bot.ChannelOps(), jobs, botID, cfg.TicketDeleteDelay, log)
	voices := voice.NewManager(store, bot.VoiceOps(), log)
	bot.SetManagers(tickets, voices)

	var defs []*command.Command
	defs = append(defs, core.New(registry)...)
	defs = append(defs, economy.New()...)
	defs = append(defs, ticketcmd.New(tickets)...)
	defs = append(defs, voicecmd.New(voices)...)
	defs = append(defs, mod.New()...)
	if errs := registry.RegisterAll(defs...); len(errs) > 0 {
		return fmt.Errorf("register commands: %w", errors.Join(errs...))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reporter.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return bot.Run(ctx)
	})

	err = g.Wait()
	log.Info().Msg("steward stopped")
	return err
}

// appUserID fetches the bot's own user ID before the gateway opens, so
// the ticket manager can grant the bot access to ticket channels.
func appUserID(bot *discord.Bot) string {
	if u, err := bot.Session().User("@me"); err == nil {
		return u.ID
	}
	return ""
}
