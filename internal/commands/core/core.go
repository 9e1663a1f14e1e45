// Package core holds the bot's housekeeping commands.
package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
)

// New returns the core command set. The registry is captured lazily so
// help can enumerate everything registered after it.
func New(reg *command.Registry) []*command.Command {
	return []*command.Command{
		ping(),
		help(reg),
		maintenance(),
	}
}

func ping() *command.Command {
	run := func(ctx *command.Context) error {
		latency := ctx.Session.HeartbeatLatency().Round(time.Millisecond)
		return ctx.Reply(fmt.Sprintf("Pong! Gateway latency: %s", latency))
	}

	return &command.Command{
		Name:        "ping",
		Description: "Check whether the bot is alive and how fast it responds.",
		Category:    "core",
		Slash:       &discordgo.ApplicationCommand{Name: "ping", Description: "Check whether the bot is alive."},
		Run:         run,
		Message:     run,
	}
}

func help(reg *command.Registry) *command.Command {
	run := func(ctx *command.Context) error {
		byCategory := make(map[string][]*command.Command)
		for _, cmd := range reg.All() {
			if cmd.Requirements.DeveloperOnly && !ctx.Gate.IsDeveloper(ctx.Actor.ID) {
				continue
			}
			cat := cmd.Category
			if cat == "" {
				cat = "misc"
			}
			byCategory[cat] = append(byCategory[cat], cmd)
		}

		categories := make([]string, 0, len(byCategory))
		for cat := range byCategory {
			categories = append(categories, cat)
		}
		sort.Strings(categories)

		embed := &discordgo.MessageEmbed{Title: "Commands"}
		for _, cat := range categories {
			var b strings.Builder
			for _, cmd := range byCategory[cat] {
				fmt.Fprintf(&b, "`%s` — %s\n", cmd.Name, cmd.Description)
			}
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  titleCase(cat),
				Value: b.String(),
			})
		}
		return ctx.ReplyEmbedEphemeral(embed)
	}

	return &command.Command{
		Name:        "help",
		Description: "List the available commands.",
		Aliases:     []string{"commands"},
		Category:    "core",
		Slash:       &discordgo.ApplicationCommand{Name: "help", Description: "List the available commands."},
		Run:         run,
		Message:     run,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func maintenance() *command.Command {
	run := func(ctx *command.Context) error {
		next := !ctx.Gate.InMaintenance()
		ctx.Gate.SetMaintenance(next)
		ctx.Log.Info().Bool("maintenance", next).Str("by", ctx.Actor.ID).Msg("maintenance mode toggled")

		if next {
			return ctx.ReplyEphemeral("Maintenance mode enabled. Only developers can run commands.")
		}
		return ctx.ReplyEphemeral("Maintenance mode disabled.")
	}

	return &command.Command{
		Name:        "maintenance",
		Description: "Toggle maintenance mode.",
		Category:    "core",
		Requirements: command.Requirements{
			DeveloperOnly: true,
		},
		Slash:   &discordgo.ApplicationCommand{Name: "maintenance", Description: "Toggle maintenance mode."},
		Run:     run,
		Message: run,
	}
}
