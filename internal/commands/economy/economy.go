// Package economy implements the per-guild currency: wallets, a daily
// reward, payments, gambling games and the item shop.
package economy

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
	"steward/internal/storage"
)

const (
	currency    = "coins"
	dailyAmount = 250
	dailyWindow = 24 * time.Hour
)

// New returns the economy command set.
func New() []*command.Command {
	return []*command.Command{
		balance(),
		daily(),
		pay(),
		coinflip(),
		slots(),
		shop(),
		shopAdd(),
		buy(),
		inventory(),
	}
}

func balance() *command.Command {
	run := func(ctx *command.Context) error {
		target := ctx.Actor
		if opt := ctx.Option("user"); opt != nil {
			target = opt.UserValue(ctx.Session)
		}

		bal, err := ctx.Store.Balance(ctx.GuildID, target.ID)
		if err != nil {
			return err
		}
		return ctx.ReplyEmbed(&discordgo.MessageEmbed{
			Title:       "Balance",
			Description: fmt.Sprintf("%s has **%d** %s.", target.Username, bal, currency),
		})
	}

	return &command.Command{
		Name:         "balance",
		Description:  "Show a wallet balance.",
		Aliases:      []string{"bal"},
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true},
		Slash: &discordgo.ApplicationCommand{
			Name:        "balance",
			Description: "Show a wallet balance.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Whose balance to show."},
			},
		},
		Run:     run,
		Message: run,
	}
}

func daily() *command.Command {
	run := func(ctx *command.Context) error {
		bal, remaining, err := ctx.Store.ClaimDaily(ctx.GuildID, ctx.Actor.ID, dailyAmount, dailyWindow)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return ctx.ReplyEphemeral(fmt.Sprintf("Already claimed. Come back in %s.", remaining.Round(time.Minute)))
		}
		return ctx.Reply(fmt.Sprintf("You claimed your daily **%d** %s. New balance: **%d**.", dailyAmount, currency, bal))
	}

	return &command.Command{
		Name:         "daily",
		Description:  "Claim the daily reward.",
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true, CooldownSeconds: 5},
		Slash:        &discordgo.ApplicationCommand{Name: "daily", Description: "Claim the daily reward."},
		Run:          run,
		Message:      run,
	}
}

func pay() *command.Command {
	run := func(ctx *command.Context) error {
		var (
			target *discordgo.User
			amount int64
		)
		switch ctx.Kind {
		case command.KindMessage:
			if len(ctx.Args) < 2 || len(ctx.Message.Mentions) == 0 {
				return ctx.ReplyEphemeral("Usage: pay @user <amount>")
			}
			target = ctx.Message.Mentions[0]
			parsed, err := strconv.ParseInt(ctx.Args[len(ctx.Args)-1], 10, 64)
			if err != nil {
				return ctx.ReplyEphemeral("Usage: pay @user <amount>")
			}
			amount = parsed
		default:
			target = ctx.Option("user").UserValue(ctx.Session)
			amount = ctx.Option("amount").IntValue()
		}

		if amount <= 0 {
			return ctx.ReplyEphemeral("The amount must be positive.")
		}
		if target.ID == ctx.Actor.ID || target.Bot {
			return ctx.ReplyEphemeral("You can't pay that user.")
		}

		err := ctx.Store.Transfer(ctx.GuildID, ctx.Actor.ID, target.ID, amount, "pay")
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return ctx.ReplyEphemeral("You don't have that much.")
		}
		if err != nil {
			return err
		}
		return ctx.Reply(fmt.Sprintf("Sent **%d** %s to %s.", amount, currency, target.Username))
	}

	return &command.Command{
		Name:         "pay",
		Description:  "Send coins to another member.",
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true},
		Slash: &discordgo.ApplicationCommand{
			Name:        "pay",
			Description: "Send coins to another member.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Recipient.", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "How much to send.", Required: true, MinValue: &one},
			},
		},
		Run:     run,
		Message: run,
	}
}

func inventory() *command.Command {
	run := func(ctx *command.Context) error {
		itemIDs, err := ctx.Store.Inventory(ctx.GuildID, ctx.Actor.ID)
		if err != nil {
			return err
		}
		if len(itemIDs) == 0 {
			return ctx.ReplyEphemeral("Your inventory is empty. Check the shop.")
		}

		items, err := ctx.Store.ShopItems(ctx.GuildID)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(items))
		for _, item := range items {
			names[item.ID] = item.Name
		}

		counts := make(map[string]int)
		order := make([]string, 0, len(itemIDs))
		for _, id := range itemIDs {
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
		}

		desc := ""
		for _, id := range order {
			name := names[id]
			if name == "" {
				name = id
			}
			desc += fmt.Sprintf("%s ×%d\n", name, counts[id])
		}
		return ctx.ReplyEmbedEphemeral(&discordgo.MessageEmbed{Title: "Inventory", Description: desc})
	}

	return &command.Command{
		Name:         "inventory",
		Description:  "Show the items you own.",
		Aliases:      []string{"inv"},
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true},
		Slash:        &discordgo.ApplicationCommand{Name: "inventory", Description: "Show the items you own."},
		Run:          run,
		Message:      run,
	}
}

var one float64 = 1
