package economy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"steward/internal/command"
	"steward/internal/storage"
	st "steward/internal/storagetypes"
)

func shop() *command.Command {
	run := func(ctx *command.Context) error {
		items, err := ctx.Store.ShopItems(ctx.GuildID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ctx.ReplyEphemeral("The shop is empty.")
		}

		embed := &discordgo.MessageEmbed{Title: "Shop"}
		for _, item := range items {
			desc := item.Description
			if desc == "" {
				desc = "No description."
			}
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s — %d %s", item.Name, item.Price, currency),
				Value: fmt.Sprintf("%s\nBuy with `buy %s`", desc, item.ID),
			})
		}
		return ctx.ReplyEmbed(embed)
	}

	return &command.Command{
		Name:         "shop",
		Description:  "Browse the guild shop.",
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true},
		Slash:        &discordgo.ApplicationCommand{Name: "shop", Description: "Browse the guild shop."},
		Run:          run,
		Message:      run,
	}
}

func shopAdd() *command.Command {
	run := func(ctx *command.Context) error {
		name := strings.TrimSpace(ctx.Option("name").StringValue())
		price := ctx.Option("price").IntValue()
		description := ""
		if opt := ctx.Option("description"); opt != nil {
			description = opt.StringValue()
		}

		item := st.ShopItem{
			ID:          shortID(),
			Name:        name,
			Description: description,
			Price:       price,
		}
		if err := ctx.Store.PutShopItem(ctx.GuildID, item); err != nil {
			return err
		}
		return ctx.ReplyEphemeral(fmt.Sprintf("Added **%s** (`%s`) for %d %s.", item.Name, item.ID, item.Price, currency))
	}

	return &command.Command{
		Name:        "shop-add",
		Description: "Add an item to the guild shop.",
		Category:    "economy",
		Requirements: command.Requirements{
			GuildOnly:       true,
			UserPermissions: []int64{discordgo.PermissionManageServer},
		},
		Slash: &discordgo.ApplicationCommand{
			Name:        "shop-add",
			Description: "Add an item to the guild shop.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Item name.", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "price", Description: "Item price.", Required: true, MinValue: &one},
				{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Item description."},
			},
		},
		Run: run,
	}
}

func buy() *command.Command {
	run := func(ctx *command.Context) error {
		var itemID string
		if ctx.Kind == command.KindMessage {
			if len(ctx.Args) == 0 {
				return ctx.ReplyEphemeral("Usage: buy <item-id>")
			}
			itemID = ctx.Args[0]
		} else {
			itemID = ctx.Option("item").StringValue()
		}

		item, err := ctx.Store.BuyItem(ctx.GuildID, ctx.Actor.ID, itemID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return ctx.ReplyEphemeral("No such item. Check the shop for IDs.")
		case errors.Is(err, storage.ErrInsufficientFunds):
			return ctx.ReplyEphemeral("You can't afford that.")
		case err != nil:
			return err
		}
		return ctx.Reply(fmt.Sprintf("You bought **%s** for %d %s.", item.Name, item.Price, currency))
	}

	return &command.Command{
		Name:         "buy",
		Description:  "Buy an item from the shop.",
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true},
		Slash: &discordgo.ApplicationCommand{
			Name:        "buy",
			Description: "Buy an item from the shop.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "item", Description: "Item ID from the shop.", Required: true},
			},
		},
		Run:     run,
		Message: run,
	}
}

// shortID returns the first UUID group, plenty for per-guild item IDs.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
