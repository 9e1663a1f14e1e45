package economy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"steward/internal/command"
	"steward/internal/storage"
)

// outcome is the result of a game round, decided before any money
// moves.
type outcome struct {
	payout int64 // gross return, 0 on loss
	text   string
}

// playWager is the shared game path: parse and validate the wager,
// decide the outcome, settle it in one atomic wallet update, then
// reply. A failed reply cannot duplicate or lose the bet because the
// settlement already happened exactly once.
func playWager(ctx *command.Context, game string, play func(wager int64) outcome) error {
	wager, err := wagerArg(ctx)
	if err != nil {
		return ctx.ReplyEphemeral(err.Error())
	}

	result := play(wager)
	balance, err := ctx.Store.SettleWager(ctx.GuildID, ctx.Actor.ID, wager, result.payout, game)
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return ctx.ReplyEphemeral("You don't have enough to cover that wager.")
	}
	if err != nil {
		return err
	}

	return ctx.ReplyEmbed(&discordgo.MessageEmbed{
		Title:       strings.ToUpper(game[:1]) + game[1:],
		Description: fmt.Sprintf("%s\nBalance: **%d** %s", result.text, balance, currency),
	})
}

func wagerArg(ctx *command.Context) (int64, error) {
	var wager int64
	if ctx.Kind == command.KindMessage {
		if len(ctx.Args) == 0 {
			return 0, errors.New("Tell me how much to wager.")
		}
		parsed, err := strconv.ParseInt(ctx.Args[0], 10, 64)
		if err != nil {
			return 0, errors.New("The wager must be a number.")
		}
		wager = parsed
	} else {
		wager = ctx.Option("wager").IntValue()
	}

	if wager <= 0 {
		return 0, errors.New("The wager must be positive.")
	}
	return wager, nil
}

func coinflip() *command.Command {
	run := func(ctx *command.Context) error {
		return playWager(ctx, "coinflip", func(wager int64) outcome {
			if rand.IntN(2) == 0 {
				return outcome{payout: wager * 2, text: "🪙 Heads! You doubled your wager."}
			}
			return outcome{payout: 0, text: "🪙 Tails. Better luck next time."}
		})
	}

	return &command.Command{
		Name:         "coinflip",
		Description:  "Double or nothing on a coin toss.",
		Aliases:      []string{"cf"},
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true, CooldownSeconds: 5},
		Slash: &discordgo.ApplicationCommand{
			Name:        "coinflip",
			Description: "Double or nothing on a coin toss.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "wager", Description: "How much to risk.", Required: true, MinValue: &one},
			},
		},
		Run:     run,
		Message: run,
	}
}

var slotReels = []string{"🍒", "🍋", "🍇", "🔔", "⭐", "7️⃣"}

func slots() *command.Command {
	run := func(ctx *command.Context) error {
		return playWager(ctx, "slots", func(wager int64) outcome {
			a, b, c := rand.IntN(len(slotReels)), rand.IntN(len(slotReels)), rand.IntN(len(slotReels))
			row := slotReels[a] + " " + slotReels[b] + " " + slotReels[c]

			switch {
			case a == b && b == c:
				return outcome{payout: wager * 10, text: row + "\nJackpot! 10× payout."}
			case a == b || b == c || a == c:
				return outcome{payout: wager * 2, text: row + "\nTwo of a kind, 2× payout."}
			default:
				return outcome{payout: 0, text: row + "\nNo match."}
			}
		})
	}

	return &command.Command{
		Name:         "slots",
		Description:  "Spin the slot machine.",
		Category:     "economy",
		Requirements: command.Requirements{GuildOnly: true, CooldownSeconds: 5},
		Slash: &discordgo.ApplicationCommand{
			Name:        "slots",
			Description: "Spin the slot machine.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "wager", Description: "How much to risk.", Required: true, MinValue: &one},
			},
		},
		Run:     run,
		Message: run,
	}
}
