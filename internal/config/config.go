package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the static runtime configuration, read once at startup.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"data/steward.json"`
	DataDir     string `env:"DATA_DIR" envDefault:"data"`

	// DeveloperIDs is the privileged-operator set: these users bypass
	// maintenance mode and may run dev-only commands.
	DeveloperIDs []string `env:"DEVELOPER_IDS" envSeparator:","`

	// TestGuildID is the guild that test-only commands are restricted to.
	TestGuildID string `env:"TEST_GUILD_ID"`

	// Maintenance starts the bot in maintenance mode when true. The
	// runtime flag can still be toggled with the maintenance command.
	Maintenance bool `env:"MAINTENANCE" envDefault:"false"`

	GuildBlacklist []string `env:"GUILD_BLACKLIST" envSeparator:","`

	// RegisterCommands controls slash command registration on ready.
	// Disable when iterating locally against a guild that already has
	// the current command set.
	RegisterCommands bool `env:"REGISTER_COMMANDS" envDefault:"true"`

	// ErrorWebhookURL is the sink for error reports. Empty disables
	// webhook delivery; reports are then only logged locally.
	ErrorWebhookURL string `env:"ERROR_WEBHOOK_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// DefaultPrefix is used for message commands in guilds that have
	// not configured their own. An empty per-guild override disables
	// the message path entirely for that guild.
	DefaultPrefix string `env:"DEFAULT_PREFIX" envDefault:"!"`

	// TicketDeleteDelay is the grace period between closing a ticket
	// and deleting its channel.
	TicketDeleteDelay time.Duration `env:"TICKET_DELETE_DELAY" envDefault:"10s"`
}

// New loads configuration from the environment, with .env as a
// fallback source for local development.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// IsDeveloper reports whether userID is in the privileged-operator set.
func (c *Config) IsDeveloper(userID string) bool {
	for _, id := range c.DeveloperIDs {
		if id == userID {
			return true
		}
	}
	return false
}
