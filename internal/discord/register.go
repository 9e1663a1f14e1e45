package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
)

// registerCommands syncs one guild's slash commands with the registry:
// obsolete remote commands are deleted, definitions whose hash changed
// are re-created. The hash cache keeps restarts from re-registering an
// unchanged command set.
func (b *Bot) registerCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, _ := b.session.ApplicationCommands(appID, guildID)
	local := b.commandDefinitions()
	hashes := b.loadCommandHashes(guildID)

	localNames := make(map[string]struct{}, len(local))
	for _, def := range local {
		localNames[def.Name] = struct{}{}
	}
	for _, rc := range remote {
		if _, keep := localNames[rc.Name]; keep {
			continue
		}
		b.log.Info().Str("guild", guildID).Str("command", rc.Name).Msg("deleting obsolete slash command")
		if err := b.session.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", rc.Name).Msg("slash delete failed")
			continue
		}
		delete(hashes, rc.Name)
	}

	changed := 0
	for _, def := range local {
		h := hashCommand(def)
		if hashes[def.Name] == h {
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, def); err != nil {
			b.log.Error().Err(err).Str("guild", guildID).Str("command", def.Name).Msg("slash create failed")
			continue
		}
		hashes[def.Name] = h
		changed++
		// Stay well under the registration rate limit.
		time.Sleep(25 * time.Millisecond)
	}

	if changed > 0 {
		b.log.Info().Str("guild", guildID).Int("changed", changed).Msg("slash commands updated")
	}
	b.saveCommandHashes(guildID, hashes)
	return nil
}

// commandDefinitions collects the slash definitions of every
// registered capability.
func (b *Bot) commandDefinitions() []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, cmd := range b.registry.All() {
		if cmd.Slash == nil {
			continue
		}
		def := cmd.Slash
		if def.Type == 0 {
			def.Type = discordgo.ChatApplicationCommand
		}
		defs = append(defs, def)
	}
	return defs
}

// appID returns the application ID, fetching it when the state has not
// seen ready yet.
func (b *Bot) appID() (string, error) {
	if b.session.State.User != nil && b.session.State.User.ID != "" {
		return b.session.State.User.ID, nil
	}
	u, err := b.session.User("@me")
	if err != nil {
		return "", fmt.Errorf("fetch bot user: %w", err)
	}
	return u.ID, nil
}

func (b *Bot) commandHashPath(guildID string) string {
	return filepath.Join(b.cfg.DataDir, "commands", guildID+".json")
}

func (b *Bot) loadCommandHashes(guildID string) map[string]string {
	out := make(map[string]string)
	if data, err := os.ReadFile(b.commandHashPath(guildID)); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	return out
}

func (b *Bot) saveCommandHashes(guildID string, hashes map[string]string) {
	path := b.commandHashPath(guildID)
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	if data, err := json.MarshalIndent(hashes, "", "  "); err == nil {
		_ = os.WriteFile(path, data, 0o644)
	}
}

// hashCommand returns a deterministic SHA-1 over a definition's stable
// fields, ignoring the runtime-only ones Discord fills in.
func hashCommand(c *discordgo.ApplicationCommand) string {
	stable := map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
		"type":        c.Type,
	}
	if len(c.Options) > 0 {
		stable["options"] = normalizeOptions(c.Options)
	}
	data, _ := json.Marshal(stable)
	sum := sha1.Sum(data)
	return fmt.Sprintf("%x", sum)
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	out := make([]map[string]interface{}, len(opts))
	for i, o := range opts {
		entry := map[string]interface{}{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]interface{}{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
