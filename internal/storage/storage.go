// Package storage is the repository layer over the datastore. Each
// guild maps to one Record document; every mutation goes through
// DataStore.Update so individual storage calls are atomic.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"steward/datastore"
	st "steward/internal/storagetypes"
)

const commandHistoryLimit = 50

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// Record is the full persisted state of one guild.
type Record struct {
	Prefix         *string                            `json:"prefix,omitempty"`
	CommandHistory []st.CommandHistoryRecord          `json:"cmd_history,omitempty"`
	Wallets        map[string]*st.Wallet              `json:"wallets,omitempty"`
	Inventories    map[string][]string                `json:"inventories,omitempty"`
	ShopItems      map[string]st.ShopItem             `json:"shop_items,omitempty"`
	Transactions   []st.Transaction                   `json:"transactions,omitempty"`
	Tickets        map[string]*st.Ticket              `json:"tickets,omitempty"`
	TicketSetup    *st.TicketSetup                    `json:"ticket_setup,omitempty"`
	VoiceChannels  map[string]*st.ManagedVoice        `json:"voice_channels,omitempty"`
	VoiceSetup     *st.VoiceSetup                     `json:"voice_setup,omitempty"`
	Infractions    map[string][]st.Infraction         `json:"infractions,omitempty"`
}

type Storage struct {
	ds *datastore.DataStore
}

func New(ds *datastore.DataStore) *Storage {
	return &Storage{ds: ds}
}

// guildRecord decodes the guild document, returning an empty record
// for unknown guilds.
func (s *Storage) guildRecord(guildID string) (*Record, error) {
	rec := &Record{}
	if _, err := s.ds.Get(guildID, rec); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return rec, nil
}

// updateGuild runs fn against the guild record under the store lock.
func (s *Storage) updateGuild(guildID string, fn func(rec *Record) error) error {
	return s.ds.Update(guildID, func(raw json.RawMessage) (any, error) {
		rec := &Record{}
		if raw != nil {
			if err := json.Unmarshal(raw, rec); err != nil {
				return nil, fmt.Errorf("decode guild %s: %w", guildID, err)
			}
		}
		if err := fn(rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

// GuildIDs lists all guilds with stored state.
func (s *Storage) GuildIDs() []string {
	return s.ds.Keys()
}

// Prefix returns the guild's message-command prefix. The boolean is
// false when the guild has no override and the caller should use the
// configured default. An explicit empty override disables the message
// path for the guild.
func (s *Storage) Prefix(guildID string) (string, bool, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return "", false, err
	}
	if rec.Prefix == nil {
		return "", false, nil
	}
	return *rec.Prefix, true, nil
}

// SetPrefix stores a per-guild prefix override.
func (s *Storage) SetPrefix(guildID, prefix string) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		rec.Prefix = &prefix
		return nil
	})
}

// AppendCommandHistory records a command invocation, trimming the log
// to the retention limit.
func (s *Storage) AppendCommandHistory(guildID string, entry st.CommandHistoryRecord) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		rec.CommandHistory = append(rec.CommandHistory, entry)
		if n := len(rec.CommandHistory); n > commandHistoryLimit {
			rec.CommandHistory = rec.CommandHistory[n-commandHistoryLimit:]
		}
		return nil
	})
}

// CommandHistory returns the guild's recent command log.
func (s *Storage) CommandHistory(guildID string) ([]st.CommandHistoryRecord, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandHistory, nil
}
