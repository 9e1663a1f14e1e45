package storage

import (
	"fmt"

	st "steward/internal/storagetypes"
)

// VoiceSetup returns the guild's join-to-create configuration.
func (s *Storage) VoiceSetup(guildID string) (*st.VoiceSetup, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	if rec.VoiceSetup == nil {
		return nil, fmt.Errorf("voice setup: %w", ErrNotFound)
	}
	return rec.VoiceSetup, nil
}

// SetVoiceSetup stores the guild's join-to-create configuration.
func (s *Storage) SetVoiceSetup(guildID string, setup st.VoiceSetup) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		rec.VoiceSetup = &setup
		return nil
	})
}

// CreateManagedVoice inserts a managed channel record.
func (s *Storage) CreateManagedVoice(guildID string, mv *st.ManagedVoice) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		if rec.VoiceChannels == nil {
			rec.VoiceChannels = make(map[string]*st.ManagedVoice)
		}
		rec.VoiceChannels[mv.ChannelID] = mv
		return nil
	})
}

// ManagedVoice returns the managed-channel record for channelID.
func (s *Storage) ManagedVoice(guildID, channelID string) (*st.ManagedVoice, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	mv, ok := rec.VoiceChannels[channelID]
	if !ok {
		return nil, fmt.Errorf("managed voice %s: %w", channelID, ErrNotFound)
	}
	return mv, nil
}

// ManagedVoiceChannels returns all managed-channel records of a guild.
func (s *Storage) ManagedVoiceChannels(guildID string) ([]*st.ManagedVoice, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	out := make([]*st.ManagedVoice, 0, len(rec.VoiceChannels))
	for _, mv := range rec.VoiceChannels {
		out = append(out, mv)
	}
	return out, nil
}

// UpdateManagedVoice mutates a managed-channel record atomically.
// Ownership transfer goes through here, so there is no window where
// two owners are visible.
func (s *Storage) UpdateManagedVoice(guildID, channelID string, fn func(mv *st.ManagedVoice) error) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		mv, ok := rec.VoiceChannels[channelID]
		if !ok {
			return fmt.Errorf("managed voice %s: %w", channelID, ErrNotFound)
		}
		return fn(mv)
	})
}

// DeleteManagedVoice removes a managed-channel record.
func (s *Storage) DeleteManagedVoice(guildID, channelID string) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		delete(rec.VoiceChannels, channelID)
		return nil
	})
}
