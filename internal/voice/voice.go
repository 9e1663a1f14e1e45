// Package voice implements join-to-create voice channels: joining the
// trigger channel spawns an ephemeral channel owned by the joiner,
// the owner controls it through the manager, and the channel is
// removed the moment it empties.
package voice

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"steward/internal/storage"
	st "steward/internal/storagetypes"
)

var (
	// ErrNoSetup is returned when the guild never ran voice setup.
	ErrNoSetup = errors.New("voice: system not configured")

	// ErrNotManaged is returned for channels the subsystem does not own.
	ErrNotManaged = errors.New("voice: channel is not managed")

	// ErrNotOwner is returned when a non-owner runs an owner control.
	ErrNotOwner = errors.New("voice: only the channel owner can do that")

	// ErrLimitRange is returned for user limits outside 0..99.
	ErrLimitRange = errors.New("voice: user limit must be between 0 and 99")

	// ErrTargetAbsent is returned when transferring to a user who is
	// not in the channel.
	ErrTargetAbsent = errors.New("voice: target user is not in the channel")

	// ErrNotInChannel is returned when the owner runs a control while
	// not being inside their channel.
	ErrNotInChannel = errors.New("voice: you are not in your channel")
)

const connectAllow = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect

// VoiceOps is the slice of Discord the subsystem needs.
type VoiceOps interface {
	CreateVoiceChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	EditChannel(channelID string, edit *discordgo.ChannelEdit) error
	EditPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error
	DeletePermission(channelID, targetID string) error
	DeleteChannel(channelID string) error
	MoveMember(guildID, userID, channelID string) error
	Disconnect(guildID, userID string) error
	ChannelOccupants(guildID, channelID string) ([]string, error)
	MemberName(guildID, userID string) string
}

// Manager owns the managed-channel state machine.
type Manager struct {
	store *storage.Storage
	ops   VoiceOps
	log   zerolog.Logger
}

func NewManager(store *storage.Storage, ops VoiceOps, log zerolog.Logger) *Manager {
	return &Manager{store: store, ops: ops, log: log}
}

// Setup stores the trigger channel and the category new channels are
// created under.
func (m *Manager) Setup(guildID string, setup st.VoiceSetup) error {
	return m.store.SetVoiceSetup(guildID, setup)
}

// HandleVoiceStateUpdate reacts to one member's voice movement.
// Joining the trigger spawns a channel; leaving a managed channel
// empty removes it; joining a locked managed channel without
// permission reverts the move. Administrators bypass the lock.
func (m *Manager) HandleVoiceStateUpdate(guildID, userID, fromChannelID, toChannelID string, memberRoles []string, isAdmin bool) {
	if fromChannelID == toChannelID {
		return
	}

	if fromChannelID != "" {
		m.collectIfEmpty(guildID, fromChannelID)
	}
	if toChannelID == "" {
		return
	}

	setup, err := m.store.VoiceSetup(guildID)
	if err == nil && toChannelID == setup.TriggerChannelID {
		if err := m.spawn(guildID, userID, setup); err != nil {
			m.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("failed to spawn managed voice channel")
		}
		return
	}

	mv, err := m.store.ManagedVoice(guildID, toChannelID)
	if err != nil {
		return
	}
	if mv.Locked && !isAdmin && !allowedIn(mv, userID, memberRoles) {
		// Send them back where they came from. Disconnect only covers
		// joins from outside voice.
		var err error
		if fromChannelID != "" {
			err = m.ops.MoveMember(guildID, userID, fromChannelID)
		} else {
			err = m.ops.Disconnect(guildID, userID)
		}
		if err != nil {
			m.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("failed to evict from locked channel")
		}
	}
}

// spawn creates the owner's channel and moves them into it.
func (m *Manager) spawn(guildID, ownerID string, setup *st.VoiceSetup) error {
	name := m.ops.MemberName(guildID, ownerID)
	if name == "" {
		name = "voice"
	}

	ch, err := m.ops.CreateVoiceChannel(guildID, discordgo.GuildChannelCreateData{
		Name:     name + "'s channel",
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: setup.ParentID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: ownerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: connectAllow | discordgo.PermissionVoiceMoveMembers},
		},
	})
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	mv := &st.ManagedVoice{
		GuildID:   guildID,
		ChannelID: ch.ID,
		OwnerID:   ownerID,
		Bitrate:   ch.Bitrate,
	}
	if err := m.store.CreateManagedVoice(guildID, mv); err != nil {
		if derr := m.ops.DeleteChannel(ch.ID); derr != nil {
			m.log.Warn().Err(derr).Str("channel", ch.ID).Msg("failed to remove orphaned voice channel")
		}
		return err
	}

	if err := m.ops.MoveMember(guildID, ownerID, ch.ID); err != nil {
		// Owner left before the move. The empty channel gets collected.
		m.collectIfEmpty(guildID, ch.ID)
		return nil
	}

	m.log.Info().Str("guild", guildID).Str("channel", ch.ID).Str("owner", ownerID).Msg("managed voice channel created")
	return nil
}

// collectIfEmpty deletes a managed channel with no occupants, record
// first so a failed channel delete cannot resurrect it.
func (m *Manager) collectIfEmpty(guildID, channelID string) {
	if _, err := m.store.ManagedVoice(guildID, channelID); err != nil {
		return
	}

	occupants, err := m.ops.ChannelOccupants(guildID, channelID)
	if err != nil || len(occupants) > 0 {
		return
	}

	if err := m.store.DeleteManagedVoice(guildID, channelID); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Msg("failed to drop managed voice record")
		return
	}
	if err := m.ops.DeleteChannel(channelID); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Msg("failed to delete empty voice channel")
	}
}

// Rename changes the channel name. Owner only.
func (m *Manager) Rename(guildID, channelID, actorID, name string) error {
	if _, err := m.ownedBy(guildID, channelID, actorID); err != nil {
		return err
	}
	if err := m.ops.EditChannel(channelID, &discordgo.ChannelEdit{Name: name}); err != nil {
		return fmt.Errorf("rename channel: %w", err)
	}
	return nil
}

// SetLimit sets the user limit, 0 meaning unlimited. Owner only.
func (m *Manager) SetLimit(guildID, channelID, actorID string, limit int) error {
	if limit < 0 || limit > 99 {
		return ErrLimitRange
	}
	if _, err := m.ownedBy(guildID, channelID, actorID); err != nil {
		return err
	}
	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		mv.UserLimit = limit
		return nil
	}); err != nil {
		return err
	}
	if err := m.ops.EditChannel(channelID, &discordgo.ChannelEdit{UserLimit: limit}); err != nil {
		return fmt.Errorf("set user limit: %w", err)
	}
	return nil
}

// SetLocked flips the lock flag. While locked, only the owner and the
// allow lists may join; the gate in HandleVoiceStateUpdate enforces
// it and the @everyone connect overwrite mirrors it.
func (m *Manager) SetLocked(guildID, channelID, actorID string, locked bool) error {
	if _, err := m.ownedBy(guildID, channelID, actorID); err != nil {
		return err
	}
	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		mv.Locked = locked
		return nil
	}); err != nil {
		return err
	}

	deny := int64(0)
	if locked {
		deny = discordgo.PermissionVoiceConnect
	}
	if err := m.ops.EditPermission(channelID, guildID, discordgo.PermissionOverwriteTypeRole, 0, deny); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Msg("failed to mirror voice lock onto channel")
	}
	return nil
}

// Permit adds a user or role to the allow list and grants connect.
func (m *Manager) Permit(guildID, channelID, actorID, targetID string, isRole bool) error {
	if _, err := m.ownedBy(guildID, channelID, actorID); err != nil {
		return err
	}
	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		if isRole {
			mv.AllowedRoles = appendUnique(mv.AllowedRoles, targetID)
		} else {
			mv.AllowedUsers = appendUnique(mv.AllowedUsers, targetID)
		}
		return nil
	}); err != nil {
		return err
	}

	targetType := discordgo.PermissionOverwriteTypeMember
	if isRole {
		targetType = discordgo.PermissionOverwriteTypeRole
	}
	if err := m.ops.EditPermission(channelID, targetID, targetType, connectAllow, 0); err != nil {
		return fmt.Errorf("grant connect: %w", err)
	}
	return nil
}

// Reject removes a user or role from the allow list and drops the
// overwrite. A rejected user currently inside gets disconnected.
func (m *Manager) Reject(guildID, channelID, actorID, targetID string, isRole bool) error {
	mv, err := m.ownedBy(guildID, channelID, actorID)
	if err != nil {
		return err
	}
	if !isRole && targetID == mv.OwnerID {
		return ErrNotOwner
	}

	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		if isRole {
			mv.AllowedRoles = removeString(mv.AllowedRoles, targetID)
		} else {
			mv.AllowedUsers = removeString(mv.AllowedUsers, targetID)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := m.ops.DeletePermission(channelID, targetID); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Str("target", targetID).Msg("failed to drop overwrite")
	}
	if !isRole {
		if present, _ := m.isPresent(guildID, channelID, targetID); present {
			if err := m.ops.Disconnect(guildID, targetID); err != nil {
				return fmt.Errorf("disconnect rejected user: %w", err)
			}
		}
	}
	return nil
}

// Kick disconnects a user and removes them from the allow list so a
// locked channel stays closed to them.
func (m *Manager) Kick(guildID, channelID, actorID, userID string) error {
	mv, err := m.ownedBy(guildID, channelID, actorID)
	if err != nil {
		return err
	}
	if userID == mv.OwnerID {
		return ErrNotOwner
	}

	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		mv.AllowedUsers = removeString(mv.AllowedUsers, userID)
		return nil
	}); err != nil {
		return err
	}
	if err := m.ops.Disconnect(guildID, userID); err != nil {
		return fmt.Errorf("disconnect user: %w", err)
	}
	return nil
}

// Transfer hands ownership to another occupant of the channel.
func (m *Manager) Transfer(guildID, channelID, actorID, newOwnerID string) error {
	if _, err := m.ownedBy(guildID, channelID, actorID); err != nil {
		return err
	}
	present, err := m.isPresent(guildID, channelID, newOwnerID)
	if err != nil {
		return err
	}
	if !present {
		return ErrTargetAbsent
	}

	if err := m.store.UpdateManagedVoice(guildID, channelID, func(mv *st.ManagedVoice) error {
		mv.OwnerID = newOwnerID
		return nil
	}); err != nil {
		return err
	}

	if err := m.ops.EditPermission(channelID, newOwnerID, discordgo.PermissionOverwriteTypeMember, connectAllow|discordgo.PermissionVoiceMoveMembers, 0); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Str("owner", newOwnerID).Msg("failed to grant owner overwrite")
	}
	if err := m.ops.DeletePermission(channelID, actorID); err != nil {
		m.log.Warn().Err(err).Str("channel", channelID).Str("user", actorID).Msg("failed to drop previous owner overwrite")
	}
	return nil
}

// Owned returns the record if actorID owns the managed channel and is
// inside it.
func (m *Manager) Owned(guildID, channelID, actorID string) (*st.ManagedVoice, error) {
	return m.ownedBy(guildID, channelID, actorID)
}

// ChannelFor resolves the managed channel the actor currently occupies
// and owns. An owner who left voice gets ErrNotInChannel; a user who
// owns nothing gets ErrNotOwner.
func (m *Manager) ChannelFor(guildID, actorID string) (string, error) {
	channels, err := m.store.ManagedVoiceChannels(guildID)
	if err != nil {
		return "", err
	}

	owned := false
	for _, mv := range channels {
		if mv.OwnerID != actorID {
			continue
		}
		owned = true
		present, err := m.isPresent(guildID, mv.ChannelID, actorID)
		if err != nil {
			return "", err
		}
		if present {
			return mv.ChannelID, nil
		}
	}
	if owned {
		return "", ErrNotInChannel
	}
	return "", ErrNotOwner
}

// ownedBy gates every owner mutation: the channel must be managed, the
// actor must own it and the actor must be inside it.
func (m *Manager) ownedBy(guildID, channelID, actorID string) (*st.ManagedVoice, error) {
	mv, err := m.store.ManagedVoice(guildID, channelID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotManaged
		}
		return nil, err
	}
	if mv.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	present, err := m.isPresent(guildID, channelID, actorID)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, ErrNotInChannel
	}
	return mv, nil
}

func (m *Manager) isPresent(guildID, channelID, userID string) (bool, error) {
	occupants, err := m.ops.ChannelOccupants(guildID, channelID)
	if err != nil {
		return false, fmt.Errorf("list occupants: %w", err)
	}
	for _, id := range occupants {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func allowedIn(mv *st.ManagedVoice, userID string, roles []string) bool {
	if userID == mv.OwnerID {
		return true
	}
	for _, id := range mv.AllowedUsers {
		if id == userID {
			return true
		}
	}
	for _, roleID := range mv.AllowedRoles {
		for _, have := range roles {
			if have == roleID {
				return true
			}
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	for i, have := range list {
		if have == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
