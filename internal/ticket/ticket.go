// Package ticket implements the support-ticket lifecycle: a dedicated
// channel per ticket, staff claiming, lock/unlock, membership edits and
// terminal close with transcript archival. Storage is the source of
// truth; channel permission overwrites follow the stored state.
package ticket

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"steward/internal/storage"
	st "steward/internal/storagetypes"
	"steward/pkg/jobmgr"
)

var (
	// ErrNoSetup is returned when the guild never ran ticket setup.
	ErrNoSetup = errors.New("ticket: system not configured")

	// ErrAlreadyClaimed is returned when claiming a claimed ticket.
	ErrAlreadyClaimed = errors.New("ticket: already claimed")

	// ErrNotTicket is returned for channels with no ticket record.
	ErrNotTicket = errors.New("ticket: channel is not a ticket")

	// ErrMemberExists is returned when adding a user who already
	// participates in the ticket.
	ErrMemberExists = errors.New("ticket: user already added")

	// ErrNotMember is returned when removing a user who is not an
	// added member. The opener cannot be removed this way.
	ErrNotMember = errors.New("ticket: user is not an added member")
)

const (
	memberAllow = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory

	lockedDeny = discordgo.PermissionSendMessages
)

// ChannelOps is the slice of Discord the ticket subsystem needs. The
// live implementation wraps a session; tests substitute a fake.
type ChannelOps interface {
	CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	EditPermission(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64) error
	DeletePermission(channelID, targetID string) error
	Messages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	SendFile(channelID, name string, r io.Reader, embed *discordgo.MessageEmbed) error
	DM(userID string, embed *discordgo.MessageEmbed) error
	DeleteChannel(channelID string) error
	MemberRoles(guildID, userID string) ([]string, error)
}

// Manager drives ticket state transitions. All methods are safe for
// concurrent use; the invariants (one open ticket per opener, closed
// is terminal) are enforced inside storage, not here.
type Manager struct {
	store       *storage.Storage
	ops         ChannelOps
	jobs        *jobmgr.Manager
	log         zerolog.Logger
	botID       string
	deleteDelay time.Duration
}

func NewManager(store *storage.Storage, ops ChannelOps, jobs *jobmgr.Manager, botID string, deleteDelay time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		store:       store,
		ops:         ops,
		jobs:        jobs,
		log:         log,
		botID:       botID,
		deleteDelay: deleteDelay,
	}
}

// Setup stores the guild's panel channel, category and staff role.
func (m *Manager) Setup(guildID string, setup st.TicketSetup) error {
	return m.store.SetTicketSetup(guildID, setup)
}

// Open creates the ticket channel and record. The channel is visible
// only to the opener, the staff role and the bot. Returns
// storage.ErrTicketExists when the opener already has one open.
func (m *Manager) Open(guildID, openerID, openerName string) (*st.Ticket, error) {
	setup, err := m.store.TicketSetup(guildID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSetup
		}
		return nil, err
	}

	// Cheap pre-check so the common duplicate case fails before the
	// channel exists. CreateTicket re-checks atomically.
	if _, err := m.store.OpenTicketByOpener(guildID, openerID); err == nil {
		return nil, storage.ErrTicketExists
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: openerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberAllow},
		{ID: setup.StaffRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: memberAllow},
		{ID: m.botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberAllow | discordgo.PermissionManageChannels},
	}

	ch, err := m.ops.CreateChannel(guildID, discordgo.GuildChannelCreateData{
		Name:                 channelName(openerName),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             setup.CategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	t := &st.Ticket{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		OpenerID:  openerID,
		ChannelID: ch.ID,
		ParentID:  setup.CategoryID,
		Status:    st.TicketOpen,
		ActionLog: []string{logLine("opened by " + openerID)},
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateTicket(guildID, t); err != nil {
		// Lost the race against a concurrent open. The channel is an
		// orphan, remove it.
		if derr := m.ops.DeleteChannel(ch.ID); derr != nil {
			m.log.Warn().Err(derr).Str("channel", ch.ID).Msg("failed to remove orphaned ticket channel")
		}
		return nil, err
	}

	m.log.Info().Str("guild", guildID).Str("channel", ch.ID).Str("opener", openerID).Msg("ticket opened")
	return t, nil
}

// Claim assigns the ticket to a staff member. Only unclaimed open
// tickets can be claimed.
func (m *Manager) Claim(guildID, channelID, staffID string) error {
	err := m.store.UpdateTicket(guildID, channelID, func(t *st.Ticket) error {
		if t.Status == st.TicketClaimed {
			return fmt.Errorf("claimed by %s: %w", t.ClaimedBy, ErrAlreadyClaimed)
		}
		t.Status = st.TicketClaimed
		t.ClaimedBy = staffID
		t.ActionLog = append(t.ActionLog, logLine("claimed by "+staffID))
		return nil
	})
	return m.mapNotFound(err)
}

// SetLocked flips the stored lock flag and mirrors it onto the
// channel: locked tickets deny sending for the opener and every added
// member while staff keep access.
func (m *Manager) SetLocked(guildID, channelID, actorID string, locked bool) error {
	var affected []string
	err := m.store.UpdateTicket(guildID, channelID, func(t *st.Ticket) error {
		t.Locked = locked
		verb := "unlocked"
		if locked {
			verb = "locked"
		}
		t.ActionLog = append(t.ActionLog, logLine(verb+" by "+actorID))
		affected = append([]string{t.OpenerID}, t.Members...)
		return nil
	})
	if err != nil {
		return m.mapNotFound(err)
	}

	for _, userID := range affected {
		allow, deny := int64(memberAllow), int64(0)
		if locked {
			allow &^= lockedDeny
			deny = lockedDeny
		}
		if err := m.ops.EditPermission(channelID, userID, discordgo.PermissionOverwriteTypeMember, allow, deny); err != nil {
			m.log.Warn().Err(err).Str("channel", channelID).Str("user", userID).Msg("failed to mirror ticket lock onto channel")
		}
	}
	return nil
}

// AddMember grants a user access to the ticket channel and records the
// membership.
func (m *Manager) AddMember(guildID, channelID, actorID, userID string) error {
	err := m.store.UpdateTicket(guildID, channelID, func(t *st.Ticket) error {
		if userID == t.OpenerID {
			return ErrMemberExists
		}
		for _, id := range t.Members {
			if id == userID {
				return ErrMemberExists
			}
		}
		t.Members = append(t.Members, userID)
		t.ActionLog = append(t.ActionLog, logLine(userID+" added by "+actorID))
		return nil
	})
	if err != nil {
		return m.mapNotFound(err)
	}
	if err := m.ops.EditPermission(channelID, userID, discordgo.PermissionOverwriteTypeMember, memberAllow, 0); err != nil {
		return fmt.Errorf("grant channel access: %w", err)
	}
	return nil
}

// RemoveMember revokes an added member's access. The opener cannot be
// removed.
func (m *Manager) RemoveMember(guildID, channelID, actorID, userID string) error {
	err := m.store.UpdateTicket(guildID, channelID, func(t *st.Ticket) error {
		for i, id := range t.Members {
			if id == userID {
				t.Members = append(t.Members[:i], t.Members[i+1:]...)
				t.ActionLog = append(t.ActionLog, logLine(userID+" removed by "+actorID))
				return nil
			}
		}
		return ErrNotMember
	})
	if err != nil {
		return m.mapNotFound(err)
	}
	if err := m.ops.DeletePermission(channelID, userID); err != nil {
		return fmt.Errorf("revoke channel access: %w", err)
	}
	return nil
}

// Close makes the ticket terminal. The stored transition happens
// first; everything after — transcript, DM, access revocation, the
// delayed channel delete — is best effort and never rolls it back.
func (m *Manager) Close(guildID, channelID, actorID, reason string) (*st.Ticket, error) {
	var closed st.Ticket
	err := m.store.UpdateTicket(guildID, channelID, func(t *st.Ticket) error {
		now := time.Now()
		t.Status = st.TicketClosed
		t.CloseReason = reason
		t.ClosedBy = actorID
		t.ClosedAt = &now
		t.ActionLog = append(t.ActionLog, logLine("closed by "+actorID))
		closed = *t
		return nil
	})
	if err != nil {
		return nil, m.mapNotFound(err)
	}

	m.archive(&closed)

	// Staff openers keep their role-level access; revoking their member
	// overwrite would be pointless and losing it after reopen confusing.
	revoke := append([]string(nil), closed.Members...)
	if !m.holdsStaffRole(guildID, closed.OpenerID) {
		revoke = append(revoke, closed.OpenerID)
	}
	for _, userID := range revoke {
		if err := m.ops.DeletePermission(channelID, userID); err != nil {
			m.log.Warn().Err(err).Str("channel", channelID).Str("user", userID).Msg("failed to revoke ticket access")
		}
	}

	m.jobs.Schedule("ticket-delete:"+channelID, m.deleteDelay, func() {
		if err := m.ops.DeleteChannel(channelID); err != nil {
			m.log.Warn().Err(err).Str("channel", channelID).Msg("failed to delete ticket channel")
		}
	})

	m.log.Info().Str("guild", guildID).Str("channel", channelID).Str("by", actorID).Msg("ticket closed")
	return &closed, nil
}

// archive renders the transcript and fans it out to the log channel
// and the opener's DMs. Failures are logged and swallowed.
func (m *Manager) archive(t *st.Ticket) {
	transcript, err := BuildTranscript(m.ops, t.ChannelID)
	if err != nil {
		m.log.Warn().Err(err).Str("channel", t.ChannelID).Msg("failed to build ticket transcript")
		transcript = ""
	}

	embed := closeEmbed(t)
	setup, err := m.store.TicketSetup(t.GuildID)
	if err == nil && setup.LogChannelID != "" {
		if transcript != "" {
			err = m.ops.SendFile(setup.LogChannelID, transcriptName(t), strings.NewReader(transcript), embed)
		} else {
			err = m.ops.SendEmbed(setup.LogChannelID, embed)
		}
		if err != nil {
			m.log.Warn().Err(err).Str("channel", setup.LogChannelID).Msg("failed to archive ticket")
		}
	}

	if err := m.ops.DM(t.OpenerID, embed); err != nil {
		m.log.Debug().Err(err).Str("user", t.OpenerID).Msg("could not DM ticket opener")
	}
}

// holdsStaffRole reports whether the user carries the guild's ticket
// staff role. Lookup failures count as not staff.
func (m *Manager) holdsStaffRole(guildID, userID string) bool {
	setup, err := m.store.TicketSetup(guildID)
	if err != nil || setup.StaffRoleID == "" {
		return false
	}
	roles, err := m.ops.MemberRoles(guildID, userID)
	if err != nil {
		return false
	}
	for _, id := range roles {
		if id == setup.StaffRoleID {
			return true
		}
	}
	return false
}

// mapNotFound turns the storage sentinel into the package one so
// callers don't need to know tickets live in storage.
func (m *Manager) mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotTicket
	}
	return err
}

func closeEmbed(t *st.Ticket) *discordgo.MessageEmbed {
	reason := t.CloseReason
	if reason == "" {
		reason = "No reason given."
	}
	return &discordgo.MessageEmbed{
		Title: "Ticket closed",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Opened by", Value: "<@" + t.OpenerID + ">", Inline: true},
			{Name: "Closed by", Value: "<@" + t.ClosedBy + ">", Inline: true},
			{Name: "Reason", Value: reason},
		},
		Timestamp: t.CreatedAt.Format(time.RFC3339),
	}
}

func channelName(openerName string) string {
	name := strings.ToLower(strings.TrimSpace(openerName))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, name)
	if name == "" {
		name = "user"
	}
	return "ticket-" + name
}

func transcriptName(t *st.Ticket) string {
	return "transcript-" + t.ChannelID + ".txt"
}

func logLine(action string) string {
	return time.Now().UTC().Format("2006-01-02 15:04:05") + " " + action
}
