package ticket

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/datastore"
	"steward/internal/storage"
	st "steward/internal/storagetypes"
	"steward/pkg/jobmgr"
)

type fakeOps struct {
	mu        sync.Mutex
	nextID    int
	channels  map[string]bool
	perms     map[string]map[string]int64 // channelID -> targetID -> allow
	history   map[string][]*discordgo.Message
	embeds    map[string]int
	files     map[string]int
	dms       map[string]int
	roles     map[string][]string // userID -> role IDs
	createErr error
}

func newFakeOps() *fakeOps {
	return &fakeOps{
		channels: make(map[string]bool),
		perms:    make(map[string]map[string]int64),
		history:  make(map[string][]*discordgo.Message),
		embeds:   make(map[string]int),
		files:    make(map[string]int),
		dms:      make(map[string]int),
		roles:    make(map[string][]string),
	}
}

func (f *fakeOps) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("chan-%d", f.nextID)
	f.channels[id] = true
	f.perms[id] = make(map[string]int64)
	for _, ow := range data.PermissionOverwrites {
		f.perms[id][ow.ID] = ow.Allow
	}
	return &discordgo.Channel{ID: id, Name: data.Name}, nil
}

func (f *fakeOps) EditPermission(channelID, targetID string, _ discordgo.PermissionOverwriteType, allow, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.perms[channelID] == nil {
		f.perms[channelID] = make(map[string]int64)
	}
	f.perms[channelID][targetID] = allow
	return nil
}

func (f *fakeOps) DeletePermission(channelID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.perms[channelID], targetID)
	return nil
}

func (f *fakeOps) Messages(channelID string, limit int, beforeID string) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if beforeID != "" {
		return nil, nil
	}
	msgs := f.history[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeOps) SendEmbed(channelID string, _ *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds[channelID]++
	return nil
}

func (f *fakeOps) SendFile(channelID, _ string, _ io.Reader, _ *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[channelID]++
	return nil
}

func (f *fakeOps) DM(userID string, _ *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[userID]++
	return nil
}

func (f *fakeOps) DeleteChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	return nil
}

func (f *fakeOps) MemberRoles(guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roles[userID]...), nil
}

func (f *fakeOps) channelExists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[id]
}

func (f *fakeOps) allow(channelID, targetID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.perms[channelID][targetID]
	return v, ok
}

func newTestManager(t *testing.T) (*Manager, *fakeOps) {
	t.Helper()

	ds, err := datastore.New(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	store := storage.New(ds)
	require.NoError(t, store.SetTicketSetup("g1", st.TicketSetup{
		PanelChannelID: "panel",
		CategoryID:     "cat",
		StaffRoleID:    "staff",
		LogChannelID:   "log",
	}))

	ops := newFakeOps()
	jobs := jobmgr.New()
	t.Cleanup(jobs.StopAll)
	return NewManager(store, ops, jobs, "bot", 10*time.Millisecond, zerolog.Nop()), ops
}

func TestOpenCreatesChannelWithAccessControl(t *testing.T) {
	m, ops := newTestManager(t)

	tk, err := m.Open("g1", "alice-id", "Alice Wonder!")
	require.NoError(t, err)
	assert.Equal(t, st.TicketOpen, tk.Status)
	assert.True(t, ops.channelExists(tk.ChannelID))

	_, everyoneVisible := ops.allow(tk.ChannelID, "g1")
	assert.True(t, everyoneVisible, "everyone overwrite must exist (deny view)")

	allow, ok := ops.allow(tk.ChannelID, "alice-id")
	require.True(t, ok)
	assert.NotZero(t, allow&discordgo.PermissionSendMessages)
}

func TestOpenRejectsSecondTicketForSameOpener(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)

	_, err = m.Open("g1", "alice-id", "alice")
	assert.ErrorIs(t, err, storage.ErrTicketExists)
}

func TestOpenWithoutSetup(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Open("g2", "alice-id", "alice")
	assert.ErrorIs(t, err, ErrNoSetup)
}

func TestClaimOnce(t *testing.T) {
	m, _ := newTestManager(t)
	tk, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)

	require.NoError(t, m.Claim("g1", tk.ChannelID, "staff-1"))
	assert.ErrorIs(t, m.Claim("g1", tk.ChannelID, "staff-2"), ErrAlreadyClaimed)

	stored, err := m.store.Ticket("g1", tk.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, st.TicketClaimed, stored.Status)
	assert.Equal(t, "staff-1", stored.ClaimedBy)
}

func TestLockMirrorsSendPermission(t *testing.T) {
	m, ops := newTestManager(t)
	tk, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)
	require.NoError(t, m.AddMember("g1", tk.ChannelID, "staff-1", "bob-id"))

	require.NoError(t, m.SetLocked("g1", tk.ChannelID, "staff-1", true))

	stored, err := m.store.Ticket("g1", tk.ChannelID)
	require.NoError(t, err)
	assert.True(t, stored.Locked)

	for _, userID := range []string{"alice-id", "bob-id"} {
		allow, ok := ops.allow(tk.ChannelID, userID)
		require.True(t, ok)
		assert.Zero(t, allow&discordgo.PermissionSendMessages, "%s must not send while locked", userID)
	}

	require.NoError(t, m.SetLocked("g1", tk.ChannelID, "staff-1", false))
	allow, _ := ops.allow(tk.ChannelID, "alice-id")
	assert.NotZero(t, allow&discordgo.PermissionSendMessages)
}

func TestMembership(t *testing.T) {
	m, ops := newTestManager(t)
	tk, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)

	require.NoError(t, m.AddMember("g1", tk.ChannelID, "staff-1", "bob-id"))
	assert.ErrorIs(t, m.AddMember("g1", tk.ChannelID, "staff-1", "bob-id"), ErrMemberExists)
	assert.ErrorIs(t, m.AddMember("g1", tk.ChannelID, "staff-1", "alice-id"), ErrMemberExists)

	_, ok := ops.allow(tk.ChannelID, "bob-id")
	assert.True(t, ok)

	require.NoError(t, m.RemoveMember("g1", tk.ChannelID, "staff-1", "bob-id"))
	_, ok = ops.allow(tk.ChannelID, "bob-id")
	assert.False(t, ok)

	assert.ErrorIs(t, m.RemoveMember("g1", tk.ChannelID, "staff-1", "bob-id"), ErrNotMember)
}

func TestCloseIsTerminal(t *testing.T) {
	m, ops := newTestManager(t)
	tk, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)

	closed, err := m.Close("g1", tk.ChannelID, "staff-1", "resolved")
	require.NoError(t, err)
	assert.Equal(t, st.TicketClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	// Every later mutation must fail.
	_, err = m.Close("g1", tk.ChannelID, "staff-1", "again")
	assert.ErrorIs(t, err, storage.ErrTicketClosed)
	assert.ErrorIs(t, m.Claim("g1", tk.ChannelID, "staff-1"), storage.ErrTicketClosed)
	assert.ErrorIs(t, m.SetLocked("g1", tk.ChannelID, "staff-1", true), storage.ErrTicketClosed)

	// Archive fanned out and access got revoked.
	assert.Equal(t, 1, ops.files["log"]+ops.embeds["log"])
	assert.Equal(t, 1, ops.dms["alice-id"])
	_, ok := ops.allow(tk.ChannelID, "alice-id")
	assert.False(t, ok)

	// Channel deletion runs after the configured delay.
	assert.Eventually(t, func() bool { return !ops.channelExists(tk.ChannelID) },
		time.Second, 5*time.Millisecond)
}

func TestCloseKeepsStaffOpenerAccess(t *testing.T) {
	m, ops := newTestManager(t)
	ops.mu.Lock()
	ops.roles["staff-1"] = []string{"staff"}
	ops.mu.Unlock()

	tk, err := m.Open("g1", "staff-1", "staffer")
	require.NoError(t, err)
	require.NoError(t, m.AddMember("g1", tk.ChannelID, "staff-1", "bob-id"))

	_, err = m.Close("g1", tk.ChannelID, "staff-1", "done")
	require.NoError(t, err)

	// The staff opener's overwrite survives; the added member's does not.
	_, ok := ops.allow(tk.ChannelID, "staff-1")
	assert.True(t, ok, "staff opener keeps channel access")
	_, ok = ops.allow(tk.ChannelID, "bob-id")
	assert.False(t, ok)
}

func TestCloseFreesOpenerForNewTicket(t *testing.T) {
	m, _ := newTestManager(t)
	tk, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)

	_, err = m.Close("g1", tk.ChannelID, "alice-id", "")
	require.NoError(t, err)

	next, err := m.Open("g1", "alice-id", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, tk.ChannelID, next.ChannelID)
}

func TestOperationsOnNonTicketChannel(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.Claim("g1", "random-chan", "staff-1"), ErrNotTicket)
	_, err := m.Close("g1", "random-chan", "staff-1", "")
	assert.ErrorIs(t, err, ErrNotTicket)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "ticket-alice-wonder", channelName("Alice Wonder!"))
	assert.Equal(t, "ticket-user", channelName("!!!"))
}

func TestOpenChannelCreateFailure(t *testing.T) {
	m, ops := newTestManager(t)
	ops.createErr = errors.New("api down")

	_, err := m.Open("g1", "alice-id", "alice")
	require.Error(t, err)

	// No record should exist for the failed open.
	_, err = m.store.OpenTicketByOpener("g1", "alice-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
