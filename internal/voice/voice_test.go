package voice

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/datastore"
	"steward/internal/storage"
	st "steward/internal/storagetypes"
)

type fakeVoiceOps struct {
	mu        sync.Mutex
	nextID    int
	channels  map[string]bool
	occupants map[string][]string // channelID -> userIDs
	names     map[string]string
	limits    map[string]int
	perms     map[string]map[string]int64
	kicked    []string
}

func newFakeVoiceOps() *fakeVoiceOps {
	return &fakeVoiceOps{
		channels:  make(map[string]bool),
		occupants: make(map[string][]string),
		names:     make(map[string]string),
		limits:    make(map[string]int),
		perms:     make(map[string]map[string]int64),
	}
}

func (f *fakeVoiceOps) CreateVoiceChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("voice-%d", f.nextID)
	f.channels[id] = true
	f.names[id] = data.Name
	f.perms[id] = make(map[string]int64)
	for _, ow := range data.PermissionOverwrites {
		f.perms[id][ow.ID] = ow.Allow
	}
	return &discordgo.Channel{ID: id, Name: data.Name, Bitrate: 64000}, nil
}

func (f *fakeVoiceOps) EditChannel(channelID string, edit *discordgo.ChannelEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if edit.Name != "" {
		f.names[channelID] = edit.Name
	}
	if edit.UserLimit != 0 {
		f.limits[channelID] = edit.UserLimit
	}
	return nil
}

func (f *fakeVoiceOps) EditPermission(channelID, targetID string, _ discordgo.PermissionOverwriteType, allow, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.perms[channelID] == nil {
		f.perms[channelID] = make(map[string]int64)
	}
	f.perms[channelID][targetID] = allow
	return nil
}

func (f *fakeVoiceOps) DeletePermission(channelID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.perms[channelID], targetID)
	return nil
}

func (f *fakeVoiceOps) DeleteChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	delete(f.occupants, channelID)
	return nil
}

func (f *fakeVoiceOps) MoveMember(guildID, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, users := range f.occupants {
		for i, u := range users {
			if u == userID {
				f.occupants[id] = append(users[:i], users[i+1:]...)
			}
		}
	}
	f.occupants[channelID] = append(f.occupants[channelID], userID)
	return nil
}

func (f *fakeVoiceOps) Disconnect(guildID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, users := range f.occupants {
		for i, u := range users {
			if u == userID {
				f.occupants[id] = append(users[:i], users[i+1:]...)
			}
		}
	}
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakeVoiceOps) ChannelOccupants(guildID, channelID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.occupants[channelID]...), nil
}

func (f *fakeVoiceOps) MemberName(guildID, userID string) string {
	return userID
}

func (f *fakeVoiceOps) channelExists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[id]
}

func newTestManager(t *testing.T) (*Manager, *fakeVoiceOps, *storage.Storage) {
	t.Helper()

	ds, err := datastore.New(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	store := storage.New(ds)
	require.NoError(t, store.SetVoiceSetup("g1", st.VoiceSetup{
		TriggerChannelID: "trigger",
		ParentID:         "cat",
	}))

	ops := newFakeVoiceOps()
	return NewManager(store, ops, zerolog.Nop()), ops, store
}

// spawnFor simulates a user joining the trigger channel and returns
// the managed channel created for them.
func spawnFor(t *testing.T, m *Manager, store *storage.Storage, userID string) *st.ManagedVoice {
	t.Helper()
	m.HandleVoiceStateUpdate("g1", userID, "", "trigger", nil, false)

	channels, err := store.ManagedVoiceChannels("g1")
	require.NoError(t, err)
	for _, mv := range channels {
		if mv.OwnerID == userID {
			return mv
		}
	}
	t.Fatalf("no managed channel created for %s", userID)
	return nil
}

func TestTriggerJoinSpawnsOwnedChannel(t *testing.T) {
	m, ops, store := newTestManager(t)

	mv := spawnFor(t, m, store, "alice")
	assert.Equal(t, "alice", mv.OwnerID)
	assert.Equal(t, 64000, mv.Bitrate)
	assert.True(t, ops.channelExists(mv.ChannelID))

	// The owner got moved into their new channel.
	occ, err := ops.ChannelOccupants("g1", mv.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, occ)
}

func TestEmptyChannelCollected(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	// Alice leaves; channel is now empty and must be removed.
	ops.mu.Lock()
	ops.occupants[mv.ChannelID] = nil
	ops.mu.Unlock()
	m.HandleVoiceStateUpdate("g1", "alice", mv.ChannelID, "", nil, false)

	assert.False(t, ops.channelExists(mv.ChannelID))
	_, err := store.ManagedVoice("g1", mv.ChannelID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOccupiedChannelSurvivesDeparture(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "alice", mv.ChannelID, "", nil, false)

	// Bob is still inside, nothing gets deleted.
	assert.True(t, ops.channelExists(mv.ChannelID))
}

func TestLockedChannelRejectsJoin(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.SetLocked("g1", mv.ChannelID, "alice", true))

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "bob", "", mv.ChannelID, nil, false)

	assert.Contains(t, ops.kicked, "bob")
}

func TestLockedChannelReturnsJoinerToPreviousChannel(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.SetLocked("g1", mv.ChannelID, "alice", true))

	// Bob came from the lobby, so the move gets reverted instead of
	// dropping him from voice entirely.
	require.NoError(t, ops.MoveMember("g1", "bob", "lobby"))
	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "bob", "lobby", mv.ChannelID, nil, false)

	occ, err := ops.ChannelOccupants("g1", "lobby")
	require.NoError(t, err)
	assert.Contains(t, occ, "bob")
	assert.NotContains(t, ops.kicked, "bob")
}

func TestLockedChannelAdmitsPermittedUser(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.SetLocked("g1", mv.ChannelID, "alice", true))
	require.NoError(t, m.Permit("g1", mv.ChannelID, "alice", "bob", false))

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "bob", "", mv.ChannelID, nil, false)

	assert.NotContains(t, ops.kicked, "bob")
}

func TestLockedChannelAdmitsAdministrator(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.SetLocked("g1", mv.ChannelID, "alice", true))

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "bob", "", mv.ChannelID, nil, true)

	assert.NotContains(t, ops.kicked, "bob")
}

func TestLockedChannelAdmitsPermittedRole(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.SetLocked("g1", mv.ChannelID, "alice", true))
	require.NoError(t, m.Permit("g1", mv.ChannelID, "alice", "vip-role", true))

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	m.HandleVoiceStateUpdate("g1", "bob", "", mv.ChannelID, []string{"vip-role"}, false)

	assert.NotContains(t, ops.kicked, "bob")
}

func TestOwnerOnlyControls(t *testing.T) {
	m, _, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	assert.ErrorIs(t, m.Rename("g1", mv.ChannelID, "bob", "hijacked"), ErrNotOwner)
	assert.ErrorIs(t, m.SetLocked("g1", mv.ChannelID, "bob", true), ErrNotOwner)
	assert.ErrorIs(t, m.Kick("g1", mv.ChannelID, "bob", "alice"), ErrNotOwner)
	assert.ErrorIs(t, m.Rename("g1", "not-managed", "alice", "x"), ErrNotManaged)
}

func TestSetLimitBounds(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	assert.ErrorIs(t, m.SetLimit("g1", mv.ChannelID, "alice", -1), ErrLimitRange)
	assert.ErrorIs(t, m.SetLimit("g1", mv.ChannelID, "alice", 100), ErrLimitRange)

	require.NoError(t, m.SetLimit("g1", mv.ChannelID, "alice", 5))
	ops.mu.Lock()
	assert.Equal(t, 5, ops.limits[mv.ChannelID])
	ops.mu.Unlock()

	stored, err := store.ManagedVoice("g1", mv.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.UserLimit)
}

func TestKickRemovesFromAllowList(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")
	require.NoError(t, m.Permit("g1", mv.ChannelID, "alice", "bob", false))

	require.NoError(t, m.Kick("g1", mv.ChannelID, "alice", "bob"))
	assert.Contains(t, ops.kicked, "bob")

	stored, err := store.ManagedVoice("g1", mv.ChannelID)
	require.NoError(t, err)
	assert.NotContains(t, stored.AllowedUsers, "bob")

	assert.ErrorIs(t, m.Kick("g1", mv.ChannelID, "alice", "alice"), ErrNotOwner,
		"the owner cannot kick themselves")
}

func TestTransferRequiresPresence(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	assert.ErrorIs(t, m.Transfer("g1", mv.ChannelID, "alice", "bob"), ErrTargetAbsent)

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	require.NoError(t, m.Transfer("g1", mv.ChannelID, "alice", "bob"))

	stored, err := store.ManagedVoice("g1", mv.ChannelID)
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.OwnerID)

	// Old owner lost control, new owner has it.
	assert.ErrorIs(t, m.Rename("g1", mv.ChannelID, "alice", "x"), ErrNotOwner)
	assert.NoError(t, m.Rename("g1", mv.ChannelID, "bob", "bobs-room"))
}

func TestOwnerControlsRequirePresence(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	// Bob keeps the channel alive while the owner leaves voice.
	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	require.NoError(t, ops.Disconnect("g1", "alice"))

	assert.ErrorIs(t, m.Rename("g1", mv.ChannelID, "alice", "ghost"), ErrNotInChannel)
	assert.ErrorIs(t, m.SetLocked("g1", mv.ChannelID, "alice", true), ErrNotInChannel)
	assert.ErrorIs(t, m.Kick("g1", mv.ChannelID, "alice", "bob"), ErrNotInChannel)

	// Back inside, control returns.
	require.NoError(t, ops.MoveMember("g1", "alice", mv.ChannelID))
	assert.NoError(t, m.Rename("g1", mv.ChannelID, "alice", "back"))
}

func TestChannelForResolvesCurrentChannel(t *testing.T) {
	m, ops, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	id, err := m.ChannelFor("g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, mv.ChannelID, id)

	_, err = m.ChannelFor("g1", "bob")
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, ops.MoveMember("g1", "bob", mv.ChannelID))
	require.NoError(t, ops.Disconnect("g1", "alice"))
	_, err = m.ChannelFor("g1", "alice")
	assert.ErrorIs(t, err, ErrNotInChannel)
}

func TestChannelForPicksOccupiedChannelWhenOwningTwo(t *testing.T) {
	m, _, store := newTestManager(t)
	mv := spawnFor(t, m, store, "alice")

	// A stale record for a channel alice is not in must never win.
	require.NoError(t, store.CreateManagedVoice("g1", &st.ManagedVoice{
		GuildID:   "g1",
		ChannelID: "stale",
		OwnerID:   "alice",
	}))

	id, err := m.ChannelFor("g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, mv.ChannelID, id)
}

func TestTriggerWithoutSetupIgnored(t *testing.T) {
	m, ops, _ := newTestManager(t)

	m.HandleVoiceStateUpdate("g2", "alice", "", "trigger", nil, false)
	assert.Empty(t, ops.channels)
}
