package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/datastore"
	st "steward/internal/storagetypes"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	ds, err := datastore.New(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return New(ds)
}

func TestAddBalanceAndDebit(t *testing.T) {
	s := newTestStorage(t)

	balance, err := s.AddBalance("g", "u", 100, "seed")
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)

	balance, err = s.AddBalance("g", "u", -40, "wager")
	require.NoError(t, err)
	assert.EqualValues(t, 60, balance)

	_, err = s.AddBalance("g", "u", -100, "wager")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err = s.Balance("g", "u")
	require.NoError(t, err)
	assert.EqualValues(t, 60, balance, "failed debit must not change the wallet")
}

func TestTransfer(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.AddBalance("g", "a", 50, "seed")
	require.NoError(t, err)

	require.NoError(t, s.Transfer("g", "a", "b", 30, "pay"))

	a, _ := s.Balance("g", "a")
	b, _ := s.Balance("g", "b")
	assert.EqualValues(t, 20, a)
	assert.EqualValues(t, 30, b)

	require.ErrorIs(t, s.Transfer("g", "a", "b", 9999, "pay"), ErrInsufficientFunds)
}

func TestClaimDailyWindow(t *testing.T) {
	s := newTestStorage(t)

	balance, remaining, err := s.ClaimDaily("g", "u", 200, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.EqualValues(t, 200, balance)

	_, remaining, err = s.ClaimDaily("g", "u", 200, time.Hour)
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0), "second claim inside the window must report a wait")

	balance, _ = s.Balance("g", "u")
	assert.EqualValues(t, 200, balance)
}

func TestBuyItem(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.PutShopItem("g", st.ShopItem{ID: "rose", Name: "Rose", Price: 25}))
	_, err := s.AddBalance("g", "u", 30, "seed")
	require.NoError(t, err)

	item, err := s.BuyItem("g", "u", "rose")
	require.NoError(t, err)
	assert.Equal(t, "Rose", item.Name)

	inv, err := s.Inventory("g", "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"rose"}, inv)

	_, err = s.BuyItem("g", "u", "rose")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = s.BuyItem("g", "u", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTicketEnforcesSingleOpen(t *testing.T) {
	s := newTestStorage(t)

	first := &st.Ticket{ID: "t1", GuildID: "g", OpenerID: "u", ChannelID: "c1", Status: st.TicketOpen, CreatedAt: time.Now()}
	require.NoError(t, s.CreateTicket("g", first))

	second := &st.Ticket{ID: "t2", GuildID: "g", OpenerID: "u", ChannelID: "c2", Status: st.TicketOpen, CreatedAt: time.Now()}
	require.ErrorIs(t, s.CreateTicket("g", second), ErrTicketExists)

	_, err := s.Ticket("g", "c2")
	require.ErrorIs(t, err, ErrNotFound, "rejected open must not create a second record")

	// Closing the first ticket frees the slot.
	require.NoError(t, s.UpdateTicket("g", "c1", func(tk *st.Ticket) error {
		tk.Status = st.TicketClosed
		return nil
	}))
	require.NoError(t, s.CreateTicket("g", second))
}

func TestUpdateTicketClosedIsTerminal(t *testing.T) {
	s := newTestStorage(t)

	tk := &st.Ticket{ID: "t1", GuildID: "g", OpenerID: "u", ChannelID: "c1", Status: st.TicketClosed, CreatedAt: time.Now()}
	require.NoError(t, s.CreateTicket("g", tk))

	err := s.UpdateTicket("g", "c1", func(t *st.Ticket) error {
		t.ClaimedBy = "staff"
		return nil
	})
	require.ErrorIs(t, err, ErrTicketClosed)
}

func TestManagedVoiceLifecycle(t *testing.T) {
	s := newTestStorage(t)

	mv := &st.ManagedVoice{GuildID: "g", ChannelID: "vc", OwnerID: "u"}
	require.NoError(t, s.CreateManagedVoice("g", mv))

	require.NoError(t, s.UpdateManagedVoice("g", "vc", func(mv *st.ManagedVoice) error {
		mv.OwnerID = "v"
		return nil
	}))

	got, err := s.ManagedVoice("g", "vc")
	require.NoError(t, err)
	assert.Equal(t, "v", got.OwnerID)

	require.NoError(t, s.DeleteManagedVoice("g", "vc"))
	_, err = s.ManagedVoice("g", "vc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrefixOverride(t *testing.T) {
	s := newTestStorage(t)

	_, ok, err := s.Prefix("g")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPrefix("g", "?"))
	prefix, ok, err := s.Prefix("g")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "?", prefix)

	// Empty override means "no prefix mode", distinct from unset.
	require.NoError(t, s.SetPrefix("g", ""))
	prefix, ok, err = s.Prefix("g")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, prefix)
}
