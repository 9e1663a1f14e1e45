package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownFirstAcquireSucceeds(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	ok, remaining := c.TryAcquire("roll", "actor", time.Second)
	assert.True(t, ok)
	assert.Zero(t, remaining)
}

func TestCooldownBlocksWithinWindow(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	ok, _ := c.TryAcquire("roll", "actor", 2*time.Second)
	require.True(t, ok)

	ok, remaining := c.TryAcquire("roll", "actor", 2*time.Second)
	assert.False(t, ok)
	assert.InDelta(t, 2.0, remaining, 0.3, "remaining must be close to the full window right after acquiring")
}

func TestCooldownExpiryRestartsWindow(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	ok, _ := c.TryAcquire("roll", "actor", 50*time.Millisecond)
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	ok, _ = c.TryAcquire("roll", "actor", 50*time.Millisecond)
	assert.True(t, ok, "acquire after expiry must succeed")

	ok, _ = c.TryAcquire("roll", "actor", 50*time.Millisecond)
	assert.False(t, ok, "window must have restarted")
}

func TestCooldownKeysAreIndependent(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	ok, _ := c.TryAcquire("roll", "a", time.Second)
	require.True(t, ok)

	ok, _ = c.TryAcquire("roll", "b", time.Second)
	assert.True(t, ok, "different actors must not share windows")

	ok, _ = c.TryAcquire("flip", "a", time.Second)
	assert.True(t, ok, "different commands must not share windows")
}

func TestCooldownEntriesSelfDelete(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	for _, actor := range []string{"a", "b", "c"} {
		ok, _ := c.TryAcquire("roll", actor, 30*time.Millisecond)
		require.True(t, ok)
	}
	require.Equal(t, 3, c.Len())

	assert.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 10*time.Millisecond, "expired entries must remove themselves")
}

func TestCooldownZeroWindowAlwaysPasses(t *testing.T) {
	c := NewCooldowns()
	defer c.Stop()

	for range 3 {
		ok, _ := c.TryAcquire("ping", "actor", 0)
		assert.True(t, ok)
	}
	assert.Zero(t, c.Len())
}
