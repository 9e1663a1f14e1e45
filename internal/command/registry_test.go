package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*Context) error { return nil }

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Command{Name: "balance", Aliases: []string{"bal", "money"}, Run: noop}))

	cmd, ok := r.Resolve("balance")
	require.True(t, ok)
	assert.Equal(t, "balance", cmd.Name)

	cmd, ok = r.Resolve("bal")
	require.True(t, ok, "aliases must resolve")
	assert.Equal(t, "balance", cmd.Name)

	_, ok = r.Resolve("nope")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Command{Run: noop}), "empty name")
	assert.Error(t, r.Register(&Command{Name: "ghost"}), "no handler")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Command{Name: "roll", Aliases: []string{"dice"}, Run: noop}))

	assert.Error(t, r.Register(&Command{Name: "roll", Run: noop}), "duplicate name")
	assert.Error(t, r.Register(&Command{Name: "dice", Run: noop}), "name colliding with an alias")
	assert.Error(t, r.Register(&Command{Name: "other", Aliases: []string{"dice"}, Run: noop}), "duplicate alias")
	assert.Error(t, r.Register(&Command{Name: "other2", Aliases: []string{"roll"}, Run: noop}), "alias colliding with a name")
}

func TestRegisterAppliesDefaultCooldown(t *testing.T) {
	r := NewRegistry()

	cmd := &Command{Name: "ping", Run: noop}
	require.NoError(t, r.Register(cmd))
	assert.Equal(t, DefaultCooldownSeconds, cmd.Requirements.CooldownSeconds)

	withOwn := &Command{Name: "daily", Run: noop, Requirements: Requirements{CooldownSeconds: 30}}
	require.NoError(t, r.Register(withOwn))
	assert.EqualValues(t, 30, withOwn.Requirements.CooldownSeconds)
}

func TestRegisterAllCollectsFailures(t *testing.T) {
	r := NewRegistry()

	errs := r.RegisterAll(
		&Command{Name: "a", Run: noop},
		&Command{Name: "", Run: noop},
		&Command{Name: "a", Run: noop},
		&Command{Name: "b", Run: noop},
	)
	assert.Len(t, errs, 2)

	_, ok := r.Resolve("a")
	assert.True(t, ok)
	_, ok = r.Resolve("b")
	assert.True(t, ok, "valid registrations must survive failures in the batch")
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(&Command{Name: name, Run: noop}))
	}

	var names []string
	for _, cmd := range r.All() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}
