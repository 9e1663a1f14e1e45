package command

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func newTestGate() *Gate {
	return NewGate([]string{"dev-1"}, "test-guild", false)
}

func TestGateAllowsOpenCommand(t *testing.T) {
	g := newTestGate()

	_, allowed := g.Evaluate(Requirements{}, GateContext{ActorID: "user", GuildID: "g"})
	assert.True(t, allowed)
}

func TestGateMaintenanceBlocksEveryoneButDevelopers(t *testing.T) {
	g := newTestGate()
	g.SetMaintenance(true)

	reason, allowed := g.Evaluate(Requirements{}, GateContext{ActorID: "user"})
	assert.False(t, allowed)
	assert.Equal(t, DenyMaintenance, reason)

	_, allowed = g.Evaluate(Requirements{}, GateContext{ActorID: "dev-1"})
	assert.True(t, allowed, "developers bypass maintenance")
}

func TestGateDevOnly(t *testing.T) {
	g := newTestGate()
	req := Requirements{DeveloperOnly: true}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user"})
	assert.False(t, allowed)
	assert.Equal(t, DenyDevOnly, reason)

	_, allowed = g.Evaluate(req, GateContext{ActorID: "dev-1"})
	assert.True(t, allowed)
}

func TestGateShortCircuitOrdering(t *testing.T) {
	// An actor failing both the dev-only check and the permission
	// check must get the dev-only reason: checks run in declared
	// order and stop at the first failure.
	g := newTestGate()
	req := Requirements{
		DeveloperOnly:   true,
		UserPermissions: []int64{discordgo.PermissionManageGuild},
	}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user", GuildID: "g"})
	assert.False(t, allowed)
	assert.Equal(t, DenyDevOnly, reason)
}

func TestGateTestGuildOnly(t *testing.T) {
	g := newTestGate()
	req := Requirements{TestGuildOnly: true}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user", GuildID: "other"})
	assert.False(t, allowed)
	assert.Equal(t, DenyWrongEnvironment, reason)

	_, allowed = g.Evaluate(req, GateContext{ActorID: "user", GuildID: "test-guild"})
	assert.True(t, allowed)
}

func TestGateNSFWRestriction(t *testing.T) {
	g := newTestGate()
	req := Requirements{NSFWOnly: true}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user", GuildID: "g"})
	assert.False(t, allowed)
	assert.Equal(t, DenyModeRestricted, reason)

	_, allowed = g.Evaluate(req, GateContext{ActorID: "user", GuildID: "g", ChannelNSFW: true})
	assert.True(t, allowed)
}

func TestGateGuildRequired(t *testing.T) {
	g := newTestGate()
	req := Requirements{GuildOnly: true}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user"})
	assert.False(t, allowed)
	assert.Equal(t, DenyGuildRequired, reason)
}

func TestGateActorPermissionsAnyOf(t *testing.T) {
	g := newTestGate()
	req := Requirements{UserPermissions: []int64{
		discordgo.PermissionManageGuild,
		discordgo.PermissionManageChannels,
	}}

	reason, allowed := g.Evaluate(req, GateContext{ActorID: "user", GuildID: "g"})
	assert.False(t, allowed)
	assert.Equal(t, DenyActorPermission, reason)

	_, allowed = g.Evaluate(req, GateContext{
		ActorID: "user", GuildID: "g",
		ActorPermissions: discordgo.PermissionManageChannels,
	})
	assert.True(t, allowed, "any one of the required permissions is enough")

	_, allowed = g.Evaluate(req, GateContext{
		ActorID: "user", GuildID: "g",
		ActorPermissions: discordgo.PermissionAdministrator,
	})
	assert.True(t, allowed, "administrators always pass the actor check")
}

func TestGateAgentPermissionsAllOf(t *testing.T) {
	g := newTestGate()
	req := Requirements{BotPermissions: []int64{
		discordgo.PermissionManageChannels,
		discordgo.PermissionVoiceMoveMembers,
	}}

	reason, allowed := g.Evaluate(req, GateContext{
		ActorID: "user", GuildID: "g",
		AgentPermissions: discordgo.PermissionManageChannels,
	})
	assert.False(t, allowed)
	assert.Equal(t, DenyAgentPermission, reason)

	_, allowed = g.Evaluate(req, GateContext{
		ActorID: "user", GuildID: "g",
		AgentPermissions: discordgo.PermissionManageChannels | discordgo.PermissionVoiceMoveMembers,
	})
	assert.True(t, allowed)
}
