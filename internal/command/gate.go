package command

import (
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Reason is a stable deny reason code. The dispatcher maps codes to
// user-visible text; tests assert on the codes.
type Reason string

const (
	DenyMaintenance      Reason = "maintenance"
	DenyDevOnly          Reason = "dev-only"
	DenyWrongEnvironment Reason = "wrong-environment"
	DenyModeRestricted   Reason = "mode-restricted"
	DenyGuildRequired    Reason = "guild-required"
	DenyActorPermission  Reason = "actor-lacks-permission"
	DenyAgentPermission  Reason = "agent-lacks-permission"
)

// GateContext is the snapshot of the actor's situation the gate
// evaluates against. The dispatcher fills the permission fields only
// when the command declares permission requirements.
type GateContext struct {
	ActorID          string
	GuildID          string
	ChannelNSFW      bool
	ActorPermissions int64
	AgentPermissions int64
}

// Gate is the pure predicate layer deciding allow/deny for a
// capability. It owns the runtime maintenance flag; everything else it
// needs is fixed at construction.
type Gate struct {
	developers  map[string]struct{}
	testGuildID string
	maintenance atomic.Bool
}

func NewGate(developerIDs []string, testGuildID string, maintenance bool) *Gate {
	g := &Gate{
		developers:  make(map[string]struct{}, len(developerIDs)),
		testGuildID: testGuildID,
	}
	for _, id := range developerIDs {
		g.developers[id] = struct{}{}
	}
	g.maintenance.Store(maintenance)
	return g
}

// SetMaintenance toggles maintenance mode at runtime.
func (g *Gate) SetMaintenance(on bool) { g.maintenance.Store(on) }

// InMaintenance reports the current maintenance flag.
func (g *Gate) InMaintenance() bool { return g.maintenance.Load() }

// IsDeveloper reports whether the actor is a privileged operator.
func (g *Gate) IsDeveloper(actorID string) bool {
	_, ok := g.developers[actorID]
	return ok
}

// Evaluate runs the ordered checks and short-circuits on the first
// failure. The returned reason is meaningful only when allowed is
// false.
func (g *Gate) Evaluate(req Requirements, gc GateContext) (reason Reason, allowed bool) {
	dev := g.IsDeveloper(gc.ActorID)

	if g.maintenance.Load() && !dev {
		return DenyMaintenance, false
	}
	if req.DeveloperOnly && !dev {
		return DenyDevOnly, false
	}
	if req.TestGuildOnly && gc.GuildID != g.testGuildID {
		return DenyWrongEnvironment, false
	}
	if req.NSFWOnly && !gc.ChannelNSFW {
		return DenyModeRestricted, false
	}
	if req.GuildOnly && gc.GuildID == "" {
		return DenyGuildRequired, false
	}

	if len(req.UserPermissions) > 0 && gc.ActorPermissions&discordgo.PermissionAdministrator == 0 {
		hasAny := false
		for _, p := range req.UserPermissions {
			if gc.ActorPermissions&p != 0 {
				hasAny = true
				break
			}
		}
		if !hasAny {
			return DenyActorPermission, false
		}
	}

	for _, p := range req.BotPermissions {
		if gc.AgentPermissions&p == 0 {
			return DenyAgentPermission, false
		}
	}

	return "", true
}
