package command

import (
	"fmt"
	"sync"
)

// Registry holds the loaded capability set. Registration happens once
// at bootstrap; failures are returned to the caller rather than
// silently skipped, and the bootstrap decides whether to abort.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Command
	byAlias map[string]string
	order   []*Command
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Command),
		byAlias: make(map[string]string),
	}
}

// Register validates and adds a command. A command without a name or
// without any handler is malformed; duplicate names and aliases are
// rejected so the resolver stays unambiguous.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("register: nil command")
	}
	if cmd.Name == "" {
		return fmt.Errorf("register: command has no name")
	}
	if !cmd.hasHandler() {
		return fmt.Errorf("register %q: command has no handler", cmd.Name)
	}

	if cmd.Requirements.CooldownSeconds == 0 {
		cmd.Requirements.CooldownSeconds = DefaultCooldownSeconds
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[cmd.Name]; ok {
		return fmt.Errorf("register %q: name already taken", cmd.Name)
	}
	if owner, ok := r.byAlias[cmd.Name]; ok {
		return fmt.Errorf("register %q: name is an alias of %q", cmd.Name, owner)
	}
	for _, alias := range cmd.Aliases {
		if _, ok := r.byName[alias]; ok {
			return fmt.Errorf("register %q: alias %q is an existing command name", cmd.Name, alias)
		}
		if owner, ok := r.byAlias[alias]; ok {
			return fmt.Errorf("register %q: alias %q already taken by %q", cmd.Name, alias, owner)
		}
	}

	r.byName[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.byAlias[alias] = cmd.Name
	}
	r.order = append(r.order, cmd)
	return nil
}

// RegisterAll registers a batch and returns every failure. Successful
// registrations in the batch stand regardless of failures.
func (r *Registry) RegisterAll(cmds ...*Command) []error {
	var errs []error
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Resolve looks a command up by exact name, then by alias.
func (r *Registry) Resolve(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, ok := r.byName[name]; ok {
		return cmd, true
	}
	if owner, ok := r.byAlias[name]; ok {
		return r.byName[owner], true
	}
	return nil, false
}

// All returns the commands in registration order.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Command, len(r.order))
	copy(out, r.order)
	return out
}
