package command

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps command names and aliases to handlers. Aliases are
// flattened into the lookup table at registration time, so an ambiguous
// alias is a configuration error surfaced at startup, never at dispatch.
type Registry struct {
	commands map[string]Command
	lookup   map[string]string
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		lookup:   make(map[string]string),
	}
}

func (r *Registry) Register(cmd Command) error {
	prop := cmd.Property()
	if prop.Name == "" {
		return fmt.Errorf("command has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.lookup[prop.Name]; ok {
		return fmt.Errorf("command name %q already taken by %q", prop.Name, owner)
	}
	for _, alias := range prop.Aliases {
		if owner, ok := r.lookup[alias]; ok {
			return fmt.Errorf("alias %q of %q already taken by %q", alias, prop.Name, owner)
		}
	}

	r.commands[prop.Name] = cmd
	r.lookup[prop.Name] = prop.Name
	for _, alias := range prop.Aliases {
		r.lookup[alias] = prop.Name
	}
	return nil
}

// MustRegister registers a set of commands and panics on conflict. Intended
// for process startup where a duplicate alias is a programming error.
func (r *Registry) MustRegister(cmds ...Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Resolve maps a typed name or alias to its command.
func (r *Registry) Resolve(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.lookup[name]
	if !ok {
		return nil, false
	}
	cmd, ok := r.commands[canonical]
	return cmd, ok
}

// Properties returns all registered command descriptors sorted by name,
// for help output.
func (r *Registry) Properties() []Property {
	r.mu.RLock()
	defer r.mu.RUnlock()

	props := make([]Property, 0, len(r.commands))
	for _, cmd := range r.commands {
		props = append(props, cmd.Property())
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
