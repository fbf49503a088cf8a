// Package plugin provides a small registry of named backend factories. Audio
// devices and translation session backends register themselves from init()
// so the CLI can pick one by name without importing it directly.
package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Plugin represents a registered backend with its metadata.
type Plugin[F any] struct {
	Name        string // Backend name (e.g., "gemini", "portaudio")
	Description string // Human-readable description
	Factory     F      // Factory used to create instances
	Available   bool   // False for stubs compiled without their build tag
}

// Registry manages backend registration and lookup for one kind of backend.
type Registry[F any] struct {
	kind    string
	mu      sync.RWMutex
	plugins map[string]*Plugin[F]
}

// NewRegistry creates an empty registry. Kind is only used in messages.
func NewRegistry[F any](kind string) *Registry[F] {
	return &Registry[F]{
		kind:    kind,
		plugins: make(map[string]*Plugin[F]),
	}
}

// Kind returns the backend kind this registry holds.
func (r *Registry[F]) Kind() string {
	return r.kind
}

// Register adds a plugin to the registry.
// Panics if a plugin with the same name is already registered.
func (r *Registry[F]) Register(p *Plugin[F]) {
	if p.Name == "" {
		panic(fmt.Sprintf("%s plugin name cannot be empty", r.kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name]; exists {
		panic(fmt.Sprintf("%s plugin %q already registered", r.kind, p.Name))
	}
	r.plugins[p.Name] = p
}

// Get retrieves a plugin by name.
func (r *Registry[F]) Get(name string) (*Plugin[F], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// Lookup returns the factory for name or an error listing the known names.
func (r *Registry[F]) Lookup(name string) (F, error) {
	p, ok := r.Get(name)
	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s backend %q (available: %v)", r.kind, name, r.Names())
	}
	return p.Factory, nil
}

// List returns all registered plugins sorted by name.
func (r *Registry[F]) List() []*Plugin[F] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]*Plugin[F], 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name < plugins[j].Name
	})
	return plugins
}

// Names returns the sorted names of all registered plugins.
func (r *Registry[F]) Names() []string {
	plugins := r.List()
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Clear removes all plugins from this registry.
// This is primarily useful for testing.
func (r *Registry[F]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]*Plugin[F])
}
