// Package namespace holds the shared module namespace every sandbox may reuse
// instances from.
package namespace

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/pluginhost/internal/shared/utils"
)

var ErrEmptyName = errors.New("module name cannot be empty")

// Global is the shared namespace of host-provided module instances
type Global struct {
	mu      sync.RWMutex
	modules map[string]any
}

// NewGlobal creates an empty shared namespace
func NewGlobal() *Global {
	return &Global{modules: make(map[string]any)}
}

// Define publishes an instance under name, replacing any previous one
func (g *Global) Define(name string, instance any) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := utils.ValidateModuleName(name); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.modules[name] = instance
	return nil
}

// MustDefine is Define for bootstrap code with static names
func (g *Global) MustDefine(name string, instance any) {
	if err := g.Define(name, instance); err != nil {
		panic(fmt.Sprintf("define %q: %v", name, err))
	}
}

// Lookup returns the live instance for name
func (g *Global) Lookup(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	instance, ok := g.modules[name]
	if !ok || instance == nil {
		return nil, false
	}
	return instance, true
}

// Names returns every defined name, sorted
func (g *Global) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot captures the names of all materialized (non-nil) instances.
// Later Define calls do not affect a snapshot already taken.
func (g *Global) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set := make(map[string]struct{}, len(g.modules))
	for name, instance := range g.modules {
		if instance == nil {
			continue
		}
		set[name] = struct{}{}
	}
	return Snapshot{set: set}
}

// Snapshot is an immutable set of shared module names
type Snapshot struct {
	set map[string]struct{}
}

// NewSnapshot builds a snapshot from a fixed list of names
func NewSnapshot(names ...string) Snapshot {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return Snapshot{set: set}
}

// Contains reports whether name was materialized when the snapshot was taken
func (s Snapshot) Contains(name string) bool {
	_, ok := s.set[name]
	return ok
}

// Len returns the number of names in the snapshot
func (s Snapshot) Len() int {
	return len(s.set)
}

// Names returns the snapshot's names, sorted
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.set))
	for name := range s.set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Intersect returns the names in order that are also in the snapshot
func (s Snapshot) Intersect(names []string) []string {
	shared := make([]string, 0)
	for _, name := range names {
		if s.Contains(name) {
			shared = append(shared, name)
		}
	}
	return shared
}
