package sandbox

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
)

// Registry tracks the sandboxes of one host by name
type Registry struct {
	mu        sync.RWMutex
	sandboxes map[string]*Sandbox
	metrics   *monitoring.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sandboxes: make(map[string]*Sandbox)}
}

// WithMetrics reports the number of registered sandboxes to metrics
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	return r
}

// Register adds sb under its name
func (r *Registry) Register(sb *Sandbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sandboxes[sb.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, sb.Name())
	}
	r.sandboxes[sb.Name()] = sb
	r.metrics.SetSandboxesActive(len(r.sandboxes))
	return nil
}

// Get returns the sandbox registered under name
func (r *Registry) Get(name string) (*Sandbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sb, ok := r.sandboxes[name]
	return sb, ok
}

// Has reports whether a sandbox is registered under name
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Remove unregisters and closes the named sandbox
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	sb, ok := r.sandboxes[name]
	delete(r.sandboxes, name)
	r.metrics.SetSandboxesActive(len(r.sandboxes))
	r.mu.Unlock()

	if ok {
		_ = sb.Close()
	}
	return ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sandboxes))
	for name := range r.sandboxes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered sandboxes
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sandboxes)
}

// Close closes and unregisters every sandbox
func (r *Registry) Close() error {
	r.mu.Lock()
	sandboxes := r.sandboxes
	r.sandboxes = make(map[string]*Sandbox)
	r.metrics.SetSandboxesActive(0)
	r.mu.Unlock()

	var errs []error
	for _, sb := range sandboxes {
		errs = append(errs, sb.Close())
	}
	return errors.Join(errs...)
}
