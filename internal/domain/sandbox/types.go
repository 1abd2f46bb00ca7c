package sandbox

import (
	"errors"
	"time"

	"github.com/dop251/goja"
)

var (
	ErrClosed             = errors.New("sandbox is closed")
	ErrNoDefinition       = errors.New("module did not call define")
	ErrCircularDependency = errors.New("circular module dependency")
	ErrNoInitializer      = errors.New("entry module has no init function")
	ErrScriptTimeout      = errors.New("script execution interrupted")
	ErrAlreadyRegistered  = errors.New("sandbox already registered")
)

// Config defines sandbox configuration
type Config struct {
	Name          string            // Isolation key, usually the plugin name
	ContextPath   string            // Base URL module names are resolved against
	Paths         map[string]string // Module name prefix to location overrides
	Settings      map[string]any    // Merged loader configuration
	ScriptTimeout time.Duration     // Bound on each Require or Start call
	MaxCallStack  int               // Maximum JavaScript call stack depth
	EnableConsole bool              // Route console.* to the logger
}

// DefaultConfig returns the configuration used for a plugin sandbox
func DefaultConfig(name, contextPath string) Config {
	return Config{
		Name:          name,
		ContextPath:   contextPath,
		ScriptTimeout: 5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

// Factory produces a module value from its resolved dependencies
type Factory func(vm *goja.Runtime, deps []goja.Value) (goja.Value, error)

// Definition is an entry of the definition queue
type Definition struct {
	Name    string
	Deps    []string
	Factory Factory
}

// Instance returns a definition whose factory yields an existing Go value
func Instance(name string, instance any) Definition {
	return Definition{
		Name: name,
		Factory: func(vm *goja.Runtime, _ []goja.Value) (goja.Value, error) {
			return vm.ToValue(instance), nil
		},
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, info, warn, error
	Message string    // Log message
	Time    time.Time // Timestamp
}
