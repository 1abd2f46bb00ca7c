package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/domain/sandbox"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pluginhost/internal/shared/utils"
	"go.uber.org/zap"
)

// Plugin name errors.
var (
	ErrEmptyName   = errors.New("plugin name cannot be empty")
	ErrInvalidName = errors.New("invalid plugin name")
)

// Record describes a plugin the manager has started or is starting.
type Record struct {
	Name        string    `json:"name"`
	Loaded      bool      `json:"loaded"`
	SandboxID   string    `json:"sandbox_id,omitempty"`
	ContextPath string    `json:"context_path"`
	EntryModule string    `json:"entry_module"`
	Shared      []string  `json:"shared"`
	Unreachable []string  `json:"unreachable,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Options configures a Manager. Nil strategies select the defaults.
type Options struct {
	EntryModule EntryModuleStrategy
	ContextPath ContextPathStrategy
	// BaseURL is used by the default context path strategy
	BaseURL string
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Manager starts plugins, each at most once.
type Manager struct {
	provisioner *Provisioner
	registry    *sandbox.Registry
	entry       EntryModuleStrategy
	contextPath ContextPathStrategy
	logger      *zap.Logger
	metrics     *monitoring.Metrics

	mu      sync.RWMutex
	records map[string]*Record
}

// NewManager creates a manager that provisions sandboxes with provisioner
// and tracks them in registry.
func NewManager(provisioner *Provisioner, registry *sandbox.Registry, opts Options) *Manager {
	entry := opts.EntryModule
	if entry == nil {
		entry = DefaultEntryModule{Name: DefaultEntryModuleName}
	}
	contextPath := opts.ContextPath
	if contextPath == nil {
		contextPath = BaseURLContextPath{BaseURL: opts.BaseURL}
	}

	return &Manager{
		provisioner: provisioner,
		registry:    registry,
		entry:       entry,
		contextPath: contextPath,
		logger:      logging.OrNop(opts.Logger).Named("plugins"),
		metrics:     opts.Metrics,
		records:     make(map[string]*Record),
	}
}

// StartPlugins starts every named plugin in order. A failing plugin does not
// stop the others; all failures are returned joined.
func (m *Manager) StartPlugins(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range names {
		if err := m.StartPlugin(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StartPlugin provisions the plugin's sandbox, loads its entry module and
// calls its init function. Starting a plugin that is already started or
// starting is a no-op. After a failure the plugin may be started again.
func (m *Manager) StartPlugin(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := utils.ValidatePluginName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	m.mu.Lock()
	if _, exists := m.records[name]; exists {
		m.mu.Unlock()
		m.logger.Debug("plugin already started", zap.String("plugin", name))
		return nil
	}
	record := &Record{
		Name:        name,
		EntryModule: m.entry.EntryModule(name),
		ContextPath: m.contextPath.ContextPath(name),
		StartedAt:   time.Now(),
	}
	m.records[name] = record
	m.mu.Unlock()

	log := m.logger.With(zap.String("plugin", name))
	log.Info("starting plugin",
		zap.String("entry_module", record.EntryModule),
		zap.String("context_path", record.ContextPath))

	provisioned, err := m.provisioner.Provision(ctx, name, record.ContextPath, record.EntryModule)
	if err != nil {
		return m.fail(log, name, err)
	}

	if err := provisioned.Sandbox.Start(ctx, record.EntryModule); err != nil {
		m.registry.Remove(name)
		return m.fail(log, name, fmt.Errorf("start entry module %s: %w", record.EntryModule, err))
	}

	m.mu.Lock()
	record.Loaded = true
	record.SandboxID = provisioned.Sandbox.ID().String()
	record.Shared = provisioned.Resolution.Shared
	record.Unreachable = provisioned.Resolution.Unreachable
	loaded := m.loadedLocked()
	m.mu.Unlock()

	m.metrics.RecordPluginStart("ok")
	m.metrics.SetPluginsLoaded(loaded)
	log.Info("plugin started",
		zap.String("sandbox_id", record.SandboxID),
		zap.Duration("duration", time.Since(record.StartedAt)))
	return nil
}

func (m *Manager) fail(log *zap.Logger, name string, err error) error {
	m.mu.Lock()
	delete(m.records, name)
	m.mu.Unlock()

	m.metrics.RecordPluginStart("error")
	log.Error("plugin failed to start", zap.Error(err))
	return err
}

// IsLoaded reports whether the plugin has started successfully.
func (m *Manager) IsLoaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[name]
	return ok && r.Loaded
}

// Plugin returns a copy of the plugin's record.
func (m *Manager) Plugin(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[name]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Plugins returns copies of all records sorted by name.
func (m *Manager) Plugins() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r.clone())
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.Name, b.Name)
	})
	return records
}

// Close stops every sandbox and forgets all plugins.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.records = make(map[string]*Record)
	m.mu.Unlock()
	m.metrics.SetPluginsLoaded(0)
	return m.registry.Close()
}

func (m *Manager) loadedLocked() int {
	n := 0
	for _, r := range m.records {
		if r.Loaded {
			n++
		}
	}
	return n
}

func (r *Record) clone() Record {
	c := *r
	c.Shared = slices.Clone(r.Shared)
	c.Unreachable = slices.Clone(r.Unreachable)
	return c
}
