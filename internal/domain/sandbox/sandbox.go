package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/shared/id"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Sandbox is an isolated module namespace backed by its own goja runtime
type Sandbox struct {
	id        id.SandboxID
	config    Config
	locator   Locator
	fetcher   fetch.Fetcher
	logger    *zap.Logger
	createdAt time.Time

	mu      sync.Mutex
	vm      *goja.Runtime
	closed  bool
	queue   []Definition
	pending map[string]Definition
	defined map[string]goja.Value

	// per-operation state, only touched while mu is held
	opCtx     context.Context
	loading   []string
	anonymous *Definition
	require   goja.Value

	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a sandbox that loads modules through fetcher
func New(config Config, fetcher fetch.Fetcher, logger *zap.Logger) (*Sandbox, error) {
	if config.Name == "" {
		return nil, errors.New("sandbox name cannot be empty")
	}

	s := &Sandbox{
		id:        id.NewSandboxID(),
		config:    config,
		locator:   Locator{BaseURL: config.ContextPath, Paths: config.Paths},
		fetcher:   fetcher,
		createdAt: time.Now(),
		vm:        goja.New(),
		pending:   make(map[string]Definition),
		defined:   make(map[string]goja.Value),
	}
	s.logger = logging.OrNop(logger).With(
		zap.String("sandbox", config.Name),
		zap.String("sandbox_id", s.id.String()))

	if config.MaxCallStack > 0 {
		s.vm.SetMaxCallStackSize(config.MaxCallStack)
	}
	if err := s.setupGlobals(); err != nil {
		return nil, fmt.Errorf("setup sandbox %s: %w", config.Name, err)
	}
	return s, nil
}

// ID returns the unique instance identifier
func (s *Sandbox) ID() id.SandboxID { return s.id }

// Name returns the isolation key
func (s *Sandbox) Name() string { return s.config.Name }

// ContextPath returns the base URL of the sandbox's modules
func (s *Sandbox) ContextPath() string { return s.config.ContextPath }

// Config returns the configuration the sandbox was created with
func (s *Sandbox) Config() Config { return s.config }

// Locator returns the module locator of this sandbox
func (s *Sandbox) Locator() Locator { return s.locator }

// CreatedAt returns the creation time
func (s *Sandbox) CreatedAt() time.Time { return s.createdAt }

// Enqueue pre-registers definitions. A queued definition is used instead of
// fetching the module of the same name; the first definition of a name wins.
func (s *Sandbox) Enqueue(defs ...Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, defs...)
}

// Pending returns the names of registered definitions that have not been
// instantiated yet, queue order first
func (s *Sandbox) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, def := range s.queue {
		if _, done := s.defined[def.Name]; !done && !slices.Contains(names, def.Name) {
			names = append(names, def.Name)
		}
	}
	var rest []string
	for name := range s.pending {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// Defined reports whether the named module has been instantiated
func (s *Sandbox) Defined(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defined[name]
	return ok
}

// Require loads the named module and its dependencies and returns its value
func (s *Sandbox) Require(ctx context.Context, name string) (goja.Value, error) {
	var value goja.Value
	err := s.do(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, name)
		value = v
		return err
	})
	return value, err
}

// Export loads the named module and returns it as a Go value
func (s *Sandbox) Export(ctx context.Context, name string) (any, error) {
	value, err := s.Require(ctx, name)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// Start loads the entry module and invokes its init function once
func (s *Sandbox) Start(ctx context.Context, entry string) error {
	return s.do(ctx, func(ctx context.Context) error {
		value, err := s.load(ctx, entry)
		if err != nil {
			return err
		}

		obj, ok := value.(*goja.Object)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoInitializer, entry)
		}
		initFn, ok := goja.AssertFunction(obj.Get("init"))
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoInitializer, entry)
		}
		if _, err := initFn(obj); err != nil {
			return fmt.Errorf("init %s: %w", entry, err)
		}
		return nil
	})
}

// Console returns captured console output
func (s *Sandbox) Console() []LogEntry {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	return append([]LogEntry{}, s.console...)
}

// Close releases the runtime; later calls fail with ErrClosed
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.vm = nil
	s.queue = nil
	s.pending = nil
	s.defined = nil
	return nil
}

// do runs fn with the runtime locked, under the script timeout
func (s *Sandbox) do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	opCtx, release := s.watch(ctx)
	defer release()

	s.opCtx = opCtx
	defer func() {
		s.opCtx = nil
		s.loading = nil
	}()

	err := fn(opCtx)
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("%w: %v", ErrScriptTimeout, interrupted.Value())
	}
	if opCtx.Err() != nil && !errors.Is(err, ErrScriptTimeout) {
		return fmt.Errorf("%w: %w", ErrScriptTimeout, err)
	}
	return err
}

// watch interrupts the runtime when ctx ends or the script timeout passes
func (s *Sandbox) watch(ctx context.Context) (context.Context, func()) {
	var cancel context.CancelFunc
	if s.config.ScriptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.ScriptTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	vm := s.vm
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		<-exited
		cancel()
		vm.ClearInterrupt()
	}
}

// load returns the named module, instantiating it first if needed
func (s *Sandbox) load(ctx context.Context, name string) (goja.Value, error) {
	if value, ok := s.defined[name]; ok {
		return value, nil
	}

	s.drain()
	def, ok := s.pending[name]
	if !ok {
		if err := s.fetchAndRun(ctx, name); err != nil {
			return nil, err
		}
		s.drain()
		if def, ok = s.pending[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoDefinition, name)
		}
	}
	return s.instantiate(ctx, def)
}

// drain moves queued definitions into the pending table
func (s *Sandbox) drain() {
	for _, def := range s.queue {
		if _, done := s.defined[def.Name]; done {
			continue
		}
		if _, exists := s.pending[def.Name]; !exists {
			s.pending[def.Name] = def
		}
	}
	s.queue = s.queue[:0]
}

func (s *Sandbox) fetchAndRun(ctx context.Context, name string) error {
	url := s.locator.Locate(name)
	source, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("load module %s from %s: %w", name, url, err)
	}

	// a script may require() another at top level, which runs a nested script
	outer := s.anonymous
	s.anonymous = nil
	_, err = s.vm.RunScript(url, source)
	anonymous := s.anonymous
	s.anonymous = outer
	if err != nil {
		return fmt.Errorf("run module %s: %w", name, err)
	}

	if anonymous != nil {
		anonymous.Name = name
		s.queue = append(s.queue, *anonymous)
	}
	s.logger.Debug("module source evaluated", zap.String("module", name), zap.String("url", url))
	return nil
}

func (s *Sandbox) instantiate(ctx context.Context, def Definition) (goja.Value, error) {
	if slices.Contains(s.loading, def.Name) {
		chain := append(slices.Clone(s.loading), def.Name)
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
	}
	s.loading = append(s.loading, def.Name)
	defer func() { s.loading = s.loading[:len(s.loading)-1] }()

	var module *goja.Object
	moduleObject := func() *goja.Object {
		if module == nil {
			module = s.vm.NewObject()
			_ = module.Set("id", def.Name)
			_ = module.Set("exports", s.vm.NewObject())
		}
		return module
	}

	args := make([]goja.Value, len(def.Deps))
	for i, dep := range def.Deps {
		switch dep {
		case "require":
			args[i] = s.require
		case "exports":
			args[i] = moduleObject().Get("exports")
		case "module":
			args[i] = moduleObject()
		default:
			value, err := s.load(ctx, resolveRelative(dep, def.Name))
			if err != nil {
				return nil, err
			}
			args[i] = value
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := def.Factory(s.vm, args)
	if err != nil {
		return nil, fmt.Errorf("instantiate module %s: %w", def.Name, err)
	}
	if module != nil && (value == nil || goja.IsUndefined(value)) {
		value = module.Get("exports")
	}
	if value == nil {
		value = goja.Undefined()
	}

	s.defined[def.Name] = value
	delete(s.pending, def.Name)
	return value, nil
}

// resolveRelative resolves "./x" and "../x" against the requiring module
func resolveRelative(name, parent string) string {
	if !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "../") {
		return name
	}
	return path.Join(path.Dir(parent), name)
}
