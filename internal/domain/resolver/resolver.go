package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/domain/deptree"
	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pluginhost/internal/shared/id"
	"go.uber.org/zap"
)

var (
	// ErrEmptyEntry is returned when no entry module is named.
	ErrEmptyEntry = errors.New("entry module name cannot be empty")
	// ErrResolveTimeout is returned when the context ends before resolution completes.
	ErrResolveTimeout = errors.New("dependency resolution timed out")
)

// Locator maps a module name to the URL its source is fetched from.
type Locator interface {
	Locate(name string) string
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(name string) string

// Locate calls f.
func (f LocatorFunc) Locate(name string) string { return f(name) }

// DefaultLocator appends ".js" to module names that lack it.
var DefaultLocator Locator = LocatorFunc(func(name string) string {
	if strings.HasSuffix(name, ".js") {
		return name
	}
	return name + ".js"
})

// Options configures a Resolver. Zero values select the defaults.
type Options struct {
	// Timeout bounds a whole resolution run; zero leaves it to the caller's context
	Timeout time.Duration
	// FetchTimeout bounds a single source fetch; zero means no per-fetch bound
	FetchTimeout time.Duration
	// Parallel is the maximum number of fetches in flight; values below 1 mean 1
	Parallel int
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// Request describes one resolution run.
type Request struct {
	Entry    string
	Locator  Locator
	Snapshot namespace.Snapshot
	// OnReady is invoked at most once, when every node is resolved
	OnReady func(*Result)
}

// Result is the outcome of a completed resolution.
type Result struct {
	RunID id.RunID
	Entry string
	// Shared lists discovered dependencies present in the global snapshot, in
	// discovery order. The entry module is never listed.
	Shared []string
	// Modules lists every discovered module, entry first
	Modules []string
	// Unreachable lists modules whose source could not be fetched
	Unreachable []string
	// Unparsable lists modules whose source had no dependency declaration
	Unparsable []string
	Tree       *deptree.Tree
	Duration   time.Duration
}

// Resolver builds dependency trees by fetching and inspecting module sources.
type Resolver struct {
	fetcher fetch.Fetcher
	opts    Options
	logger  *zap.Logger
}

// New creates a resolver that fetches sources through fetcher.
func New(fetcher fetch.Fetcher, opts Options) *Resolver {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Resolver{
		fetcher: fetcher,
		opts:    opts,
		logger:  logging.OrNop(opts.Logger).Named("resolver"),
	}
}

type fetched struct {
	node *deptree.Node
	url  string
	body string
	err  error
}

// run holds the state of one resolution; only the pump goroutine touches it.
type run struct {
	req      Request
	tree     *deptree.Tree
	log      *zap.Logger
	results  chan fetched
	inflight int
	result   Result
	ready    sync.Once
}

// Resolve walks the dependency graph of req.Entry and returns once every
// discovered module is resolved. If ctx ends first, Resolve returns an
// error wrapping ErrResolveTimeout and OnReady is never called.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.Entry == "" {
		return nil, ErrEmptyEntry
	}
	if req.Locator == nil {
		req.Locator = DefaultLocator
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	timer := monitoring.NewTimer()
	runID := id.NewRunID()
	ru := &run{
		req:     req,
		tree:    deptree.New(req.Entry),
		log:     r.logger.With(zap.String("run_id", runID.String()), zap.String("entry", req.Entry)),
		results: make(chan fetched, r.opts.Parallel),
	}
	ru.result.RunID = runID
	ru.result.Entry = req.Entry

	root := ru.tree.Root()
	root.MarkProcessing()
	r.begin(ctx, ru, root)

	for {
		if err := ctx.Err(); err != nil {
			return nil, r.abort(ru, timer, err)
		}

		for ru.inflight < r.opts.Parallel {
			node, ok := ru.tree.TakeNextUnresolved()
			if !ok {
				break
			}
			r.begin(ctx, ru, node)
		}

		if ru.inflight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, r.abort(ru, timer, ctx.Err())
		case f := <-ru.results:
			ru.inflight--
			r.complete(ru, f)
		}
	}

	if !ru.tree.AllResolved() {
		return nil, fmt.Errorf("resolve %s: pump stopped with unresolved modules", req.Entry)
	}

	ru.result.Tree = ru.tree
	ru.result.Modules = ru.tree.ToFlatList()
	// the entry is always loaded by the sandbox itself, never injected
	ru.result.Shared = req.Snapshot.Intersect(ru.result.Modules[1:])
	ru.result.Duration = timer.Elapsed()

	r.opts.Metrics.RecordResolution("ok", ru.result.Duration, len(ru.result.Modules))
	ru.log.Info("dependencies resolved",
		zap.Int("modules", len(ru.result.Modules)),
		zap.Strings("shared", ru.result.Shared),
		zap.Int("unreachable", len(ru.result.Unreachable)),
		zap.Int("unparsable", len(ru.result.Unparsable)),
		zap.Duration("duration", ru.result.Duration))

	result := &ru.result
	ru.ready.Do(func() {
		if req.OnReady != nil {
			req.OnReady(result)
		}
	})
	return result, nil
}

// begin handles a claimed node: ignorable and global names resolve at once,
// anything else gets a fetch.
func (r *Resolver) begin(ctx context.Context, ru *run, node *deptree.Node) {
	name := node.Name()
	if IsIgnorable(name) {
		node.MarkResolved()
		return
	}
	if ru.req.Snapshot.Contains(name) {
		ru.log.Debug("module provided by global namespace", zap.String("module", name))
		node.MarkResolved()
		return
	}

	url := ru.req.Locator.Locate(name)
	ru.inflight++
	go func() {
		body, err := r.fetch(ctx, url)
		select {
		case ru.results <- fetched{node: node, url: url, body: body, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (r *Resolver) fetch(ctx context.Context, url string) (string, error) {
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}
	return r.fetcher.Fetch(ctx, url)
}

func (r *Resolver) complete(ru *run, f fetched) {
	name := f.node.Name()
	defer f.node.MarkResolved()

	if f.err != nil {
		ru.log.Warn("could not determine dependencies, assuming module is provided externally",
			zap.String("module", name), zap.String("url", f.url), zap.Error(f.err))
		ru.result.Unreachable = append(ru.result.Unreachable, name)
		return
	}

	deps, err := ExtractDependencies(f.body)
	if err != nil {
		ru.log.Warn("treating module as a leaf",
			zap.String("module", name), zap.String("url", f.url), zap.Error(err))
		ru.result.Unparsable = append(ru.result.Unparsable, name)
		return
	}

	for _, dep := range deps {
		if IsIgnorable(dep) {
			continue
		}
		f.node.AddDependency(dep)
	}
	ru.log.Debug("module inspected", zap.String("module", name), zap.Strings("dependencies", deps))
}

func (r *Resolver) abort(ru *run, timer *monitoring.Timer, cause error) error {
	r.opts.Metrics.RecordResolution("timeout", timer.Elapsed(), ru.tree.Len())
	ru.log.Warn("dependency resolution aborted",
		zap.Int("modules", ru.tree.Len()), zap.Int("in_flight", ru.inflight), zap.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrResolveTimeout, ru.req.Entry, cause)
}
