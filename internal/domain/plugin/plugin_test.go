package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/domain/resolver"
	"github.com/GriffinCanCode/pluginhost/internal/domain/sandbox"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pluginhost/tests/helpers/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sharedService struct {
	mu    sync.Mutex
	inits []string
}

func (s *sharedService) Register(plugin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits = append(s.inits, plugin)
}

func (s *sharedService) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inits...)
}

type host struct {
	fetcher  *testutil.MapFetcher
	global   *namespace.Global
	registry *sandbox.Registry
	metrics  *monitoring.Metrics
	prov     *Provisioner
	manager  *Manager
	service  *sharedService
}

func newHost(t *testing.T, f fetch.Fetcher, logger *zap.Logger) *host {
	t.Helper()
	h := &host{
		global:   namespace.NewGlobal(),
		registry: sandbox.NewRegistry(),
		metrics:  monitoring.NewMetrics(prometheus.NewRegistry()),
		service:  &sharedService{},
	}
	if mf, ok := f.(*testutil.MapFetcher); ok {
		h.fetcher = mf
	}
	h.global.MustDefine("shared-x", h.service)

	res := resolver.New(f, resolver.Options{FetchTimeout: time.Second, Logger: logger})
	h.prov = NewProvisioner(f, res, h.global, h.registry, ProvisionerOptions{
		ScriptTimeout: time.Second,
		Logger:        logger,
		Metrics:       h.metrics,
	})
	h.manager = NewManager(h.prov, h.registry, Options{
		BaseURL: "plugins",
		Logger:  logger,
		Metrics: h.metrics,
	})
	t.Cleanup(func() { _ = h.manager.Close() })
	return h
}

const pluginA = `define(["shared-x"], function (x) {
	return { init: function () { x.Register("plugin-a"); } };
});`

func TestStartPluginSharedScenario(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/main.js": pluginA,
	})
	h := newHost(t, f, nil)

	require.NoError(t, h.manager.StartPlugins(context.Background(), []string{"plugin-a"}))

	assert.False(t, f.Fetched("plugins/plugin-a/shared-x.js"))
	assert.Equal(t, []string{"plugin-a"}, h.service.Registered())

	record, ok := h.manager.Plugin("plugin-a")
	require.True(t, ok)
	assert.True(t, record.Loaded)
	assert.Equal(t, []string{"shared-x"}, record.Shared)
	assert.Equal(t, "plugins/plugin-a", record.ContextPath)
	assert.Equal(t, "main", record.EntryModule)
	assert.NotEmpty(t, record.SandboxID)

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.SharedInjected))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.PluginStarts.WithLabelValues("ok")))
	assert.True(t, h.registry.Has("plugin-a"))
}

func TestStartPluginTwiceIsIdempotent(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/main.js": pluginA,
	})
	h := newHost(t, f, nil)
	ctx := context.Background()

	require.NoError(t, h.manager.StartPlugin(ctx, "plugin-a"))
	require.NoError(t, h.manager.StartPlugin(ctx, "plugin-a"))

	assert.Equal(t, []string{"plugin-a"}, h.registry.Names())
	assert.Equal(t, []string{"plugin-a"}, h.service.Registered())
	assert.Len(t, h.manager.Plugins(), 1)
}

func TestStartPluginConcurrentCallsStartOnce(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/main.js": pluginA,
	})
	h := newHost(t, f, nil)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.manager.StartPlugin(context.Background(), "plugin-a"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, []string{"plugin-a"}, h.service.Registered())
	assert.Equal(t, 1, h.registry.Len())
}

func TestStartPluginsContinuesAfterFailure(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/main.js": pluginA,
		"plugins/broken/main.js":   `define([], function () { return {}; });`,
	})
	h := newHost(t, f, nil)

	err := h.manager.StartPlugins(context.Background(), []string{"broken", "plugin-a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sandbox.ErrNoInitializer)
	assert.ErrorContains(t, err, "plugin broken")

	assert.True(t, h.manager.IsLoaded("plugin-a"))
	assert.False(t, h.manager.IsLoaded("broken"))
	_, ok := h.manager.Plugin("broken")
	assert.False(t, ok)
	assert.False(t, h.registry.Has("broken"))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.PluginStarts.WithLabelValues("error")))
}

func TestStartPluginRetryAfterFailure(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{})
	h := newHost(t, f, nil)
	ctx := context.Background()

	require.Error(t, h.manager.StartPlugin(ctx, "plugin-a"))
	assert.False(t, h.registry.Has("plugin-a"))

	f.Sources["plugins/plugin-a/main.js"] = pluginA
	require.NoError(t, h.manager.StartPlugin(ctx, "plugin-a"))
	assert.Equal(t, []string{"plugin-a"}, h.service.Registered())
}

func TestStartPluginEmptyName(t *testing.T) {
	h := newHost(t, testutil.NewMapFetcher(nil), nil)
	assert.ErrorIs(t, h.manager.StartPlugin(context.Background(), ""), ErrEmptyName)
}

func TestStartPluginInvalidName(t *testing.T) {
	f := testutil.NewMapFetcher(nil)
	h := newHost(t, f, nil)

	assert.ErrorIs(t, h.manager.StartPlugin(context.Background(), "../secrets"), ErrInvalidName)
	assert.Empty(t, f.Calls())
	assert.Empty(t, h.manager.Plugins())
}

func TestStartPluginResolutionTimeout(t *testing.T) {
	blocking := fetch.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		if url == ConfigURL("plugins/plugin-a") {
			return "", fetch.ErrNotFound
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newHost(t, blocking, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.manager.StartPlugin(ctx, "plugin-a")
	assert.ErrorIs(t, err, resolver.ErrResolveTimeout)
	assert.False(t, h.registry.Has("plugin-a"))
	assert.Empty(t, h.service.Registered())
}

func TestProvisionInjectsOnlyShared(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/main.js": testutil.Define("function (a, b) { return {}; }", "shared-x", "b"),
		"plugins/plugin-a/b.js":    testutil.Define("function () { return {}; }"),
	})
	h := newHost(t, f, nil)

	p, err := h.prov.Provision(context.Background(), "plugin-a", "plugins/plugin-a", "main")
	require.NoError(t, err)

	assert.Equal(t, []string{"shared-x"}, p.Resolution.Shared)
	assert.Equal(t, 1, p.Injected)
	assert.Equal(t, []string{"shared-x"}, p.Sandbox.Pending())
	assert.NotContains(t, p.Sandbox.Pending(), "b")

	got, ok := h.registry.Get("plugin-a")
	require.True(t, ok)
	assert.Same(t, p.Sandbox, got)
}

func TestProvisionAppliesLoaderConfig(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/require.config.json": `{"paths": {"lib": "vendor/lib"}, "waitSeconds": 7}`,
		"plugins/plugin-a/main.js":             testutil.Define(`function (util) { return { init: function () {} }; }`, "lib/util"),
		"plugins/plugin-a/vendor/lib/util.js":  testutil.Define("function () { return {}; }"),
	})
	h := newHost(t, f, nil)

	p, err := h.prov.Provision(context.Background(), "plugin-a", "plugins/plugin-a", "main")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"lib": "vendor/lib"}, p.Sandbox.Config().Paths)
	assert.EqualValues(t, 7, p.Sandbox.Config().Settings["waitSeconds"])
	assert.True(t, f.Fetched("plugins/plugin-a/vendor/lib/util.js"))
	assert.Empty(t, p.Resolution.Unreachable)

	require.NoError(t, p.Sandbox.Start(context.Background(), "main"))
}

func TestProvisionMalformedConfigFallsBack(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := testutil.NewMapFetcher(map[string]string{
		"plugins/plugin-a/require.config.json": `{"paths": `,
		"plugins/plugin-a/main.js":             pluginA,
	})
	h := newHost(t, f, zap.New(core))

	require.NoError(t, h.manager.StartPlugin(context.Background(), "plugin-a"))
	assert.True(t, h.manager.IsLoaded("plugin-a"))

	sb, ok := h.registry.Get("plugin-a")
	require.True(t, ok)
	assert.Nil(t, sb.Config().Settings)
	assert.Equal(t, 1, logs.FilterMessage("loader configuration is malformed, assuming defaults").Len())
}

func TestStrategies(t *testing.T) {
	assert.Equal(t, "main", DefaultEntryModule{}.EntryModule("x"))
	assert.Equal(t, "boot", DefaultEntryModule{Name: "boot"}.EntryModule("x"))

	assert.Equal(t, "plugins/x", BaseURLContextPath{BaseURL: "plugins/"}.ContextPath("x"))
	assert.Equal(t, "x", BaseURLContextPath{}.ContextPath("x"))

	entry := MapEntryModule{Overrides: map[string]string{"b": "boot"}, Fallback: DefaultEntryModule{Name: "index"}}
	assert.Equal(t, "boot", entry.EntryModule("b"))
	assert.Equal(t, "index", entry.EntryModule("a"))
	assert.Equal(t, "main", MapEntryModule{}.EntryModule("a"))

	paths := MapContextPath{
		Overrides: map[string]string{"b": "https://mirror.example.com/b"},
		Fallback:  BaseURLContextPath{BaseURL: "https://cdn.example.com/plugins"},
	}
	assert.Equal(t, "https://mirror.example.com/b", paths.ContextPath("b"))
	assert.Equal(t, "https://cdn.example.com/plugins/a", paths.ContextPath("a"))

	assert.Equal(t, "custom-a", EntryModuleFunc(func(p string) string { return "custom-" + p }).EntryModule("a"))
	assert.Equal(t, "/srv/a", ContextPathFunc(func(p string) string { return "/srv/" + p }).ContextPath("a"))
}

func TestManagerUsesStrategies(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"vendor/plugin-a/boot.js": pluginA,
	})
	h := newHost(t, f, nil)
	m := NewManager(h.prov, h.registry, Options{
		EntryModule: MapEntryModule{Overrides: map[string]string{"plugin-a": "boot"}},
		ContextPath: MapContextPath{Overrides: map[string]string{"plugin-a": "vendor/plugin-a"}},
	})

	require.NoError(t, m.StartPlugin(context.Background(), "plugin-a"))
	record, ok := m.Plugin("plugin-a")
	require.True(t, ok)
	assert.Equal(t, "boot", record.EntryModule)
	assert.Equal(t, "vendor/plugin-a", record.ContextPath)
	assert.True(t, f.Fetched("vendor/plugin-a/require.config.json"))
}
