package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/domain/deptree"
	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pluginhost/tests/helpers/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newResolver(f fetch.Fetcher) *Resolver {
	return New(f, Options{FetchTimeout: time.Second})
}

func TestResolveSharedRoundTrip(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js": testutil.Define("function (a, b) {}", "a", "b"),
		"b.js":    testutil.Define("function () {}"),
	})

	var readyCalls int
	result, err := newResolver(f).Resolve(context.Background(), Request{
		Entry:    "main",
		Snapshot: namespace.NewSnapshot("a"),
		OnReady:  func(*Result) { readyCalls++ },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, result.Shared)
	assert.Equal(t, []string{"main", "a", "b"}, result.Modules)
	assert.Empty(t, result.Unreachable)
	assert.True(t, result.Tree.AllResolved())
	assert.Equal(t, 1, readyCalls)
	assert.False(t, f.Fetched("a.js"), "global modules are never fetched")
	assert.NotEmpty(t, result.RunID.String())
}

func TestResolveCycleTerminates(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js": testutil.Define("function () {}", "a"),
		"a.js":    testutil.Define("function () {}", "b"),
		"b.js":    testutil.Define("function () {}", "a", "main"),
	})

	result, err := newResolver(f).Resolve(context.Background(), Request{Entry: "main"})
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "a", "b"}, result.Modules)
	assert.Equal(t, 3, result.Tree.Len())
	assert.Equal(t, []string{"main.js", "a.js", "b.js"}, f.Calls())
}

func TestResolveFetchFailureStillCompletes(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js": testutil.Define("function () {}", "c", "d"),
		"d.js":    testutil.Define("function () {}"),
	})
	f.Failures["c.js"] = errors.New("connection refused")

	var readyCalls atomic.Int32
	result, err := newResolver(f).Resolve(context.Background(), Request{
		Entry:   "main",
		OnReady: func(*Result) { readyCalls.Add(1) },
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), readyCalls.Load())
	assert.Contains(t, result.Modules, "c")
	assert.Equal(t, []string{"c"}, result.Unreachable)

	c, ok := result.Tree.FindDependency("c")
	require.True(t, ok)
	assert.Equal(t, deptree.StatusResolved, c.Status())
	assert.Empty(t, c.Children())
}

func TestResolveMissingEntryIsAbsorbed(t *testing.T) {
	f := testutil.NewMapFetcher(nil)

	result, err := newResolver(f).Resolve(context.Background(), Request{Entry: "main"})
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, result.Modules)
	assert.Equal(t, []string{"main"}, result.Unreachable)
}

func TestResolveIgnoresLoaderPseudoDependencies(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js": testutil.Define("function (require, exports, module, a) {}", "require", "exports", "module", "a"),
		"a.js":    testutil.Define("function () {}"),
	})

	result, err := newResolver(f).Resolve(context.Background(), Request{Entry: "main"})
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "a"}, result.Modules)
	for _, name := range []string{"require", "exports", "module"} {
		_, found := result.Tree.FindDependency(name)
		assert.False(t, found, name)
	}
}

func TestResolveUnparsableSourceIsLeaf(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js":   testutil.Define("function () {}", "legacy", "b"),
		"legacy.js": "window.legacy = {};",
		"b.js":      testutil.Define("function () {}"),
	})

	result, err := newResolver(f).Resolve(context.Background(), Request{Entry: "main"})
	require.NoError(t, err)

	assert.Equal(t, []string{"legacy"}, result.Unparsable)
	assert.Equal(t, []string{"main", "legacy", "b"}, result.Modules)
	assert.True(t, result.Tree.AllResolved())
}

func TestResolveGlobalEntryIsNotFetched(t *testing.T) {
	m := testutil.NewMockFetcher(t)

	result, err := newResolver(m).Resolve(context.Background(), Request{
		Entry:    "shared-x",
		Snapshot: namespace.NewSnapshot("shared-x"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-x"}, result.Modules)
	assert.Empty(t, result.Shared, "the entry module is not injected")
	m.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestResolveSharedExcludesEntry(t *testing.T) {
	f := testutil.NewMapFetcher(map[string]string{
		"main.js": testutil.Define("function () {}", "shared-x", "main"),
	})

	result, err := newResolver(f).Resolve(context.Background(), Request{
		Entry:    "main",
		Snapshot: namespace.NewSnapshot("main", "shared-x"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "shared-x"}, result.Modules)
	assert.Equal(t, []string{"shared-x"}, result.Shared)
}

func TestResolveUsesLocator(t *testing.T) {
	m := testutil.NewMockFetcher(t)
	m.On("Fetch", mock.Anything, "https://cdn.example.com/plugin-a/main.js").
		Return(testutil.Define("function () {}", "shared-x"), nil).
		Once()

	locator := LocatorFunc(func(name string) string {
		return "https://cdn.example.com/plugin-a/" + name + ".js"
	})

	result, err := newResolver(m).Resolve(context.Background(), Request{
		Entry:    "main",
		Locator:  locator,
		Snapshot: namespace.NewSnapshot("shared-x", "shared-y"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-x"}, result.Shared)
}

func TestResolveEmptyEntry(t *testing.T) {
	_, err := newResolver(testutil.NewMapFetcher(nil)).Resolve(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyEntry)
}

func TestResolveTimeout(t *testing.T) {
	blocking := fetch.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	_, err := New(blocking, Options{}).Resolve(ctx, Request{
		Entry:   "main",
		OnReady: func(*Result) { called = true },
	})
	assert.ErrorIs(t, err, ErrResolveTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestResolvePerFetchTimeoutIsAFetchFailure(t *testing.T) {
	f := fetch.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		if url == "slow.js" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return testutil.Define("function () {}", "slow"), nil
	})

	result, err := New(f, Options{FetchTimeout: 20 * time.Millisecond}).Resolve(context.Background(), Request{Entry: "main"})
	require.NoError(t, err)
	assert.Equal(t, []string{"slow"}, result.Unreachable)
}

func TestResolveParallel(t *testing.T) {
	var inflight, peak atomic.Int32
	sources := map[string]string{
		"main.js": testutil.Define("function () {}", "a", "b", "c", "d"),
		"a.js":    testutil.Define("function () {}", "shared", "b"),
		"b.js":    testutil.Define("function () {}", "a"),
		"c.js":    testutil.Define("function () {}"),
		"d.js":    testutil.Define("function () {}", "c"),
	}
	f := fetch.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return sources[url], nil
	})

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	var readyCalls atomic.Int32
	result, err := New(f, Options{Parallel: 4, Metrics: metrics}).Resolve(context.Background(), Request{
		Entry:    "main",
		Snapshot: namespace.NewSnapshot("shared"),
		OnReady:  func(*Result) { readyCalls.Add(1) },
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"main", "a", "b", "c", "d", "shared"}, result.Modules)
	assert.Equal(t, []string{"shared"}, result.Shared)
	assert.Equal(t, 6, result.Tree.Len())
	assert.Equal(t, int32(1), readyCalls.Load())
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Greater(t, peak.Load(), int32(1))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.ResolutionsTotal.WithLabelValues("ok")))
}

func TestResolveRunTimeoutOption(t *testing.T) {
	blocking := fetch.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := New(blocking, Options{Timeout: 30 * time.Millisecond}).Resolve(context.Background(), Request{Entry: "main"})
	assert.ErrorIs(t, err, ErrResolveTimeout)
}
