package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/pluginhost/internal/api/middleware"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/tests/helpers/testutil"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *observer.ObservedLogs) {
	t.Helper()

	cfg := config.Default()
	cfg.Plugins.Root = t.TempDir()
	cfg.RateLimit.Enabled = false
	cfg.Logging.Development = true
	if mutate != nil {
		mutate(cfg)
	}

	core, logs := observer.New(zap.DebugLevel)
	srv, err := New(cfg, Options{
		Logger:     &logging.Logger{Logger: zap.New(core)},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, logs
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestStartPluginThroughAPI(t *testing.T) {
	srv, logs := newTestServer(t, nil)
	writeFiles(t, srv.config.Plugins.Root, map[string]string{
		"plugins/alpha/main.js": testutil.Define(
			`function (host, helper) { return { init: function () { host.log("alpha", helper.greet(host.version)); } }; }`,
			"host", "helper"),
		"plugins/alpha/helper.js": testutil.Define(
			`function () { return { greet: function (v) { return "started on " + v; } }; }`),
	})

	w := serve(srv, http.MethodPost, "/plugins/alpha/start")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	var record map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, true, record["loaded"])
	assert.Equal(t, []any{HostModule}, record["shared"])

	assert.Equal(t, 1, logs.FilterMessage("started on "+Version).Len())
	assert.True(t, srv.Manager().IsLoaded("alpha"))

	w = serve(srv, http.MethodGet, "/sandboxes")
	assert.Contains(t, w.Body.String(), "alpha")
}

func TestStartMissingPlugin(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := serve(srv, http.MethodPost, "/plugins/ghost/start")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, srv.Manager().IsLoaded("ghost"))

	w = serve(srv, http.MethodGet, "/plugins/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManifestSharedModules(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "plugins.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
plugins:
  - beta
shared:
  settings:
    theme: dark
`), 0o644))

	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Plugins.Manifest = manifest
	})

	assert.Equal(t, []string{HostModule, "settings"}, srv.Global().Names())
	names, err := srv.PluginNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names)

	w := serve(srv, http.MethodGet, "/modules")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "settings")
}

func TestStartPluginsWithDiscovery(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Plugins.Names = []string{"beta"}
		cfg.Plugins.DiscoverGlob = "*/main.js"
	})
	writeFiles(t, srv.config.Plugins.Root, map[string]string{
		"plugins/alpha/main.js": testutil.Define(`function () { return { init: function () {} }; }`),
		"plugins/beta/main.js":  testutil.Define(`function () { return { init: function () {} }; }`),
	})

	names, err := srv.PluginNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "alpha"}, names)

	require.NoError(t, srv.StartPlugins(context.Background()))
	assert.True(t, srv.Manager().IsLoaded("alpha"))
	assert.True(t, srv.Manager().IsLoaded("beta"))
}

func TestDiscoveryRejectsRemoteBase(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Plugins.BaseURL = "https://cdn.example.com/plugins"
		cfg.Plugins.DiscoverGlob = "*/main.js"
	})

	_, err := srv.PluginNames()
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	serve(srv, http.MethodGet, "/health")
	w := serve(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pluginhost_http_requests_total")
}
