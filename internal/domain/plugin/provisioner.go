package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/domain/resolver"
	"github.com/GriffinCanCode/pluginhost/internal/domain/sandbox"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// ConfigFile is the per-plugin loader configuration document.
const ConfigFile = "require.config.json"

// ProvisionerOptions configures a Provisioner.
type ProvisionerOptions struct {
	ScriptTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
}

// Provisioned is a sandbox ready for its entry module.
type Provisioned struct {
	Sandbox    *sandbox.Sandbox
	Resolution *resolver.Result
	Injected   int
}

// Provisioner creates plugin sandboxes and seeds them with shared modules.
type Provisioner struct {
	fetcher  fetch.Fetcher
	resolver *resolver.Resolver
	global   *namespace.Global
	registry *sandbox.Registry
	injector *sandbox.Injector
	opts     ProvisionerOptions
	logger   *zap.Logger
}

// NewProvisioner creates a provisioner. Sandboxes are registered in registry
// and shared modules come from global.
func NewProvisioner(fetcher fetch.Fetcher, res *resolver.Resolver, global *namespace.Global, registry *sandbox.Registry, opts ProvisionerOptions) *Provisioner {
	logger := logging.OrNop(opts.Logger)
	return &Provisioner{
		fetcher:  fetcher,
		resolver: res,
		global:   global,
		registry: registry,
		injector: sandbox.NewInjector(global, logger, opts.Metrics),
		opts:     opts,
		logger:   logger.Named("provisioner"),
	}
}

// Provision creates the sandbox for plugin rooted at contextPath, resolves
// entry and injects the shared dependencies. The sandbox is registered before
// resolution starts and removed again if resolution fails.
func (p *Provisioner) Provision(ctx context.Context, plugin, contextPath, entry string) (*Provisioned, error) {
	log := p.logger.With(zap.String("plugin", plugin))
	settings := p.loadSettings(ctx, log, contextPath)

	cfg := sandbox.DefaultConfig(plugin, contextPath)
	if p.opts.ScriptTimeout > 0 {
		cfg.ScriptTimeout = p.opts.ScriptTimeout
	}
	cfg.Settings = settings
	cfg.Paths = pathsFrom(settings)

	sb, err := sandbox.New(cfg, p.fetcher, log)
	if err != nil {
		return nil, err
	}
	if err := p.registry.Register(sb); err != nil {
		_ = sb.Close()
		return nil, err
	}

	result, err := p.resolver.Resolve(ctx, resolver.Request{
		Entry:    entry,
		Locator:  sb.Locator(),
		Snapshot: p.global.Snapshot(),
	})
	if err != nil {
		p.registry.Remove(plugin)
		return nil, fmt.Errorf("resolve %s: %w", plugin, err)
	}

	injected := p.injector.Inject(sb, result.Shared)
	log.Info("sandbox provisioned",
		zap.String("sandbox_id", sb.ID().String()),
		zap.String("context_path", contextPath),
		zap.Strings("shared", result.Shared),
		zap.Int("modules", len(result.Modules)))

	return &Provisioned{Sandbox: sb, Resolution: result, Injected: injected}, nil
}

// loadSettings fetches the plugin's loader configuration. A missing or
// malformed document yields the default configuration.
func (p *Provisioner) loadSettings(ctx context.Context, log *zap.Logger, contextPath string) map[string]any {
	url := ConfigURL(contextPath)
	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Info("no loader configuration found, assuming defaults", zap.String("url", url), zap.Error(err))
		return nil
	}

	var settings map[string]any
	if err := sonic.UnmarshalString(body, &settings); err != nil {
		log.Warn("loader configuration is malformed, assuming defaults", zap.String("url", url), zap.Error(err))
		return nil
	}
	return settings
}

// ConfigURL returns the location of the loader configuration under contextPath.
func ConfigURL(contextPath string) string {
	base := strings.TrimSuffix(contextPath, "/")
	if base == "" {
		return ConfigFile
	}
	return base + "/" + ConfigFile
}

func pathsFrom(settings map[string]any) map[string]string {
	raw, ok := settings["paths"].(map[string]any)
	if !ok {
		return nil
	}
	paths := make(map[string]string, len(raw))
	for name, location := range raw {
		if s, ok := location.(string); ok {
			paths[name] = s
		}
	}
	return paths
}
