// Package server assembles the plugin host: shared namespace, module fetchers,
// resolver, sandbox registry, plugin manager and the admin HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/pluginhost/internal/api/http"
	"github.com/GriffinCanCode/pluginhost/internal/api/middleware"
	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/domain/plugin"
	"github.com/GriffinCanCode/pluginhost/internal/domain/resolver"
	"github.com/GriffinCanCode/pluginhost/internal/domain/sandbox"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/config"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/fetch"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
)

// Options carries dependencies the caller may want to own.
type Options struct {
	// Logger defaults to one built from the logging configuration
	Logger *logging.Logger
	// Registerer defaults to the process-wide Prometheus registry
	Registerer prometheus.Registerer
	// Fetcher replaces the scheme router over HTTP and local files
	Fetcher fetch.Fetcher
}

// Server wraps the plugin host and its admin API.
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	global   *namespace.Global
	registry *sandbox.Registry
	manager  *plugin.Manager
	router   *gin.Engine
	http     *http.Server
}

// New builds a server from cfg. Plugins are not started until StartPlugins.
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	global := namespace.NewGlobal()
	if cfg.Plugins.Manifest != "" {
		manifest, err := config.LoadManifest(cfg.Plugins.Manifest)
		if err != nil {
			return nil, err
		}
		cfg.Plugins.Apply(manifest)
		for name, value := range manifest.Shared {
			if err := global.Define(name, value); err != nil {
				return nil, fmt.Errorf("manifest shared module %q: %w", name, err)
			}
		}
		logger.Info("Plugin manifest loaded",
			zap.String("path", cfg.Plugins.Manifest),
			zap.Int("plugins", len(manifest.Plugins)),
			zap.Int("shared", len(manifest.Shared)),
		)
	}

	metrics := monitoring.NewMetrics(opts.Registerer)

	fetcher := opts.Fetcher
	if fetcher == nil {
		httpCfg := fetch.DefaultHTTPConfig()
		httpCfg.Timeout = cfg.Resolver.FetchTimeout
		httpCfg.Retries = cfg.Fetch.Retries
		httpCfg.RateLimit = cfg.Fetch.RateLimit
		httpCfg.UserAgent = cfg.Fetch.UserAgent
		fetcher = &fetch.Router{
			HTTP: fetch.NewHTTP(httpCfg),
			File: fetch.NewFile(cfg.Plugins.Root),
		}
	}
	fetcher = fetch.Instrument(fetcher, metrics)

	res := resolver.New(fetcher, resolver.Options{
		Timeout:      cfg.Resolver.Timeout,
		FetchTimeout: cfg.Resolver.FetchTimeout,
		Parallel:     cfg.Resolver.Parallel,
		Logger:       logger.Logger,
		Metrics:      metrics,
	})

	registry := sandbox.NewRegistry().WithMetrics(metrics)
	provisioner := plugin.NewProvisioner(fetcher, res, global, registry, plugin.ProvisionerOptions{
		ScriptTimeout: cfg.Sandbox.ScriptTimeout,
		Logger:        logger.Logger,
		Metrics:       metrics,
	})
	manager := plugin.NewManager(provisioner, registry, plugin.Options{
		EntryModule: plugin.MapEntryModule{
			Overrides: cfg.Plugins.EntryOverrides,
			Fallback:  plugin.DefaultEntryModule{Name: cfg.Plugins.EntryModule},
		},
		ContextPath: plugin.MapContextPath{
			Overrides: cfg.Plugins.ContextOverrides,
			Fallback:  plugin.BaseURLContextPath{BaseURL: cfg.Plugins.BaseURL},
		},
		Logger:  logger.Logger,
		Metrics: metrics,
	})

	global.MustDefine(HostModule, newHostModule(manager, &logging.Logger{Logger: logger.Component("host")}))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandlers(manager, global, registry, logger.Logger).Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized",
		zap.String("base_url", cfg.Plugins.BaseURL),
		zap.Duration("resolve_timeout", cfg.Resolver.Timeout),
		zap.Int("parallel", cfg.Resolver.Parallel),
	)

	return &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		global:   global,
		registry: registry,
		manager:  manager,
		router:   router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// PluginNames returns the configured plugins followed by the ones discovered
// under the local plugin base directory.
func (s *Server) PluginNames() ([]string, error) {
	names := append([]string(nil), s.config.Plugins.Names...)
	if s.config.Plugins.DiscoverGlob == "" {
		return names, nil
	}

	if strings.Contains(s.config.Plugins.BaseURL, "://") {
		return names, fmt.Errorf("cannot discover plugins under remote base %s", s.config.Plugins.BaseURL)
	}
	root := filepath.Join(s.config.Plugins.Root, filepath.FromSlash(s.config.Plugins.BaseURL))
	found, err := config.Discover(root, s.config.Plugins.DiscoverGlob)
	if err != nil {
		return names, err
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for _, name := range found {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// StartPlugins starts every configured and discovered plugin. Failures are
// logged per plugin by the manager and returned joined.
func (s *Server) StartPlugins(ctx context.Context) error {
	names, err := s.PluginNames()
	if err != nil {
		s.logger.Warn("Plugin discovery failed", zap.Error(err))
	}
	s.logger.Info("Starting plugins", zap.Strings("plugins", names))
	return errors.Join(err, s.manager.StartPlugins(ctx, names))
}

// Handler returns the admin API handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the plugin manager.
func (s *Server) Manager() *plugin.Manager {
	return s.manager
}

// Logger returns the host logger.
func (s *Server) Logger() *logging.Logger {
	return s.logger
}

// Global returns the shared module namespace.
func (s *Server) Global() *namespace.Global {
	return s.global
}

// Run serves the admin API until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the admin API and closes every plugin sandbox.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := s.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close plugins: %w", err))
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
