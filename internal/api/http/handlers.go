// Package http exposes the plugin host's admin API.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pluginhost/internal/domain/plugin"
	"github.com/GriffinCanCode/pluginhost/internal/domain/resolver"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
)

// PluginService starts and reports plugins.
type PluginService interface {
	StartPlugin(ctx context.Context, name string) error
	Plugin(name string) (plugin.Record, bool)
	Plugins() []plugin.Record
}

// NameLister lists registered names.
type NameLister interface {
	Names() []string
}

// Handlers contains the admin API handlers.
type Handlers struct {
	plugins   PluginService
	modules   NameLister
	sandboxes NameLister
	logger    *zap.Logger
}

// NewHandlers creates the handlers. modules lists the global namespace and
// sandboxes the live sandbox registry.
func NewHandlers(plugins PluginService, modules, sandboxes NameLister, logger *zap.Logger) *Handlers {
	return &Handlers{
		plugins:   plugins,
		modules:   modules,
		sandboxes: sandboxes,
		logger:    logging.OrNop(logger).Named("api"),
	}
}

// Register mounts the handlers on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/plugins", h.ListPlugins)
	r.GET("/plugins/:name", h.GetPlugin)
	r.POST("/plugins/:name/start", h.StartPlugin)
	r.GET("/modules", h.ListModules)
	r.GET("/sandboxes", h.ListSandboxes)
}

// Health reports liveness and a summary of the host state.
func (h *Handlers) Health(c *gin.Context) {
	records := h.plugins.Plugins()
	loaded := 0
	for _, r := range records {
		if r.Loaded {
			loaded++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"plugins":   len(records),
		"loaded":    loaded,
		"sandboxes": len(h.sandboxes.Names()),
	})
}

// ListPlugins returns every known plugin record.
func (h *Handlers) ListPlugins(c *gin.Context) {
	records := h.plugins.Plugins()
	c.JSON(http.StatusOK, gin.H{
		"plugins": records,
		"count":   len(records),
	})
}

// GetPlugin returns a single plugin record.
func (h *Handlers) GetPlugin(c *gin.Context) {
	name := c.Param("name")
	record, ok := h.plugins.Plugin(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "plugin not found: " + name,
		})
		return
	}
	c.JSON(http.StatusOK, record)
}

// StartPlugin starts a plugin and returns its record. A plugin that is
// still starting is reported with 202.
func (h *Handlers) StartPlugin(c *gin.Context) {
	name := c.Param("name")

	if err := h.plugins.StartPlugin(c.Request.Context(), name); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, plugin.ErrEmptyName), errors.Is(err, plugin.ErrInvalidName):
			status = http.StatusBadRequest
		case errors.Is(err, resolver.ErrResolveTimeout), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		h.logger.Warn("start plugin failed", zap.String("plugin", name), zap.Error(err))
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	record, ok := h.plugins.Plugin(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "plugin not found: " + name,
		})
		return
	}
	status := http.StatusOK
	if !record.Loaded {
		status = http.StatusAccepted
	}
	c.JSON(status, record)
}

// ListModules returns the names published in the global namespace.
func (h *Handlers) ListModules(c *gin.Context) {
	names := h.modules.Names()
	c.JSON(http.StatusOK, gin.H{
		"modules": names,
		"count":   len(names),
	})
}

// ListSandboxes returns the plugins that currently own a sandbox.
func (h *Handlers) ListSandboxes(c *gin.Context) {
	names := h.sandboxes.Names()
	c.JSON(http.StatusOK, gin.H{
		"sandboxes": names,
		"count":     len(names),
	})
}
