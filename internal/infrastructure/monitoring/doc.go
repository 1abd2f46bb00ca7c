/*
Package monitoring provides Prometheus metrics for the plugin host.

# Overview

Metrics cover the whole plugin start path: dependency resolution runs, source
fetches, shared-dependency injection, sandbox lifecycle and plugin starts,
plus request metrics for the admin API.

# Usage

	// Create metrics collector on a private registry
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	// Add middleware to Gin router and expose the registry
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Record domain metrics
	metrics.RecordResolution("ok", time.Second, 12)
	metrics.RecordPluginStart("ok")

All Record and Set methods are no-ops on a nil *Metrics, so components accept
an optional collector without nil checks at every call site.
*/
package monitoring
