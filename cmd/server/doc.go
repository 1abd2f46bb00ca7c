// Package main is the entry point for the plugin host.
//
// The host resolves each plugin's module graph, provisions an isolated
// script sandbox per plugin, seeds it with the shared modules the plugin
// depends on and calls the entry module's init function.
//
// The server provides:
//   - Plugin start and status endpoints
//   - Global namespace and sandbox listings
//   - Prometheus metrics at /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Optional plugin manifest (.json, .yaml or .toml)
//
// Usage:
//
//	# Start plugins from ./plugins/<name>/main.js
//	PLUGINS=charts,editor ./server -port 8000
//
//	# Remote modules with a manifest
//	./server -base-url https://cdn.example.com/plugins -manifest plugins.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
