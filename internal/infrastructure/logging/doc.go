// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *zap.Logger (usually via Logger.Named) and attach the
// plugin, module and resolution-run fields relevant to them:
//
//	logger := logging.NewDefault()
//	log := logger.ForPlugin("plugin-a")
//	log.Warn("config document unreadable, using defaults", zap.Error(err))
package logging
