package server

import (
	"github.com/GriffinCanCode/pluginhost/internal/domain/plugin"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
)

// HostModule is the shared module every plugin can depend on to reach the host.
const HostModule = "host"

// Version is reported to plugins through the host module.
const Version = "1.0.0"

// newHostModule builds the host module instance. Plugins see a plain object
// with a version string and functions.
func newHostModule(manager *plugin.Manager, logger *logging.Logger) map[string]any {
	return map[string]any{
		"version": Version,
		"plugins": func() []string {
			records := manager.Plugins()
			names := make([]string, 0, len(records))
			for _, r := range records {
				names = append(names, r.Name)
			}
			return names
		},
		"isLoaded": manager.IsLoaded,
		"log": func(plugin, msg string) {
			logger.ForPlugin(plugin).Info(msg)
		},
	}
}
