package sandbox

import (
	"github.com/GriffinCanCode/pluginhost/internal/domain/namespace"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Injector seeds sandboxes with instances from the global namespace
type Injector struct {
	global  *namespace.Global
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewInjector creates an injector reading instances from global
func NewInjector(global *namespace.Global, logger *zap.Logger, metrics *monitoring.Metrics) *Injector {
	return &Injector{
		global:  global,
		logger:  logging.OrNop(logger).Named("injector"),
		metrics: metrics,
	}
}

// Inject queues a definition returning the live global instance for each
// shared name, so the sandbox never fetches or re-instantiates them.
// It returns the number of bindings written.
func (i *Injector) Inject(sb *Sandbox, shared []string) int {
	defs := make([]Definition, 0, len(shared))
	for _, name := range shared {
		instance, ok := i.global.Lookup(name)
		if !ok {
			// names come from a snapshot of the same namespace
			i.logger.Warn("shared module vanished before injection",
				zap.String("sandbox", sb.Name()), zap.String("module", name))
			continue
		}
		defs = append(defs, Instance(name, instance))
	}

	sb.Enqueue(defs...)
	i.metrics.AddSharedInjected(len(defs))
	i.logger.Debug("shared modules injected",
		zap.String("sandbox", sb.Name()), zap.Int("count", len(defs)))
	return len(defs)
}
