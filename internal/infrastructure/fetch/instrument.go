package fetch

import (
	"context"

	"github.com/GriffinCanCode/pluginhost/internal/infrastructure/monitoring"
)

type instrumented struct {
	next    Fetcher
	metrics *monitoring.Metrics
}

// Instrument wraps next so every fetch is counted and timed.
func Instrument(next Fetcher, metrics *monitoring.Metrics) Fetcher {
	if metrics == nil {
		return next
	}
	return &instrumented{next: next, metrics: metrics}
}

func (i *instrumented) Fetch(ctx context.Context, url string) (string, error) {
	timer := monitoring.NewTimer()
	body, err := i.next.Fetch(ctx, url)
	i.metrics.RecordFetch(Outcome(err), timer.Elapsed())
	return body, err
}
