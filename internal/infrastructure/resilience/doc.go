/*
Package resilience provides the circuit breaker that guards remote module
fetches.

A plugin whose module host goes down should not make every subsequent
resolution wait out its full retry budget. The breaker counts failed fetches
and, once the configured threshold trips, rejects further calls immediately
with ErrCircuitOpen until the open timeout elapses.

# Usage

	breaker := resilience.New("module-host", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, fetch.ErrNotFound)
		},
	})

	err := breaker.Do(func() error {
		return download(ctx, url)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
