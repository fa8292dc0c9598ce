package swapi

import (
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// newBreaker returns the circuit breaker guarding page requests to one
// catalog host. It opens once at least 10 requests were seen in the current
// window and 60% or more of them failed, then lets a probe through after
// one minute.
func newBreaker(host string, logger *slog.Logger) *gobreaker.CircuitBreaker[*page] {
	return gobreaker.NewCircuitBreaker[*page](gobreaker.Settings{
		Name:        "catalog:" + host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("catalog circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
