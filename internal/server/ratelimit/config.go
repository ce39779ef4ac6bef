package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// EndpointConfig overrides the default limit for one route.
type EndpointConfig struct {
	Route string     // ServeMux pattern, e.g. "POST /reviews/{id}/nudge"
	Rate  rate.Limit // sustained requests per second
	Burst int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
	IdleTTL         time.Duration // limiters unused for this long are dropped
	EndpointConfigs []EndpointConfig
}

// NewConfig returns a config allowing perSecond requests with the given
// burst per identity and route. perSecond of zero disables limiting.
func NewConfig(perSecond float64, burst int) *Config {
	if burst <= 0 {
		burst = 1
	}
	return &Config{
		Enabled:         perSecond > 0,
		Rate:            rate.Limit(perSecond),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         30 * time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the route-specific limits.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Reminder passes and manual nudges reach people's inboxes.
		{Route: "POST /reviews/{id}/nudge", Rate: rate.Every(time.Minute), Burst: 3},
		{Route: "POST /scheduler/due-soon", Rate: rate.Every(time.Minute), Burst: 2},
		{Route: "POST /scheduler/overdue", Rate: rate.Every(time.Minute), Burst: 2},

		{Route: "GET /health", Rate: rate.Inf},
	}
}
