package ratelimit

// MatchEndpoint returns the configuration registered for route, or nil
// when the default applies.
func MatchEndpoint(route string, configs []EndpointConfig) *EndpointConfig {
	for i := range configs {
		if configs[i].Route == route {
			return &configs[i]
		}
	}
	return nil
}
