package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited marks routes that are never rate limited.
var unlimited = &EndpointConfig{}

// MatchEndpoint returns the configuration for a request, or nil when the default applies.
// Exact matches win over prefix matches. Health checks and the internal stage routes,
// which are called by the workflow engine and guarded by a shared secret, are unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == http.MethodGet {
		return unlimited
	}
	if strings.HasPrefix(path, "/internal/") {
		return unlimited
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method == method && strings.HasSuffix(cfg.Path, "/") && strings.HasPrefix(path, cfg.Path) {
			return cfg
		}
	}
	return nil
}
