package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"tasksync/internal/config"

	"golang.org/x/time/rate"
)

// guard provides optional API-key auth and per-client rate limiting. Both are
// off unless configured; the health endpoint is always open so external
// probes keep working.
type guard struct {
	cfg      *config.APIConfig
	keys     map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func newGuard(cfg *config.APIConfig) *guard {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &guard{cfg: cfg, keys: m}
}

func (g *guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		if g.cfg.Auth.Enabled {
			if !g.checkAuth(r) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}

		if g.cfg.RateLimit.RPS > 0 {
			if !g.getLimiter(g.clientKey(r)).Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (g *guard) checkAuth(r *http.Request) bool {
	header := strings.TrimSpace(g.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}

	apiKey := strings.TrimSpace(r.Header.Get(header))
	if apiKey == "" {
		return false
	}
	_, ok := g.keys[apiKey]
	return ok
}

func (g *guard) clientKey(r *http.Request) string {
	header := strings.TrimSpace(g.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}
	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (g *guard) getLimiter(key string) *rate.Limiter {
	if v, ok := g.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := g.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(g.cfg.RateLimit.RPS), burst)
	actual, loaded := g.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
