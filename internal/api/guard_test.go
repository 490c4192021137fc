package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tasksync/internal/config"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuard_AuthDisabledPassesThrough(t *testing.T) {
	g := newGuard(&config.APIConfig{})
	srv := httptest.NewServer(g.Wrap(okHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tasks")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuard_AuthEnabled(t *testing.T) {
	cfg := &config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "secret", Name: "cli"}},
		},
	}
	g := newGuard(cfg)
	srv := httptest.NewServer(g.Wrap(okHandler()))
	defer srv.Close()

	t.Run("missing key", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/tasks")
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tasks", nil)
		req.Header.Set("x-api-key", "wrong")
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tasks", nil)
		req.Header.Set("x-api-key", "secret")
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health is always open", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/health")
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestGuard_RateLimit(t *testing.T) {
	cfg := &config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	g := newGuard(cfg)
	srv := httptest.NewServer(g.Wrap(okHandler()))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tasks", nil)
	req.Header.Set("x-api-key", "client-a")

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst of 2 must not survive 5 rapid requests")
}
