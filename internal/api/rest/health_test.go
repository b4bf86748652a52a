package rest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_OKWhenDatabaseReachable(t *testing.T) {
	h := newTestHandler(t, newFakeRepo())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_UnavailableWhenPingFails(t *testing.T) {
	repo := newFakeRepo()
	repo.pingErr = errors.New("connection refused")
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database_unreachable")
}

func TestHealthAgents_OKWhenAnyProviderAvailable(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(),
		&fakeRunner{name: "claude_code", available: false},
		&fakeRunner{name: "codex", available: true},
	)
	req := httptest.NewRequest(http.MethodGet, "/health/agents", nil)
	w := httptest.NewRecorder()
	h.HealthAgents(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAgents_UnavailableWhenNoneAvailable(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(),
		&fakeRunner{name: "claude_code", available: false},
		&fakeRunner{name: "codex", available: false},
	)
	req := httptest.NewRequest(http.MethodGet, "/health/agents", nil)
	w := httptest.NewRecorder()
	h.HealthAgents(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
