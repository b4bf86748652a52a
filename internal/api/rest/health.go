package rest

import (
	"context"
	"net/http"
	"time"
)

type healthAgent struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Health handles GET /health: process liveness plus database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Repo.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "database_unreachable",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthAgents handles GET /health/agents: readiness of every configured
// agent provider, used by operators to confirm a CLI binary is reachable
// before routing traffic (§4.E).
func (h *Handler) HealthAgents(w http.ResponseWriter, r *http.Request) {
	providers := h.AgentRouter.Providers()
	out := make([]healthAgent, 0, len(providers))
	anyAvailable := false
	for _, p := range providers {
		available := p.Available(r.Context())
		anyAvailable = anyAvailable || available
		out = append(out, healthAgent{Name: p.Name(), Available: available})
	}
	status := http.StatusOK
	if !anyAvailable {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{"providers": out})
}
