package agent

import (
	"context"
	"fmt"
)

// Router picks which Runner handles a given invocation, honoring a
// caller-requested provider before falling back to the configured order
// (§4.E provider fallback: "Task's requested_agent -> global default order
// -> first enabled+available provider").
type Router struct {
	providers []Runner
}

func NewRouter(providers ...Runner) *Router {
	return &Router{providers: providers}
}

// Resolve returns the runner to use: the requested one if named and
// available, else the first available provider in configured order.
func (r *Router) Resolve(ctx context.Context, requested string) (Runner, error) {
	if requested != "" {
		for _, p := range r.providers {
			if p.Name() == requested && p.Available(ctx) {
				return p, nil
			}
		}
	}
	for _, p := range r.providers {
		if p.Available(ctx) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured agent provider is available")
}

// Providers returns the configured providers in fallback order, for
// /health/agents readiness reporting.
func (r *Router) Providers() []Runner {
	return r.providers
}
