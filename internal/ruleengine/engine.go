// Package ruleengine implements the Rule Engine (§4.B): selecting the
// ordered set of applicable rules for a ticket description, with the
// primary rule's dependency chain resolved ahead of it.
package ruleengine

import (
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/rules"
)

// Engine selects rules from a Catalog snapshot.
type Engine struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Select runs the §4.B algorithm against one immutable Catalog snapshot,
// guaranteeing the caller observes exactly one catalog version for the
// whole selection (§5).
func (e *Engine) Select(cat *rules.Catalog, description string) []*models.Rule {
	lower := strings.ToLower(description)

	var matched []*models.Rule
	for _, r := range cat.List() {
		if !r.Enabled || r.IsFallback() {
			continue
		}
		if ruleMatches(r, lower) {
			matched = append(matched, r)
		}
	}

	if len(matched) == 0 {
		fb := cat.Fallback()
		if fb == nil {
			return nil // fallback totality (Testable Property 6) is guaranteed at load time
		}
		return []*models.Rule{fb}
	}

	// Tie-break: priority descending, then id ascending for stability.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Triggers.Priority != matched[j].Triggers.Priority {
			return matched[i].Triggers.Priority > matched[j].Triggers.Priority
		}
		return matched[i].ID < matched[j].ID
	})
	primary := matched[0]

	return e.orderWithDependencies(cat, matched, primary)
}

func ruleMatches(r *models.Rule, lowerDescription string) bool {
	for _, kw := range r.Triggers.Keywords {
		if strings.Contains(lowerDescription, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// orderWithDependencies computes the transitive closure of depends_on for
// every matched rule, topologically sorts so dependencies precede
// dependents, and places the primary rule last in its own dependency chain
// (§4.B step 4). Cyclic or missing dependencies are dropped with a warning
// rather than failing selection — they were already validated at load time,
// so encountering one here means the catalog changed underneath a stale
// selection; degrade gracefully instead of erroring (§4.B edge cases).
func (e *Engine) orderWithDependencies(cat *rules.Catalog, matched []*models.Rule, primary *models.Rule) []*models.Rule {
	g := newGraph()
	seen := make(map[string]*models.Rule)

	var visit func(id string)
	visit = func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		r, ok := cat.Get(id)
		if !ok || !r.Enabled {
			e.logger.Warn("rule engine: dropping unknown or disabled dependency", "rule_id", id)
			return
		}
		seen[id] = r
		g.addNode(id)
		for _, dep := range r.DependsOn {
			g.addEdge(id, dep)
			visit(dep)
		}
	}
	for _, r := range matched {
		visit(r.ID)
	}

	if hasCycle, path := detectCycle(g); hasCycle {
		e.logger.Warn("rule engine: dependency cycle detected at selection time, breaking at offending edge",
			"path", strings.Join(path, " -> "))
		if len(path) > 0 {
			// Drop the edge that closes the cycle and retry the sort.
			from, to := path[0], path[0]
			if len(path) > 1 {
				from, to = path[len(path)-2], path[len(path)-1]
			}
			g.adjacency[from] = slices.DeleteFunc(g.adjacency[from], func(dep string) bool { return dep == to })
		}
	}

	sortedIDs, ok := g.topologicalSort()
	if !ok {
		// Still cyclic after one drop attempt; fall back to matched-only order
		// rather than returning nothing (fallback totality must still hold
		// one level up — selection never returns empty for a non-empty match set).
		out := make([]*models.Rule, 0, len(matched))
		for _, r := range matched {
			out = append(out, r)
		}
		return out
	}

	// topologicalSort emits leaves (no remaining deps) first, which is
	// already "dependencies before dependents". Move the primary's own id
	// to the end of its chain so the agent reads context before the
	// decision rule it drove off of.
	out := make([]*models.Rule, 0, len(sortedIDs))
	var primaryRule *models.Rule
	for _, id := range sortedIDs {
		r, ok := seen[id]
		if !ok {
			continue
		}
		if id == primary.ID {
			primaryRule = r
			continue
		}
		out = append(out, r)
	}
	if primaryRule != nil {
		out = append(out, primaryRule)
	}
	return out
}
