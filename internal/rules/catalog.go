// Package rules implements the Rule Catalog (§4.A): loading rule files from
// one directory (subdirectories and dotfiles are skipped, not descended
// into), validating them, and exposing CRUD plus atomic
// reload/swap so Rule Engine selections always see one consistent snapshot
// (§5 "Rule Catalog swaps are atomic with respect to Rule Engine selections").
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
)

// Catalog is an immutable, validated snapshot of every loaded Rule.
type Catalog struct {
	byID     map[string]*models.Rule
	ordered  []*models.Rule // stable order, by id, for list()
	fallback *models.Rule
}

func (c *Catalog) Get(id string) (*models.Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

func (c *Catalog) List() []*models.Rule {
	out := make([]*models.Rule, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c *Catalog) Fallback() *models.Rule {
	return c.fallback
}

// Store holds the live Catalog pointer and knows how to rebuild it from
// disk. Reload is atomic: a new Catalog is validated off to the side, then
// swapped in with atomic.Pointer — readers never observe a partially built
// catalog (§4.A, §9 "build the new catalog off to the side... then
// atomically swap the shared reference").
type Store struct {
	dir     string
	current atomic.Pointer[Catalog]
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Load performs the initial catalog build at startup.
func (s *Store) Load() error {
	cat, err := s.buildFromDisk()
	if err != nil {
		return err
	}
	s.current.Store(cat)
	return nil
}

// Reload rebuilds the catalog from disk and swaps it in only if the rebuild
// succeeds validation; a failed reload leaves the prior catalog live.
func (s *Store) Reload() error {
	cat, err := s.buildFromDisk()
	if err != nil {
		metrics.RuleCatalogReloadsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("reload rejected, keeping previous catalog: %w", err)
	}
	s.current.Store(cat)
	metrics.RuleCatalogReloadsTotal.WithLabelValues("applied").Inc()
	return nil
}

// Snapshot returns the currently live Catalog. Callers hold this reference
// for the duration of a selection; it never mutates underneath them.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load()
}

// Watch starts an fsnotify watch on the rules directory and reloads on any
// write/create/remove/rename, debounced is unnecessary at this scale — each
// event simply triggers a rebuild-and-validate-or-keep cycle.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch rules dir %s: %w", s.dir, err)
	}
	s.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("rule catalog hot reload failed", "error", err)
				} else {
					s.logger.Info("rule catalog hot reloaded", "trigger", ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("rules watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *Store) Dir() string {
	return s.dir
}

// buildFromDisk reads every rule file under dir, parses it, and validates
// the resulting set before returning a Catalog. It never mutates s.current.
func (s *Store) buildFromDisk() (*Catalog, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir %s: %w", s.dir, err)
	}

	byID := make(map[string]*models.Rule)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue // subdirectories and dotfiles are skipped
		}
		path := filepath.Join(s.dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule file %s: %w", path, err)
		}
		rule, err := ParseRuleFile(raw)
		if err != nil {
			return nil, fmt.Errorf("parse rule file %s: %w", path, err)
		}
		if _, dup := byID[rule.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q in %s", rule.ID, path)
		}
		byID[rule.ID] = rule
	}

	if err := validateCatalog(byID); err != nil {
		return nil, err
	}

	ordered := make([]*models.Rule, 0, len(byID))
	var fallback *models.Rule
	for _, r := range byID {
		ordered = append(ordered, r)
		if r.IsFallback() {
			if fallback == nil || r.Triggers.Priority < fallback.Triggers.Priority {
				fallback = r
			}
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	if fallback == nil {
		return nil, fmt.Errorf("no fallback rule defined (a rule with empty keywords is required)")
	}

	return &Catalog{byID: byID, ordered: ordered, fallback: fallback}, nil
}

// validateCatalog checks the load-time invariants from §4.A/§3: ids unique
// (guaranteed by the map), dependency graph acyclic, every declared regex
// compiles.
func validateCatalog(byID map[string]*models.Rule) error {
	for id, r := range byID {
		for _, dep := range r.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("rule %s depends on unknown rule %s", id, dep)
			}
		}
		for _, p := range r.PreExtract {
			if _, err := regexp.Compile(p.Regex); err != nil {
				return fmt.Errorf("rule %s pre_extract pattern %q does not compile: %w", id, p.Name, err)
			}
		}
	}
	return detectCatalogCycle(byID)
}

func detectCatalogCycle(byID map[string]*models.Rule) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				return fmt.Errorf("dependency cycle detected: %s -> %s", strings.Join(path, " -> "), dep)
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
