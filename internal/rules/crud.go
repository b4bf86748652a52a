package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".rule")
}

// Create writes a new rule file to disk and reloads the catalog.
func (s *Store) Create(rule *models.Rule) error {
	if _, ok := s.Snapshot().Get(rule.ID); ok {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	return s.writeAndReload(rule)
}

// Update applies a partial change (metadata and/or body may be changed
// independently, per §4.A) and reloads.
func (s *Store) Update(id string, mutate func(*models.Rule)) error {
	existing, ok := s.Snapshot().Get(id)
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	updated := *existing
	mutate(&updated)
	return s.writeAndReload(&updated)
}

// Delete removes a rule file from disk and reloads.
func (s *Store) Delete(id string) error {
	if _, ok := s.Snapshot().Get(id); !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	if err := os.Remove(s.pathFor(id)); err != nil {
		return fmt.Errorf("delete rule file %s: %w", id, err)
	}
	return s.Reload()
}

func (s *Store) writeAndReload(rule *models.Rule) error {
	data, err := RenderRuleFile(rule)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.pathFor(rule.ID), data, 0o644); err != nil {
		return fmt.Errorf("write rule file %s: %w", rule.ID, err)
	}
	return s.Reload()
}
