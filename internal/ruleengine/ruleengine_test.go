package ruleengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/rules"
)

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func loadCatalog(t *testing.T, dir string) *rules.Catalog {
	t.Helper()
	store := rules.NewStore(dir, nil)
	require.NoError(t, store.Load())
	return store.Snapshot()
}

const fallbackRule = `---
id: fallback
name: Unclassified
version: 1
triggers:
  keywords: []
  priority: 0
---
No rule matched.
`

func TestSelect_ReturnsFallbackWhenNothingMatches(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "fallback.rule", fallbackRule)
	cat := loadCatalog(t, dir)

	engine := New(nil)
	selected := engine.Select(cat, "totally unrelated description")
	require.Len(t, selected, 1)
	require.Equal(t, "fallback", selected[0].ID)
}

func TestSelect_PicksHigherPriorityOnTie(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "fallback.rule", fallbackRule)
	writeRule(t, dir, "low.rule", `---
id: low-prio
name: Low priority match
version: 1
triggers:
  keywords: ["crash"]
  priority: 1
---
low
`)
	writeRule(t, dir, "high.rule", `---
id: high-prio
name: High priority match
version: 1
triggers:
  keywords: ["crash"]
  priority: 10
---
high
`)
	cat := loadCatalog(t, dir)

	engine := New(nil)
	selected := engine.Select(cat, "app crash on startup")
	require.NotEmpty(t, selected)
	require.Equal(t, "high-prio", selected[len(selected)-1].ID)
}

func TestSelect_OrdersDependenciesBeforePrimary(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "fallback.rule", fallbackRule)
	writeRule(t, dir, "base.rule", `---
id: base
name: Base context
version: 1
triggers:
  keywords: ["never-matches-directly"]
  priority: 1
---
base context
`)
	writeRule(t, dir, "primary.rule", `---
id: primary
name: Primary decision
version: 1
triggers:
  keywords: ["bluetooth"]
  priority: 5
depends_on: ["base"]
---
primary decision
`)
	cat := loadCatalog(t, dir)

	engine := New(nil)
	selected := engine.Select(cat, "bluetooth keeps disconnecting")
	require.Len(t, selected, 2)
	require.Equal(t, "base", selected[0].ID)
	require.Equal(t, "primary", selected[1].ID)
}
