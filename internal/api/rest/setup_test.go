package rest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/agent"
	"github.com/kubilitics/kubilitics-backend/internal/notify"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
	"github.com/kubilitics/kubilitics-backend/internal/rules"
	"github.com/kubilitics/kubilitics-backend/internal/taskqueue"
)

const fallbackRuleFile = `---
id: fallback
name: Unclassified
version: 1
triggers:
  keywords: []
  priority: 999
---
No specific rule matched.
`

// noopExecutor never reaches the pipeline; these tests exercise the HTTP
// surface and admission control, not analysis execution.
type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, string, string) error { return nil }

// fakeRunner is a stub agent.Runner for GET /health/agents.
type fakeRunner struct {
	name      string
	available bool
}

func (f *fakeRunner) Name() string                        { return f.name }
func (f *fakeRunner) Available(context.Context) bool      { return f.available }
func (f *fakeRunner) Run(context.Context, string, string, agent.Options) (string, agent.Metadata, error) {
	return "", agent.Metadata{}, nil
}

// newTestCatalog writes a minimal valid rule set (just the required
// fallback rule) to a temp directory and loads it.
func newTestCatalog(t *testing.T) *rules.Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fallback.rule"), []byte(fallbackRuleFile), 0o644))
	store := rules.NewStore(dir, discardLogger())
	require.NoError(t, store.Load())
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler wires a Handler against fakeRepo and an in-process
// scheduler/catalog/notifier, matching cmd/server/main.go's composition
// order but with every external dependency stubbed.
func newTestHandler(t *testing.T, repo *fakeRepo, runners ...agent.Runner) *Handler {
	t.Helper()
	logger := discardLogger()
	sched := taskqueue.New(repo, noopExecutor{}, logger, 2, 10)
	catalog := newTestCatalog(t)
	router := agent.NewRouter(runners...)
	notifier := notify.NewNotifier(2*time.Second, logger)
	bus := progress.NewBus()
	return NewHandler(repo, sched, catalog, bus, router, notifier, logger, 0)
}
