package taskqueue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// fakeTaskRepo is a minimal in-memory repository.TaskRepository.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*models.Task{}}
}

func (f *fakeTaskRepo) CreateTaskIfAbsent(_ context.Context, task *models.Task) (*models.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.IssueID == task.IssueID && !t.State.IsTerminal() {
			return t, false, nil
		}
	}
	f.tasks[task.TaskID] = task
	return task, true, nil
}
func (f *fakeTaskRepo) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID], nil
}
func (f *fakeTaskRepo) UpdateTaskProgress(context.Context, string, models.TaskState, int, string) error {
	return nil
}
func (f *fakeTaskRepo) FailTask(_ context.Context, taskID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[taskID]; ok {
		t.State = models.TaskFailed
		t.Error = reason
	}
	return nil
}
func (f *fakeTaskRepo) ListTasks(context.Context, models.TaskFilter) ([]*models.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepo) ListStaleNonTerminal(_ context.Context, cutoff time.Time) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if !t.State.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeTaskRepo) ListFreshNonTerminal(_ context.Context, cutoff time.Time) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if !t.State.IsTerminal() && !t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeTaskRepo) LatestDoneTaskForIssue(context.Context, string) (*models.Task, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blockingExecutor struct {
	started chan string
	release chan struct{}
}

func (b *blockingExecutor) Execute(ctx context.Context, taskID, issueID string) error {
	b.started <- taskID
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestSubmit_AdmitsOnlyOneNonTerminalTaskPerIssue(t *testing.T) {
	repo := newFakeTaskRepo()
	sched := New(repo, noopExec{}, discardLogger(), 1, 10)

	task1, created1, err := sched.Submit(context.Background(), "issue-1", "", "alice", models.PriorityLow)
	require.NoError(t, err)
	assert.True(t, created1)

	task2, created2, err := sched.Submit(context.Background(), "issue-1", "", "alice", models.PriorityLow)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, task1.TaskID, task2.TaskID)
}

func TestSubmit_AllowsNewTaskAfterPriorBecomesTerminal(t *testing.T) {
	repo := newFakeTaskRepo()
	sched := New(repo, noopExec{}, discardLogger(), 1, 10)

	task1, _, err := sched.Submit(context.Background(), "issue-1", "", "alice", models.PriorityLow)
	require.NoError(t, err)
	repo.tasks[task1.TaskID].State = models.TaskDone

	_, created2, err := sched.Submit(context.Background(), "issue-1", "", "alice", models.PriorityLow)
	require.NoError(t, err)
	assert.True(t, created2)
}

type noopExec struct{}

func (noopExec) Execute(context.Context, string, string) error { return nil }

func TestCancel_ReturnsFalseForUnknownTask(t *testing.T) {
	sched := New(newFakeTaskRepo(), noopExec{}, discardLogger(), 1, 10)
	assert.False(t, sched.Cancel("never-submitted"))
}

func TestCancel_StopsARunningTasksContext(t *testing.T) {
	repo := newFakeTaskRepo()
	exec := &blockingExecutor{started: make(chan string, 1), release: make(chan struct{})}
	sched := New(repo, exec, discardLogger(), 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Start(ctx)

	task, _, err := sched.Submit(ctx, "issue-1", "", "alice", models.PriorityLow)
	require.NoError(t, err)

	select {
	case <-exec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never started")
	}

	assert.True(t, sched.Cancel(task.TaskID))
}

func TestRecover_FailsStaleAndRequeuesFresh(t *testing.T) {
	repo := newFakeTaskRepo()
	now := time.Now()
	repo.tasks["stale"] = &models.Task{TaskID: "stale", IssueID: "issue-stale", State: models.TaskAnalyzing, UpdatedAt: now.Add(-time.Hour)}
	repo.tasks["fresh"] = &models.Task{TaskID: "fresh", IssueID: "issue-fresh", State: models.TaskAnalyzing, UpdatedAt: now, Priority: models.PriorityLow}

	sched := New(repo, noopExec{}, discardLogger(), 1, 10)
	require.NoError(t, sched.Recover(context.Background(), 10*time.Minute))

	assert.Equal(t, models.TaskFailed, repo.tasks["stale"].State)
	assert.Equal(t, models.TaskAnalyzing, repo.tasks["fresh"].State)
}
