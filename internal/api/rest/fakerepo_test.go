package rest

import (
	"context"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// fakeRepo is a minimal in-memory repository.Repository used to exercise
// the HTTP handlers without a real database.
type fakeRepo struct {
	mu      sync.Mutex
	issues  map[string]*models.Issue
	tasks   map[string]*models.Task
	results map[string]*models.AnalysisResult
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		issues:  map[string]*models.Issue{},
		tasks:   map[string]*models.Task{},
		results: map[string]*models.AnalysisResult{},
	}
}

func (f *fakeRepo) CreateIssue(_ context.Context, issue *models.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.RecordID == "" {
		issue.RecordID = "issue-" + time.Now().Format("150405.000000000")
	}
	f.issues[issue.RecordID] = issue
	return nil
}

func (f *fakeRepo) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, errNotFound
	}
	return issue, nil
}

func (f *fakeRepo) ListIssues(_ context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Issue
	for _, issue := range f.issues {
		if !filter.IncludeDeleted && issue.SoftDeleted {
			continue
		}
		if filter.CreatedBy != "" && issue.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Platform != "" && issue.Platform != filter.Platform {
			continue
		}
		if filter.Category != "" && issue.Category != filter.Category {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (f *fakeRepo) SoftDeleteIssue(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return errNotFound
	}
	issue.SoftDeleted = true
	return nil
}

func (f *fakeRepo) CreateTaskIfAbsent(_ context.Context, task *models.Task) (*models.Task, bool, error) {
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

func (f *fakeRepo) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, errNotFound
	}
	return task, nil
}

func (f *fakeRepo) UpdateTaskProgress(_ context.Context, taskID string, state models.TaskState, percent int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return errNotFound
	}
	task.State = state
	task.ProgressPercent = percent
	task.Message = message
	task.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) FailTask(_ context.Context, taskID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return errNotFound
	}
	task.State = models.TaskFailed
	task.Error = reason
	return nil
}

func (f *fakeRepo) ListTasks(_ context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if filter.State != "" && t.State != filter.State {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) ListStaleNonTerminal(context.Context, time.Time) ([]*models.Task, error)  { return nil, nil }
func (f *fakeRepo) ListFreshNonTerminal(context.Context, time.Time) ([]*models.Task, error)  { return nil, nil }

func (f *fakeRepo) LatestDoneTaskForIssue(_ context.Context, issueID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Task
	for _, t := range f.tasks {
		if t.IssueID != issueID || t.State != models.TaskDone {
			continue
		}
		if latest == nil || t.UpdatedAt.After(latest.UpdatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, errNotFound
	}
	return latest, nil
}

func (f *fakeRepo) CreateResult(_ context.Context, result *models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.TaskID] = result
	return nil
}

func (f *fakeRepo) GetResult(_ context.Context, taskID string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[taskID]
	if !ok {
		return nil, errNotFound
	}
	return result, nil
}

func (f *fakeRepo) RunMigrations(string) error { return nil }

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

func (f *fakeRepo) Close() error { return nil }

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }
