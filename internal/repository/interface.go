package repository

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// IssueRepository defines issue data access methods, including the pagination
// and filtering described in §4.J.
type IssueRepository interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, recordID string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error)
	SoftDeleteIssue(ctx context.Context, recordID string) error
}

// TaskRepository defines task data access methods, including the
// admission-control conditional-upsert enforcing at-most-one non-terminal
// Task per issue_id (§4.G).
type TaskRepository interface {
	// CreateTaskIfAbsent inserts task only if no non-terminal task exists for
	// task.IssueID; otherwise it returns the existing non-terminal task and ok=false.
	CreateTaskIfAbsent(ctx context.Context, task *models.Task) (existing *models.Task, ok bool, err error)
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	UpdateTaskProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error
	FailTask(ctx context.Context, taskID string, errMsg string) error
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	ListStaleNonTerminal(ctx context.Context, before time.Time) ([]*models.Task, error)
	ListFreshNonTerminal(ctx context.Context, before time.Time) ([]*models.Task, error)
	LatestDoneTaskForIssue(ctx context.Context, issueID string) (*models.Task, error)
}

// ResultRepository defines AnalysisResult storage, keyed by task_id (§4.J).
type ResultRepository interface {
	CreateResult(ctx context.Context, result *models.AnalysisResult) error
	GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error)
}

// Repository aggregates all persistence capabilities. It is the single
// narrow capability every other component depends on for durable state — no
// component touches the underlying database directly (§9).
type Repository interface {
	IssueRepository
	TaskRepository
	ResultRepository
	RunMigrations(sql string) error
	Ping(ctx context.Context) error
	Close() error
}
