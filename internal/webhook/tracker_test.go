package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/taskqueue"
)

// fakeRepo is a minimal in-memory repository.Repository used only to
// exercise the webhook's admission path, not persistence semantics.
type fakeRepo struct {
	mu     sync.Mutex
	issues map[string]*models.Issue
	tasks  map[string]*models.Task
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{issues: map[string]*models.Issue{}, tasks: map[string]*models.Task{}}
}

func (f *fakeRepo) CreateIssue(_ context.Context, issue *models.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.RecordID == "" {
		issue.RecordID = "issue-" + issue.CreatedBy
	}
	f.issues[issue.RecordID] = issue
	return nil
}
func (f *fakeRepo) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[id], nil
}
func (f *fakeRepo) ListIssues(_ context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Issue
	for _, issue := range f.issues {
		if filter.CreatedBy != "" && issue.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}
func (f *fakeRepo) SoftDeleteIssue(_ context.Context, id string) error { return nil }

func (f *fakeRepo) CreateTaskIfAbsent(_ context.Context, task *models.Task) (*models.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.IssueID == task.IssueID && !t.State.IsTerminal() {
			return t, false, nil
		}
	}
	task.TaskID = "task-" + task.IssueID
	f.tasks[task.TaskID] = task
	return task, true, nil
}
func (f *fakeRepo) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID], nil
}
func (f *fakeRepo) UpdateTaskProgress(context.Context, string, models.TaskState, int, string) error { return nil }
func (f *fakeRepo) FailTask(context.Context, string, string) error                                  { return nil }
func (f *fakeRepo) ListTasks(context.Context, models.TaskFilter) ([]*models.Task, error)            { return nil, nil }
func (f *fakeRepo) ListStaleNonTerminal(context.Context, time.Time) ([]*models.Task, error)         { return nil, nil }
func (f *fakeRepo) ListFreshNonTerminal(context.Context, time.Time) ([]*models.Task, error)         { return nil, nil }
func (f *fakeRepo) LatestDoneTaskForIssue(context.Context, string) (*models.Task, error)             { return nil, nil }

func (f *fakeRepo) CreateResult(context.Context, *models.AnalysisResult) error               { return nil }
func (f *fakeRepo) GetResult(context.Context, string) (*models.AnalysisResult, error) { return nil, nil }
func (f *fakeRepo) RunMigrations(string) error                                               { return nil }
func (f *fakeRepo) Ping(context.Context) error                                               { return nil }
func (f *fakeRepo) Close() error                                                             { return nil }

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, string, string) error { return nil }

func newTestHandler(repo *fakeRepo, secret string) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := taskqueue.New(repo, noopExecutor{}, logger, 1, 10)
	return NewHandler(repo, sched, secret, "@triage-bot", logger)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestServeTrackerWebhook_IgnoresWithoutMention(t *testing.T) {
	h := newTestHandler(newFakeRepo(), "")
	body, _ := json.Marshal(TrackerEvent{Project: "APP", TicketID: "42", CommentBody: "just a regular comment"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	h.ServeTrackerWebhook(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestServeTrackerWebhook_CreatesIssueAndTaskOnMention(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo, "")
	body, _ := json.Marshal(TrackerEvent{
		Project: "APP", TicketID: "42",
		CommentBody: "@triage-bot please take a look", Author: "alice",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	h.ServeTrackerWebhook(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, repo.issues, 1)
	assert.Len(t, repo.tasks, 1)
}

func TestServeTrackerWebhook_DedupesRepeatedMentions(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo, "")
	ev := TrackerEvent{Project: "APP", TicketID: "42", CommentBody: "@triage-bot again", Author: "alice"}
	body, _ := json.Marshal(ev)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(string(body)))
		w := httptest.NewRecorder()
		h.ServeTrackerWebhook(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	assert.Len(t, repo.issues, 1)
}

func TestServeTrackerWebhook_RejectsBadSignature(t *testing.T) {
	h := newTestHandler(newFakeRepo(), "s3cret")
	body, _ := json.Marshal(TrackerEvent{Project: "APP", TicketID: "42", CommentBody: "@triage-bot hi"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(string(body)))
	req.Header.Set(SignatureHeader, "deadbeef")
	w := httptest.NewRecorder()
	h.ServeTrackerWebhook(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServeTrackerWebhook_AcceptsValidSignature(t *testing.T) {
	h := newTestHandler(newFakeRepo(), "s3cret")
	body, _ := json.Marshal(TrackerEvent{Project: "APP", TicketID: "42", CommentBody: "@triage-bot hi"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/tracker", strings.NewReader(string(body)))
	req.Header.Set(SignatureHeader, sign("s3cret", body))
	w := httptest.NewRecorder()
	h.ServeTrackerWebhook(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}
