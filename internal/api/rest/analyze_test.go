package rest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

func newMultipartAnalyzeRequest(t *testing.T, fields map[string]string, logFile string, logBody []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if logFile != "" {
		part, err := w.CreateFormFile("log_files", logFile)
		require.NoError(t, err)
		_, err = part.Write(logBody)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAnalyze_AdmitsTaskForNewIssue(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo)

	req := newMultipartAnalyzeRequest(t, map[string]string{
		"description": "app crashes on launch",
		"priority":    "H",
		"username":    "alice",
	}, "device.log", []byte("2026-01-01 boot ok\n"))
	w := httptest.NewRecorder()
	h.Analyze(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.TaskQueued, resp.Status)
	assert.NotEmpty(t, resp.TaskID)
	assert.Len(t, repo.issues, 1)
	assert.Len(t, repo.tasks, 1)
}

func TestAnalyze_RejectsMissingDescription(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo)

	req := newMultipartAnalyzeRequest(t, map[string]string{"priority": "L"}, "", nil)
	w := httptest.NewRecorder()
	h.Analyze(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, repo.issues, 0)
}

func TestAnalyze_RejectsInvalidPriority(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo)

	req := newMultipartAnalyzeRequest(t, map[string]string{
		"description": "something broke",
		"priority":    "urgent",
	}, "", nil)
	w := httptest.NewRecorder()
	h.Analyze(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAnalysis_ReturnsTaskSnapshotBeforeCompletion(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo)

	repo.tasks["task-1"] = &models.Task{TaskID: "task-1", IssueID: "issue-1", State: models.TaskAnalyzing, ProgressPercent: 40}

	req := httptest.NewRequest(http.MethodGet, "/analyze/task-1", nil)
	req = mux.SetURLVars(req, map[string]string{"task_id": "task-1"})
	w := httptest.NewRecorder()
	h.GetAnalysis(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, models.TaskAnalyzing, task.State)
}

func TestGetAnalysis_ReturnsResultOnceDone(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo)

	repo.tasks["task-2"] = &models.Task{TaskID: "task-2", IssueID: "issue-2", State: models.TaskDone}
	repo.results["task-2"] = &models.AnalysisResult{TaskID: "task-2", IssueID: "issue-2", ProblemType: "bluetooth_drop"}

	req := httptest.NewRequest(http.MethodGet, "/analyze/task-2", nil)
	req = mux.SetURLVars(req, map[string]string{"task_id": "task-2"})
	w := httptest.NewRecorder()
	h.GetAnalysis(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "bluetooth_drop", result.ProblemType)
}

func TestGetAnalysis_InvalidTaskID(t *testing.T) {
	h := newTestHandler(t, newFakeRepo())
	req := httptest.NewRequest(http.MethodGet, "/analyze/bad%20id", nil)
	req = mux.SetURLVars(req, map[string]string{"task_id": "bad id"})
	w := httptest.NewRecorder()
	h.GetAnalysis(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
