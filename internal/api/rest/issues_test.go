package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

func TestListIssues_FiltersByCreatedBy(t *testing.T) {
	repo := newFakeRepo()
	repo.issues["i1"] = &models.Issue{RecordID: "i1", CreatedBy: "alice"}
	repo.issues["i2"] = &models.Issue{RecordID: "i2", CreatedBy: "bob"}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/issues?created_by=alice", nil)
	w := httptest.NewRecorder()
	h.ListIssues(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "i1", out[0].RecordID)
}

func TestListIssues_ExcludesSoftDeletedByDefault(t *testing.T) {
	repo := newFakeRepo()
	repo.issues["i1"] = &models.Issue{RecordID: "i1", SoftDeleted: true}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/issues", nil)
	w := httptest.NewRecorder()
	h.ListIssues(w, req)

	var out []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out, 0)
}

func TestGetIssue_NotFound(t *testing.T) {
	h := newTestHandler(t, newFakeRepo())
	req := httptest.NewRequest(http.MethodGet, "/issues/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	w := httptest.NewRecorder()
	h.GetIssue(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetIssue_InvalidID(t *testing.T) {
	h := newTestHandler(t, newFakeRepo())
	req := httptest.NewRequest(http.MethodGet, "/issues/bad%20id", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "bad id"})
	w := httptest.NewRecorder()
	h.GetIssue(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteIssue_SoftDeletes(t *testing.T) {
	repo := newFakeRepo()
	repo.issues["i1"] = &models.Issue{RecordID: "i1"}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodDelete, "/issues/i1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "i1"})
	w := httptest.NewRecorder()
	h.DeleteIssue(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, repo.issues["i1"].SoftDeleted)
}

func TestEscalateIssue_NoopWithoutWebhook(t *testing.T) {
	repo := newFakeRepo()
	repo.issues["i1"] = &models.Issue{RecordID: "i1"}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/issues/i1/escalate", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "i1"})
	w := httptest.NewRecorder()
	h.EscalateIssue(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "noop")
}

func TestEscalateIssue_SendsWhenWebhookRegistered(t *testing.T) {
	repo := newFakeRepo()
	repo.issues["i1"] = &models.Issue{RecordID: "i1", WebhookURL: "https://example.invalid/hook"}
	h := newTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/issues/i1/escalate", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "i1"})
	w := httptest.NewRecorder()
	h.EscalateIssue(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sent")
}

func TestEscalateIssue_NotFound(t *testing.T) {
	h := newTestHandler(t, newFakeRepo())
	req := httptest.NewRequest(http.MethodPost, "/issues/missing/escalate", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	w := httptest.NewRecorder()
	h.EscalateIssue(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
