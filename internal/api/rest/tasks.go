package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
)

type createTaskRequest struct {
	IssueID   string `json:"issue_id"`
	AgentType string `json:"agent_type,omitempty"`
	Username  string `json:"username,omitempty"`
}

// CreateTask handles POST /tasks: admits a Task for an already-registered
// Issue (§6, §4.G admission control).
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid JSON body")
		return
	}
	if !validate.IssueID(req.IssueID) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "issue_id is required")
		return
	}

	issue, err := h.Repo.GetIssue(r.Context(), req.IssueID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "issue not found")
		return
	}

	task, created, err := h.Scheduler.Submit(r.Context(), issue.RecordID, req.AgentType, req.Username, issue.Priority)
	if err != nil {
		respondErrKind(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	respondJSON(w, status, task)
}

// GetTask handles GET /tasks/{task_id}: current snapshot.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	if !validate.TaskID(taskID) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid task_id")
		return
	}
	task, err := h.Repo.GetTask(r.Context(), taskID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "task not found")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// GetTaskResult handles GET /tasks/{task_id}/result: the full
// AnalysisResult, or 404 if the task hasn't reached `done` yet (§6,
// Testable Property 9 — no result exists for a task that never finished).
func (h *Handler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	if !validate.TaskID(taskID) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid task_id")
		return
	}
	result, err := h.Repo.GetResult(r.Context(), taskID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "result not found")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CancelTask handles POST /tasks/{task_id}/cancel: idempotent cooperative
// cancellation (§6, Testable Property 8 — cancelled within a bounded
// window regardless of subprocess behavior).
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	if !validate.TaskID(taskID) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid task_id")
		return
	}
	task, err := h.Repo.GetTask(r.Context(), taskID)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "task not found")
		return
	}
	if task.State.IsTerminal() {
		respondJSON(w, http.StatusOK, map[string]string{"status": "noop"})
		return
	}
	if h.Scheduler.Cancel(taskID) {
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "noop"})
}

// ListTasks handles GET /tasks?state=&limit=&offset= (supplementary to §4.J
// listing; not explicitly named in §6 but required to browse the queue the
// way /issues is browsable).
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := models.TaskFilter{
		State:  models.TaskState(r.URL.Query().Get("state")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	tasks, err := h.Repo.ListTasks(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, string(errkind.KindInternal), "list tasks: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}
