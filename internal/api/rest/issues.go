package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
)

// ListIssues handles GET /issues, paginated with the filters in §4.J.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.IssueFilter{
		CreatedBy: q.Get("created_by"),
		Platform:  q.Get("platform"),
		Category:  q.Get("category"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}
	issues, err := h.Repo.ListIssues(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, string(errkind.KindInternal), "list issues: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, issues)
}

// GetIssue handles GET /issues/{id}.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validate.IssueID(id) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid issue id")
		return
	}
	issue, err := h.Repo.GetIssue(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "issue not found")
		return
	}
	respondJSON(w, http.StatusOK, issue)
}

// DeleteIssue handles DELETE /issues/{id}: soft-delete (§6).
func (h *Handler) DeleteIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validate.IssueID(id) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid issue id")
		return
	}
	if err := h.Repo.SoftDeleteIssue(r.Context(), id); err != nil {
		respondError(w, r, http.StatusInternalServerError, string(errkind.KindInternal), "delete issue: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type escalateResponse struct {
	Status string `json:"status"`
}

// EscalateIssue handles POST /issues/{id}/escalate: a fire-and-forget
// notification to the issue's registered webhook, independent of whether an
// analysis ever ran or flagged needs_engineer itself (§6).
func (h *Handler) EscalateIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validate.IssueID(id) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid issue id")
		return
	}
	issue, err := h.Repo.GetIssue(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "issue not found")
		return
	}
	if issue.WebhookURL == "" {
		respondJSON(w, http.StatusOK, escalateResponse{Status: "noop"})
		return
	}

	var result *models.AnalysisResult
	if latest, err := h.Repo.LatestDoneTaskForIssue(r.Context(), id); err == nil && latest != nil {
		result, _ = h.Repo.GetResult(r.Context(), latest.TaskID)
	}
	h.Notifier.NotifyEscalation(issue.WebhookURL, issue.RecordID, result)
	respondJSON(w, http.StatusOK, escalateResponse{Status: "sent"})
}

// decodeJSON is a small shared helper for the rules CRUD handlers.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
