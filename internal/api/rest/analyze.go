package rest

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
)

// analyzeResponse is returned by POST /analyze: task_id plus the admitted
// task's initial status (§6).
type analyzeResponse struct {
	TaskID string           `json:"task_id"`
	Status models.TaskState `json:"status"`
}

// Analyze handles POST /analyze (multipart): normalizes the submitted
// fields and files into an Issue, then admits a Task for it in one call
// (§4.C/§4.G; §6 field list).
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid multipart body: "+err.Error())
		return
	}

	description := r.FormValue("description")
	if !validate.Description(description) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "description is required")
		return
	}

	priority := models.IssuePriority(r.FormValue("priority"))
	if !validate.Priority(string(priority)) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "priority must be H or L")
		return
	}
	if priority == "" {
		priority = models.PriorityLow
	}

	issue := &models.Issue{
		Description:  description,
		Priority:     priority,
		DeviceSerial: r.FormValue("device_sn"),
		WebhookURL:   r.FormValue("webhook_url"),
		Source:       models.SourceAPI,
		CreatedBy:    r.FormValue("username"),
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["log_files"] {
			f, err := fh.Open()
			if err != nil {
				respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "open log_files entry: "+err.Error())
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "read log_files entry: "+err.Error())
				return
			}
			issue.LogArtifacts = append(issue.LogArtifacts, models.LogArtifact{
				Name:    fh.Filename,
				Payload: data,
				Size:    int64(len(data)),
			})
		}
	}

	if err := h.Repo.CreateIssue(r.Context(), issue); err != nil {
		respondError(w, r, http.StatusInternalServerError, string(errkind.KindInternal), "create issue: "+err.Error())
		return
	}

	task, _, err := h.Scheduler.Submit(r.Context(), issue.RecordID, r.FormValue("agent_type"), issue.CreatedBy, priority)
	if err != nil {
		respondErrKind(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, analyzeResponse{TaskID: task.TaskID, Status: task.State})
}

// GetAnalysis handles GET /analyze/{task_id}: the AnalysisResult if the
// task reached `done`, otherwise its current progress snapshot (§6).
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
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

	if task.State == models.TaskDone {
		result, err := h.Repo.GetResult(r.Context(), taskID)
		if err == nil {
			respondJSON(w, http.StatusOK, result)
			return
		}
	}
	respondJSON(w, http.StatusOK, task)
}
