// Package rest implements the HTTP surface (§6) over the domain
// components: issue/task CRUD, analysis submission, progress/result
// retrieval, rule catalog management, and health reporting.
package rest

import (
	"log/slog"

	"github.com/kubilitics/kubilitics-backend/internal/agent"
	"github.com/kubilitics/kubilitics-backend/internal/notify"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
	"github.com/kubilitics/kubilitics-backend/internal/repository"
	"github.com/kubilitics/kubilitics-backend/internal/rules"
	"github.com/kubilitics/kubilitics-backend/internal/taskqueue"
)

// Handler holds every capability the HTTP surface needs. Routes are thin:
// validate, delegate to a component, shape the response.
type Handler struct {
	Repo        repository.Repository
	Scheduler   *taskqueue.Scheduler
	Catalog     *rules.Store
	ProgressBus *progress.Bus
	AgentRouter *agent.Router
	Notifier    *notify.Notifier
	Logger      *slog.Logger

	MaxUploadBytes int64
}

func NewHandler(
	repo repository.Repository,
	scheduler *taskqueue.Scheduler,
	catalog *rules.Store,
	progressBus *progress.Bus,
	agentRouter *agent.Router,
	notifier *notify.Notifier,
	logger *slog.Logger,
	maxUploadBytes int64,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 * 1024 * 1024
	}
	return &Handler{
		Repo:           repo,
		Scheduler:      scheduler,
		Catalog:        catalog,
		ProgressBus:    progressBus,
		AgentRouter:    agentRouter,
		Notifier:       notifier,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
	}
}
