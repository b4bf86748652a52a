package rest

import (
	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-backend/internal/api/websocket"
)

// SetupRoutes registers the full HTTP surface from §6 onto router. ws
// bridges GET /tasks/{task_id}/stream to the Progress Bus directly; every
// other route is handled by h.
func SetupRoutes(router *mux.Router, h *Handler, ws *websocket.Handler) {
	router.HandleFunc("/analyze", h.Analyze).Methods("POST")
	router.HandleFunc("/analyze/{task_id}", h.GetAnalysis).Methods("GET")

	router.HandleFunc("/tasks", h.CreateTask).Methods("POST")
	router.HandleFunc("/tasks", h.ListTasks).Methods("GET")
	router.HandleFunc("/tasks/{task_id}", h.GetTask).Methods("GET")
	router.HandleFunc("/tasks/{task_id}/stream", ws.ServeTaskStream).Methods("GET")
	router.HandleFunc("/tasks/{task_id}/result", h.GetTaskResult).Methods("GET")
	router.HandleFunc("/tasks/{task_id}/cancel", h.CancelTask).Methods("POST")

	router.HandleFunc("/issues", h.ListIssues).Methods("GET")
	router.HandleFunc("/issues/{id}", h.GetIssue).Methods("GET")
	router.HandleFunc("/issues/{id}", h.DeleteIssue).Methods("DELETE")
	router.HandleFunc("/issues/{id}/escalate", h.EscalateIssue).Methods("POST")

	router.HandleFunc("/rules", h.ListRules).Methods("GET")
	router.HandleFunc("/rules", h.CreateRule).Methods("POST")
	router.HandleFunc("/rules/reload", h.ReloadRules).Methods("POST")
	router.HandleFunc("/rules/{id}", h.GetRule).Methods("GET")
	router.HandleFunc("/rules/{id}", h.UpdateRule).Methods("PUT")
	router.HandleFunc("/rules/{id}", h.DeleteRule).Methods("DELETE")

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/health/agents", h.HealthAgents).Methods("GET")
}
