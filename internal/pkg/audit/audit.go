// Package audit provides audit logging for mutating operations: cancel,
// escalate, delete, and rule-catalog edits.
package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// Event represents one audit event (structured for compliance and retention).
type Event struct {
	Time      string `json:"time"` // ISO8601
	Action    string `json:"action"` // "cancel" | "delete" | "escalate" | "rule_create" | "rule_update" | "rule_delete"
	RequestID string `json:"request_id,omitempty"`
	IssueID   string `json:"issue_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Outcome   string `json:"outcome"` // "success" | "failure"
	Message   string `json:"message,omitempty"`
}

var auditLog = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Log records one audit event. Call from handlers after the mutation
// completes (or fails).
func Log(requestID string, e Event) {
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	e.RequestID = requestID
	auditLog.Info("audit", "event", mustMarshal(e))
}

func mustMarshal(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
