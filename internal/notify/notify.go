// Package notify implements outbound callback delivery (§6 "outbound
// callbacks"): firing the Issue's registered webhook on analysis completion
// and on escalation, fire-and-forget so delivery never blocks the pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// EventType distinguishes the two outbound callback shapes.
type EventType string

const (
	EventResult     EventType = "analysis.result"
	EventEscalation EventType = "analysis.escalation"
)

// Event is the payload POSTed to an Issue's webhook_url.
type Event struct {
	EventType  EventType              `json:"event_type"`
	IssueID    string                 `json:"issue_id"`
	OccurredAt string                 `json:"occurred_at"`
	Result     *models.AnalysisResult `json:"result,omitempty"`
}

// Notifier delivers Events to a single webhook URL per call. Delivery is
// asynchronous — every public method returns immediately.
type Notifier struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

func NewNotifier(timeout time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{client: &http.Client{Timeout: timeout}, logger: logger, timeout: timeout}
}

// NotifyResult fires the analysis-complete callback. A no-op if webhookURL
// is empty (the Issue carried no callback registration).
func (n *Notifier) NotifyResult(webhookURL, issueID string, result *models.AnalysisResult) {
	if webhookURL == "" {
		return
	}
	go n.deliver(webhookURL, Event{
		EventType:  EventResult,
		IssueID:    issueID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Result:     result,
	})
}

// NotifyEscalation fires the needs-engineer callback (§6).
func (n *Notifier) NotifyEscalation(webhookURL, issueID string, result *models.AnalysisResult) {
	if webhookURL == "" {
		return
	}
	go n.deliver(webhookURL, Event{
		EventType:  EventEscalation,
		IssueID:    issueID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Result:     result,
	})
}

func (n *Notifier) deliver(webhookURL string, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn("notify: marshal payload failed", "issue_id", ev.IssueID, "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("notify: create request failed", "issue_id", ev.IssueID, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "triage-notifier/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notify: delivery failed", "issue_id", ev.IssueID, "event_type", ev.EventType, "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("notify: non-2xx from webhook",
			"issue_id", ev.IssueID, "event_type", ev.EventType, "status", fmt.Sprint(resp.StatusCode))
	}
}
