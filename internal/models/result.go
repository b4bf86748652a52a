package models

import "time"

// Confidence is the agent's self-reported certainty in its root-cause finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AnalysisResult is produced by a Task that reaches state `done`. It is
// one-to-one with its Task and immutable once written.
type AnalysisResult struct {
	TaskID            string     `json:"task_id" db:"task_id"`
	IssueID           string     `json:"issue_id" db:"issue_id"`
	ProblemType       string     `json:"problem_type" db:"problem_type"`
	ProblemTypeEn     string     `json:"problem_type_en,omitempty" db:"problem_type_en"`
	RootCause         string     `json:"root_cause" db:"root_cause"`
	RootCauseEn       string     `json:"root_cause_en,omitempty" db:"root_cause_en"`
	Confidence        Confidence `json:"confidence" db:"confidence"`
	ConfidenceReason  string     `json:"confidence_reason,omitempty" db:"confidence_reason"`
	KeyEvidence       []string   `json:"key_evidence,omitempty" db:"key_evidence"`
	UserReply         string     `json:"user_reply" db:"user_reply"`
	UserReplyEn       string     `json:"user_reply_en,omitempty" db:"user_reply_en"`
	NeedsEngineer     bool       `json:"needs_engineer" db:"needs_engineer"`
	RequiresMoreInfo  bool       `json:"requires_more_info" db:"requires_more_info"`
	NextSteps         []string   `json:"next_steps,omitempty" db:"next_steps"`
	FixSuggestion     string     `json:"fix_suggestion,omitempty" db:"fix_suggestion"`
	MatchedRuleID     string     `json:"matched_rule_id" db:"matched_rule_id"`
	AgentName         string     `json:"agent_name" db:"agent_name"`
	RawTranscript     string     `json:"raw_transcript,omitempty" db:"raw_transcript"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ProgressEvent is an ephemeral snapshot of a Task's changing fields,
// delivered to Progress Bus subscribers.
type ProgressEvent struct {
	TaskID          string    `json:"task_id"`
	State           TaskState `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	Message         string    `json:"message"`
	UpdatedAt       time.Time `json:"updated_at"`
}
