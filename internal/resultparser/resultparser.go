// Package resultparser implements the Result Parser (§4.F): extracting the
// agent's structured JSON verdict from an otherwise free-form transcript.
package resultparser

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// rawResult mirrors the agent's JSON contract with all fields optional;
// defaulting and required-field checks happen after decode (§4.F: "tolerate
// both fenced and plain trailing JSON").
type rawResult struct {
	ProblemType      string   `json:"problem_type"`
	ProblemTypeEn    string   `json:"problem_type_en"`
	RootCause        string   `json:"root_cause"`
	RootCauseEn      string   `json:"root_cause_en"`
	Confidence       string   `json:"confidence"`
	ConfidenceReason string   `json:"confidence_reason"`
	KeyEvidence      []string `json:"key_evidence"`
	UserReply        string   `json:"user_reply"`
	UserReplyEn      string   `json:"user_reply_en"`
	NeedsEngineer    bool     `json:"needs_engineer"`
	RequiresMoreInfo bool     `json:"requires_more_info"`
	NextSteps        []string `json:"next_steps"`
	FixSuggestion    string   `json:"fix_suggestion"`
}

// Parse extracts the agent's verdict from transcript, stamping the matched
// rule id and effective agent name that the caller (not the transcript)
// knows (§4.F).
func Parse(transcript, taskID, issueID, matchedRuleID, agentName string) (*models.AnalysisResult, error) {
	block := extractLastJSONBlock(transcript)
	if block == "" {
		return nil, errkind.New(errkind.KindParseFailure, "no JSON block found in agent transcript")
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, errkind.Wrap(errkind.KindParseFailure, "decode agent JSON block", err)
	}

	if strings.TrimSpace(raw.ProblemType) == "" || strings.TrimSpace(raw.RootCause) == "" {
		return nil, errkind.New(errkind.KindParseFailure, "agent JSON missing required fields problem_type/root_cause")
	}

	confidence := models.Confidence(strings.ToLower(strings.TrimSpace(raw.Confidence)))
	switch confidence {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		confidence = models.ConfidenceLow // default per §4.F when missing/unrecognized
	}

	return &models.AnalysisResult{
		TaskID:           taskID,
		IssueID:          issueID,
		ProblemType:      raw.ProblemType,
		ProblemTypeEn:    raw.ProblemTypeEn,
		RootCause:        raw.RootCause,
		RootCauseEn:      raw.RootCauseEn,
		Confidence:       confidence,
		ConfidenceReason: raw.ConfidenceReason,
		KeyEvidence:      raw.KeyEvidence,
		UserReply:        raw.UserReply,
		UserReplyEn:      raw.UserReplyEn,
		NeedsEngineer:    raw.NeedsEngineer,
		RequiresMoreInfo: raw.RequiresMoreInfo,
		NextSteps:        raw.NextSteps,
		FixSuggestion:    raw.FixSuggestion,
		MatchedRuleID:    matchedRuleID,
		AgentName:        agentName,
		RawTranscript:    transcript,
		CreatedAt:        time.Now(),
	}, nil
}

// extractLastJSONBlock finds the last complete top-level JSON object in
// text, whether it sits inside a ```json fenced block or bare at the tail
// of the transcript. It scans with brace counting and quote/escape
// awareness rather than a greedy regex, since agent prose commonly contains
// unbalanced braces of its own.
func extractLastJSONBlock(text string) string {
	if fenced := lastFencedJSONBlock(text); fenced != "" {
		return fenced
	}
	return lastBraceBalancedBlock(text)
}

func lastFencedJSONBlock(text string) string {
	const openMarker = "```json"
	const closeMarker = "```"

	lastStart := strings.LastIndex(text, openMarker)
	if lastStart == -1 {
		return ""
	}
	rest := text[lastStart+len(openMarker):]
	end := strings.Index(rest, closeMarker)
	if end == -1 {
		return ""
	}
	candidate := strings.TrimSpace(rest[:end])
	if candidate == "" {
		return ""
	}
	return candidate
}

// lastBraceBalancedBlock scans text right-to-left-by-candidate: it walks
// forward tracking brace depth and quote state, remembering the span of the
// last top-level object it completes.
func lastBraceBalancedBlock(text string) string {
	var (
		depth      int
		inString   bool
		escaped    bool
		start      = -1
		lastBlock  string
	)
	for i, r := range text {
		switch {
		case inString:
			if escaped {
				escaped = false
				continue
			}
			if r == '\\' {
				escaped = true
				continue
			}
			if r == '"' {
				inString = false
			}
			continue
		case r == '"':
			inString = true
			continue
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					lastBlock = text[start : i+1]
				}
			}
		}
	}
	return strings.TrimSpace(lastBlock)
}
