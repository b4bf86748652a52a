package pipeline

import (
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/preextract"
)

// buildPrompt composes the agent-facing prompt: the issue description, the
// ordered matched rules' bodies (dependencies first, primary rule's own
// instructions last per §4.B), and the pre-extracted log excerpts.
func buildPrompt(issue *models.Issue, matched []*models.Rule, extracted preextract.Result) string {
	var b strings.Builder

	b.WriteString("## Issue\n")
	b.WriteString(issue.Description)
	b.WriteString("\n\n")
	if issue.DeviceSerial != "" || issue.Firmware != "" || issue.Platform != "" {
		b.WriteString("Device: ")
		b.WriteString(strings.Join(nonEmpty(issue.DeviceSerial, issue.Firmware, issue.AppVersion, issue.Platform), " / "))
		b.WriteString("\n\n")
	}

	for _, r := range matched {
		b.WriteString("## Rule: ")
		b.WriteString(r.Name)
		b.WriteString("\n")
		b.WriteString(r.Body)
		b.WriteString("\n\n")
	}

	if block := extracted.RenderBlock(); block != "" {
		b.WriteString("## Pre-extracted log excerpts\n")
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString("Respond with your analysis followed by a single trailing JSON object matching the agreed result schema.\n")
	return b.String()
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
