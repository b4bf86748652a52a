// Package validate provides input validation for API path and body parameters.
package validate

import (
	"regexp"
	"strings"
)

const (
	DescriptionMaxLen = 32 * 1024
	DescriptionMinLen = 1
	RecordIDMaxLen    = 128
	RuleIDMaxLen      = 128
)

// idRe matches the identifiers we generate and accept: lowercase/uppercase
// alphanumeric, hyphen, underscore.
var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// TaskID validates a task_id path parameter.
func TaskID(id string) bool {
	return id != "" && len(id) <= RecordIDMaxLen && idRe.MatchString(id)
}

// IssueID validates a record_id path parameter.
func IssueID(id string) bool {
	return id != "" && len(id) <= RecordIDMaxLen && idRe.MatchString(id)
}

// RuleID validates a rule id, whether from a path parameter or a parsed
// rule file header.
func RuleID(id string) bool {
	return id != "" && len(id) <= RuleIDMaxLen && idRe.MatchString(id)
}

// Description validates the free-text issue description (§3 Issue): any
// language, bounded length, non-empty after trimming.
func Description(desc string) bool {
	trimmed := strings.TrimSpace(desc)
	return len(trimmed) >= DescriptionMinLen && len(desc) <= DescriptionMaxLen
}

// Priority validates the H/L issue priority code.
func Priority(p string) bool {
	return p == "" || p == "H" || p == "L"
}
