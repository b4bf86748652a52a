package validate

import "testing"

func TestTaskID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"task-1", true},
		{"a1b2c3_d4", true},
		{string(make([]byte, RecordIDMaxLen+1)), false},
		{"bad/id", false},
		{"bad id", false},
	}
	for _, tt := range tests {
		if got := TaskID(tt.id); got != tt.want {
			t.Errorf("TaskID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIssueID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"issue-42", true},
		{"BUG-1000", true},
		{"bad.id", false},
	}
	for _, tt := range tests {
		if got := IssueID(tt.id); got != tt.want {
			t.Errorf("IssueID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestRuleID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"bluetooth-drop", true},
		{string(make([]byte, RuleIDMaxLen+1)), false},
	}
	for _, tt := range tests {
		if got := RuleID(tt.id); got != tt.want {
			t.Errorf("RuleID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"app crashes on launch", true},
		{string(make([]byte, DescriptionMaxLen+1)), false},
	}
	for _, tt := range tests {
		if got := Description(tt.desc); got != tt.want {
			t.Errorf("Description(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		p    string
		want bool
	}{
		{"", true},
		{"H", true},
		{"L", true},
		{"medium", false},
	}
	for _, tt := range tests {
		if got := Priority(tt.p); got != tt.want {
			t.Errorf("Priority(%q) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
