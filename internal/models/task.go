package models

import "time"

// TaskState is a point in the Task lifecycle (§3). Non-terminal states follow
// a partial order; terminal states are absorbing.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskDownloading TaskState = "downloading"
	TaskDecrypting TaskState = "decrypting"
	TaskExtracting TaskState = "extracting"
	TaskAnalyzing  TaskState = "analyzing"
	TaskDone       TaskState = "done"
	TaskFailed     TaskState = "failed"
	TaskCancelled  TaskState = "cancelled"
)

// IsTerminal reports whether s is an absorbing state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskDone, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// nonTerminalOrder gives the partial order of live states; a transition is
// valid going forward in this list, or from any live state to any terminal one.
var nonTerminalOrder = map[TaskState]int{
	TaskQueued:      0,
	TaskDownloading: 1,
	TaskDecrypting:  2,
	TaskExtracting:  3,
	TaskAnalyzing:   4,
}

// CanTransition reports whether moving a Task from `from` to `to` is legal
// under the §3 state-machine invariant.
func CanTransition(from, to TaskState) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false // terminal states are absorbing
	}
	if to.IsTerminal() {
		return true
	}
	fromOrd, ok1 := nonTerminalOrder[from]
	toOrd, ok2 := nonTerminalOrder[to]
	return ok1 && ok2 && toOrd > fromOrd
}

// Task is one analysis attempt against an Issue.
type Task struct {
	TaskID          string    `json:"task_id" db:"task_id"`
	IssueID         string    `json:"issue_id" db:"issue_id"`
	State           TaskState `json:"state" db:"state"`
	ProgressPercent int       `json:"progress_percent" db:"progress_percent"`
	Message         string    `json:"message" db:"message"`
	Error           string    `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
	RequestedAgent  string    `json:"requested_agent,omitempty" db:"requested_agent"`
	RequestedBy     string    `json:"requested_by,omitempty" db:"requested_by"`
	Priority        IssuePriority `json:"priority" db:"priority"`
}

// TaskFilter narrows a paginated task listing.
type TaskFilter struct {
	State TaskState
	From  *time.Time
	To    *time.Time
	Limit int
	Offset int
}
