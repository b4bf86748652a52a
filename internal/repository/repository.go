// Package repository implements the narrow persistence capability (§9):
// every component that needs durable state goes through the Repository
// interface rather than touching the database directly.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// SQLRepository implements Repository over sqlx, written once against `?`
// bind vars and rebound per-driver via db.Rebind — the same dynamic query
// construction style the teacher's repository layer uses, extended to cover
// both backends from one query set instead of two near-duplicate files.
type SQLRepository struct {
	db     *sqlx.DB
	driver string // "sqlite" or "postgres"
}

// NewSQLiteRepository opens a pure-Go SQLite connection (modernc.org/sqlite
// — no cgo) at dbPath.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &SQLRepository{db: db, driver: "sqlite"}, nil
}

// NewPostgresRepository opens a Postgres connection via lib/pq.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQLRepository{db: db, driver: "postgres"}, nil
}

func (r *SQLRepository) Close() error { return r.db.Close() }

// Ping verifies the underlying connection is reachable, used by GET /health.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) RunMigrations(migrationSQL string) error {
	_, err := r.db.Exec(migrationSQL)
	return err
}

func (r *SQLRepository) rebind(query string) string {
	return r.db.Rebind(query)
}

// --- Issues ---

func (r *SQLRepository) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.RecordID == "" {
		issue.RecordID = uuid.New().String()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	query := r.rebind(`
		INSERT INTO issues (record_id, description, priority, device_serial, firmware, app_version,
			platform, category, source, external_links, created_by, created_at, webhook_url, soft_deleted,
			event_date_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		issue.RecordID, issue.Description, issue.Priority, issue.DeviceSerial, issue.Firmware,
		issue.AppVersion, issue.Platform, issue.Category, issue.Source,
		strings.Join(issue.ExternalLinks, ","), issue.CreatedBy, issue.CreatedAt, issue.WebhookURL, false,
		issue.EventDateHint,
	)
	return err
}

func (r *SQLRepository) GetIssue(ctx context.Context, recordID string) (*models.Issue, error) {
	var issue models.Issue
	var links string
	query := r.rebind(`SELECT record_id, description, priority, device_serial, firmware, app_version,
		platform, category, source, external_links AS "-", created_by, created_at, webhook_url, soft_deleted,
		event_date_hint
		FROM issues WHERE record_id = ?`)
	row := r.db.QueryRowxContext(ctx, query, recordID)
	err := row.Scan(&issue.RecordID, &issue.Description, &issue.Priority, &issue.DeviceSerial, &issue.Firmware,
		&issue.AppVersion, &issue.Platform, &issue.Category, &issue.Source, &links, &issue.CreatedBy,
		&issue.CreatedAt, &issue.WebhookURL, &issue.SoftDeleted, &issue.EventDateHint)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue not found: %s", recordID)
	}
	if err != nil {
		return nil, err
	}
	if links != "" {
		issue.ExternalLinks = strings.Split(links, ",")
	}
	return &issue, nil
}

func (r *SQLRepository) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	var b strings.Builder
	b.WriteString(`SELECT record_id, description, priority, device_serial, firmware, app_version,
		platform, category, source, external_links, created_by, created_at, webhook_url, soft_deleted,
		event_date_hint
		FROM issues WHERE 1=1`)
	var args []interface{}

	if !filter.IncludeDeleted {
		b.WriteString(" AND soft_deleted = ?")
		args = append(args, false)
	}
	if filter.CreatedBy != "" {
		b.WriteString(" AND created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.Platform != "" {
		b.WriteString(" AND platform = ?")
		args = append(args, filter.Platform)
	}
	if filter.Category != "" {
		b.WriteString(" AND category = ?")
		args = append(args, filter.Category)
	}
	if filter.From != nil {
		b.WriteString(" AND created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		b.WriteString(" AND created_at <= ?")
		args = append(args, *filter.To)
	}
	b.WriteString(" ORDER BY created_at DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryxContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Issue
	for rows.Next() {
		var issue models.Issue
		var links string
		if err := rows.Scan(&issue.RecordID, &issue.Description, &issue.Priority, &issue.DeviceSerial,
			&issue.Firmware, &issue.AppVersion, &issue.Platform, &issue.Category, &issue.Source, &links,
			&issue.CreatedBy, &issue.CreatedAt, &issue.WebhookURL, &issue.SoftDeleted,
			&issue.EventDateHint); err != nil {
			return nil, err
		}
		if links != "" {
			issue.ExternalLinks = strings.Split(links, ",")
		}
		out = append(out, &issue)
	}
	return out, rows.Err()
}

func (r *SQLRepository) SoftDeleteIssue(ctx context.Context, recordID string) error {
	query := r.rebind(`UPDATE issues SET soft_deleted = ? WHERE record_id = ?`)
	_, err := r.db.ExecContext(ctx, query, true, recordID)
	return err
}

// --- Tasks ---

// CreateTaskIfAbsent is the linearization point for the at-most-one
// invariant (§4.G, Testable Property 1). The non-terminal check and insert
// run inside one transaction, but the real enforcement is the partial
// unique index from migrations/001_initial_schema.sql: if two concurrent
// admissions for the same issue_id both pass the SELECT, only one INSERT
// wins and the loser translates the resulting unique-violation into the
// same "return the winner's task" response the SELECT path would have
// given it, rather than surfacing a 500.
func (r *SQLRepository) CreateTaskIfAbsent(ctx context.Context, task *models.Task) (*models.Task, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	existing, err := r.nonTerminalTaskForIssue(ctx, tx, task.IssueID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	if task.State == "" {
		task.State = models.TaskQueued
	}

	insertQuery := r.rebind(`INSERT INTO tasks (task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertQuery, task.TaskID, task.IssueID, task.State, task.ProgressPercent,
		task.Message, task.Error, task.CreatedAt, task.UpdatedAt, task.RequestedAgent, task.RequestedBy,
		task.Priority); err != nil {
		if !isUniqueViolation(err) {
			return nil, false, err
		}
		_ = tx.Rollback()
		winner, lookupErr := r.nonTerminalTaskForIssue(ctx, r.db, task.IssueID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("unique violation on tasks.issue_id but no non-terminal task found for %s", task.IssueID)
		}
		return winner, false, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx, letting
// nonTerminalTaskForIssue run either inside the admission transaction or,
// after a rollback, as a fresh standalone query.
type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

func (r *SQLRepository) nonTerminalTaskForIssue(ctx context.Context, q queryer, issueID string) (*models.Task, error) {
	query := r.rebind(`SELECT task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE issue_id = ? AND state NOT IN (?, ?, ?)`)
	rows, err := q.QueryxContext(ctx, query, issueID, models.TaskDone, models.TaskFailed, models.TaskCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	var t models.Task
	if err := rows.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message, &t.Error,
		&t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority); err != nil {
		return nil, err
	}
	return &t, nil
}

// isUniqueViolation reports whether err is the driver's report of a unique
// (or primary key) constraint violation. lib/pq surfaces this as *pq.Error
// with SQLSTATE 23505; modernc.org/sqlite reports it as a plain error whose
// message is SQLite's stable "UNIQUE constraint failed" text, so that case
// is matched on the message rather than a driver-specific error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLRepository) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t models.Task
	query := r.rebind(`SELECT task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority FROM tasks WHERE task_id = ?`)
	row := r.db.QueryRowxContext(ctx, query, taskID)
	err := row.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message, &t.Error,
		&t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return &t, err
}

// UpdateTaskProgress moves a Task forward (§3 monotone state, Testable
// Property 2/3). Callers are expected to only ever request forward
// transitions; this does not re-validate CanTransition so the pipeline
// (the sole writer for a given Task) stays the single source of truth on
// sequencing.
func (r *SQLRepository) UpdateTaskProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error {
	query := r.rebind(`UPDATE tasks SET state = ?, progress_percent = ?, message = ?, updated_at = ? WHERE task_id = ?`)
	_, err := r.db.ExecContext(ctx, query, state, percent, message, time.Now().UTC(), taskID)
	return err
}

func (r *SQLRepository) FailTask(ctx context.Context, taskID string, errMsg string) error {
	query := r.rebind(`UPDATE tasks SET state = ?, progress_percent = ?, error = ?, updated_at = ? WHERE task_id = ?`)
	_, err := r.db.ExecContext(ctx, query, models.TaskFailed, 100, errMsg, time.Now().UTC(), taskID)
	return err
}

func (r *SQLRepository) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	var b strings.Builder
	b.WriteString(`SELECT task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority FROM tasks WHERE 1=1`)
	var args []interface{}
	if filter.State != "" {
		b.WriteString(" AND state = ?")
		args = append(args, filter.State)
	}
	if filter.From != nil {
		b.WriteString(" AND created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		b.WriteString(" AND created_at <= ?")
		args = append(args, *filter.To)
	}
	b.WriteString(" ORDER BY created_at DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryxContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message, &t.Error,
			&t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *SQLRepository) listNonTerminal(ctx context.Context, before time.Time, stale bool) ([]*models.Task, error) {
	op := ">="
	if stale {
		op = "<"
	}
	query := r.rebind(fmt.Sprintf(`SELECT task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority FROM tasks
		WHERE state NOT IN (?, ?, ?) AND updated_at %s ?`, op))
	rows, err := r.db.QueryxContext(ctx, query, models.TaskDone, models.TaskFailed, models.TaskCancelled, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message, &t.Error,
			&t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListStaleNonTerminal returns tasks in a non-terminal state whose
// updated_at predates the recovery threshold (§4.G recovery sweep).
func (r *SQLRepository) ListStaleNonTerminal(ctx context.Context, before time.Time) ([]*models.Task, error) {
	return r.listNonTerminal(ctx, before, true)
}

// ListFreshNonTerminal returns non-terminal tasks that survived the sweep
// and must be re-enqueued.
func (r *SQLRepository) ListFreshNonTerminal(ctx context.Context, before time.Time) ([]*models.Task, error) {
	return r.listNonTerminal(ctx, before, false)
}

func (r *SQLRepository) LatestDoneTaskForIssue(ctx context.Context, issueID string) (*models.Task, error) {
	query := r.rebind(`SELECT task_id, issue_id, state, progress_percent, message, error,
		created_at, updated_at, requested_agent, requested_by, priority FROM tasks
		WHERE issue_id = ? AND state = ? ORDER BY created_at DESC LIMIT 1`)
	var t models.Task
	row := r.db.QueryRowxContext(ctx, query, issueID, models.TaskDone)
	err := row.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message, &t.Error,
		&t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

// --- Results ---

func (r *SQLRepository) CreateResult(ctx context.Context, result *models.AnalysisResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	query := r.rebind(`INSERT INTO results (task_id, issue_id, problem_type, problem_type_en, root_cause,
		root_cause_en, confidence, confidence_reason, key_evidence, user_reply, user_reply_en,
		needs_engineer, requires_more_info, next_steps, fix_suggestion, matched_rule_id, agent_name,
		raw_transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		result.TaskID, result.IssueID, result.ProblemType, result.ProblemTypeEn, result.RootCause,
		result.RootCauseEn, result.Confidence, result.ConfidenceReason, strings.Join(result.KeyEvidence, "\n"),
		result.UserReply, result.UserReplyEn, result.NeedsEngineer, result.RequiresMoreInfo,
		strings.Join(result.NextSteps, "\n"), result.FixSuggestion, result.MatchedRuleID, result.AgentName,
		result.RawTranscript, result.CreatedAt)
	return err
}

func (r *SQLRepository) GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error) {
	var res models.AnalysisResult
	var evidence, steps string
	query := r.rebind(`SELECT task_id, issue_id, problem_type, problem_type_en, root_cause, root_cause_en,
		confidence, confidence_reason, key_evidence, user_reply, user_reply_en, needs_engineer,
		requires_more_info, next_steps, fix_suggestion, matched_rule_id, agent_name, raw_transcript, created_at
		FROM results WHERE task_id = ?`)
	row := r.db.QueryRowxContext(ctx, query, taskID)
	err := row.Scan(&res.TaskID, &res.IssueID, &res.ProblemType, &res.ProblemTypeEn, &res.RootCause,
		&res.RootCauseEn, &res.Confidence, &res.ConfidenceReason, &evidence, &res.UserReply, &res.UserReplyEn,
		&res.NeedsEngineer, &res.RequiresMoreInfo, &steps, &res.FixSuggestion, &res.MatchedRuleID,
		&res.AgentName, &res.RawTranscript, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("result not found for task: %s", taskID)
	}
	if err != nil {
		return nil, err
	}
	if evidence != "" {
		res.KeyEvidence = strings.Split(evidence, "\n")
	}
	if steps != "" {
		res.NextSteps = strings.Split(steps, "\n")
	}
	return &res, nil
}
