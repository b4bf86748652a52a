// Package pipeline implements the Analysis Pipeline (§4.I): it orchestrates
// the Log Materializer, Log Pre-extractor, Rule Engine, Agent Runner, and
// Result Parser in sequence for one Task, emitting ProgressEvents at the
// milestones the Progress Bus fans out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kubilitics/kubilitics-backend/internal/agent"
	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/materializer"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/notify"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-backend/internal/preextract"
	"github.com/kubilitics/kubilitics-backend/internal/progress"
	"github.com/kubilitics/kubilitics-backend/internal/repository"
	"github.com/kubilitics/kubilitics-backend/internal/resultparser"
	"github.com/kubilitics/kubilitics-backend/internal/ruleengine"
	"github.com/kubilitics/kubilitics-backend/internal/rules"
)

// Stage timeouts (§5 Cancellation and timeouts).
const (
	defaultArtifactTimeout = 5 * time.Minute
	defaultAgentTimeout    = 5 * time.Minute
	defaultKillGrace       = 5 * time.Second
)

// Pipeline wires every analysis-time component into the single Execute
// entrypoint the Task Queue calls per Task.
type Pipeline struct {
	Repo         repository.Repository
	Catalog      *rules.Store
	Engine       *ruleengine.Engine
	Materializer *materializer.Materializer
	PreExtractor *preextract.Extractor
	Router       *agent.Router
	ProgressBus  *progress.Bus
	Notifier     *notify.Notifier

	AgentTimeout time.Duration
	KillGrace    time.Duration
	Logger       *slog.Logger
}

// Execute implements taskqueue.Executor: it runs every stage for one Task,
// persisting state and emitting progress at each milestone in §4.I's table.
func (p *Pipeline) Execute(ctx context.Context, taskID, issueID string) error {
	issue, err := p.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return p.fail(ctx, taskID, issueID, errkind.Wrap(errkind.KindNotFound, "load issue", err))
	}
	task, err := p.Repo.GetTask(ctx, taskID)
	if err != nil {
		return p.fail(ctx, taskID, issueID, errkind.Wrap(errkind.KindNotFound, "load task", err))
	}

	p.emit(taskID, models.TaskQueued, 0, "enqueued")

	selectCtx, selectSpan := tracing.StartSpanWithAttributes(ctx, "pipeline.select_rules",
		attribute.String("task.id", taskID), attribute.String("issue.id", issueID))
	cat := p.Catalog.Snapshot()
	matched := p.Engine.Select(cat, issue.Description)
	if len(matched) == 0 {
		err := errkind.New(errkind.KindRuleSelectFailed, "no rule matched, including fallback")
		selectSpan.RecordError(err)
		selectSpan.SetStatus(codes.Error, err.Error())
		selectSpan.End()
		return p.fail(selectCtx, taskID, issueID, err)
	}
	primary := matched[len(matched)-1]
	selectSpan.SetAttributes(attribute.String("rule.primary_id", primary.ID))
	selectSpan.End()

	p.emit(taskID, models.TaskDownloading, 10, "resolving artifacts")
	materializeCtx, materializeSpan := tracing.StartSpanWithAttributes(ctx, "pipeline.materialize",
		attribute.String("task.id", taskID), attribute.Int("artifact.count", len(issue.LogArtifacts)))
	fetchCtx, cancel := context.WithTimeout(materializeCtx, defaultArtifactTimeout*time.Duration(max(len(issue.LogArtifacts), 1)))
	wsDir, err := p.Materializer.Materialize(fetchCtx, taskID, issue, primary.NeedsCode)
	cancel()
	if err != nil {
		materializeSpan.RecordError(err)
		materializeSpan.SetStatus(codes.Error, err.Error())
		materializeSpan.End()
		return p.fail(ctx, taskID, issueID, err)
	}
	materializeSpan.End()

	p.emit(taskID, models.TaskExtracting, 40, "pre-extracting log lines")
	extractCtx, extractSpan := tracing.StartSpanWithAttributes(ctx, "pipeline.extract",
		attribute.String("task.id", taskID))
	preCtx, cancel := context.WithTimeout(extractCtx, 30*time.Second*time.Duration(max(len(primary.PreExtract), 1)))
	extracted, err := p.PreExtractor.Run(preCtx, filepath.Join(wsDir, "logs"), primary.PreExtract, issue.EventDateHint)
	cancel()
	if err != nil {
		wrapped := errkind.Wrap(errkind.KindExtractFailed, "pre-extract", err)
		extractSpan.RecordError(wrapped)
		extractSpan.SetStatus(codes.Error, wrapped.Error())
		extractSpan.End()
		return p.fail(ctx, taskID, issueID, wrapped)
	}
	extractSpan.End()

	p.emit(taskID, models.TaskAnalyzing, 50, "invoking agent")
	prompt := buildPrompt(issue, matched, extracted)
	runner, err := p.Router.Resolve(ctx, task.RequestedAgent)
	if err != nil {
		return p.fail(ctx, taskID, issueID, errkind.Wrap(errkind.KindAgentUnavailable, "resolve agent provider", err))
	}

	agentTimeout := p.AgentTimeout
	if agentTimeout <= 0 {
		agentTimeout = defaultAgentTimeout
	}
	killGrace := p.KillGrace
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}

	agentCtx, agentSpan := tracing.StartSpanWithAttributes(ctx, "pipeline.run_agent",
		attribute.String("task.id", taskID), attribute.String("agent.requested", task.RequestedAgent))
	start := time.Now()
	transcript, meta, err := runner.Run(agentCtx, prompt, wsDir, agent.Options{
		Timeout:        agentTimeout,
		KillGrace:      killGrace,
		MaxOutputBytes: 2 * 1024 * 1024,
	})
	metrics.AgentInvocationDurationSeconds.WithLabelValues(meta.Provider).Observe(time.Since(start).Seconds())
	agentSpan.SetAttributes(attribute.String("agent.provider", meta.Provider), attribute.Int("agent.exit_code", meta.ExitCode))
	if err != nil {
		if ctx.Err() != nil {
			agentSpan.End()
			return p.cancelled(ctx, taskID, issueID, wsDir)
		}
		// With ctx still live, a non-nil error here comes either from the
		// per-run timeout (context.DeadlineExceeded, reported as a timeout)
		// or from resolving or starting the binary (an availability problem);
		// classifyExit in internal/agent reports a non-zero exit as err=nil,
		// via meta.ExitCode instead.
		kind := errkind.KindAgentUnavailable
		if err == context.DeadlineExceeded {
			kind = errkind.KindAgentTimeout
		}
		wrapped := errkind.Wrap(kind, "agent run", err)
		agentSpan.RecordError(wrapped)
		agentSpan.SetStatus(codes.Error, wrapped.Error())
		agentSpan.End()
		return p.fail(ctx, taskID, issueID, wrapped)
	}
	agentSpan.End()

	p.emit(taskID, models.TaskAnalyzing, 95, "persisting result")
	_, parseSpan := tracing.StartSpanWithAttributes(ctx, "pipeline.parse_result",
		attribute.String("task.id", taskID))
	result, err := resultparser.Parse(transcript, taskID, issueID, primary.ID, meta.Provider)
	if err != nil {
		if meta.ExitCode != 0 {
			wrapped := errkind.Wrap(errkind.KindAgentCrash,
				fmt.Sprintf("agent %s exited %d with unparseable output, last output: %s",
					meta.Provider, meta.ExitCode, lastLines(transcript, 20)), err)
			parseSpan.RecordError(wrapped)
			parseSpan.SetStatus(codes.Error, wrapped.Error())
			parseSpan.End()
			return p.fail(ctx, taskID, issueID, wrapped)
		}
		parseSpan.RecordError(err)
		parseSpan.SetStatus(codes.Error, err.Error())
		parseSpan.End()
		return p.fail(ctx, taskID, issueID, err)
	}
	parseSpan.End()
	if err := p.Repo.CreateResult(ctx, result); err != nil {
		return p.fail(ctx, taskID, issueID, errkind.Wrap(errkind.KindInternal, "persist result", err))
	}

	if issue.WebhookURL != "" {
		p.Notifier.NotifyResult(issue.WebhookURL, issue.RecordID, result)
	}
	if result.NeedsEngineer {
		p.Notifier.NotifyEscalation(issue.WebhookURL, issue.RecordID, result)
	}

	if err := p.Materializer.Cleanup(taskID, false); err != nil {
		p.Logger.Warn("workspace cleanup failed", "task_id", taskID, "error", err)
	}

	if err := p.Repo.UpdateTaskProgress(ctx, taskID, models.TaskDone, 100, "analysis complete"); err != nil {
		p.Logger.Warn("failed to persist terminal state", "task_id", taskID, "error", err)
	}
	metrics.TasksTotal.WithLabelValues(string(models.TaskDone)).Inc()
	p.emit(taskID, models.TaskDone, 100, "analysis complete")
	return nil
}



func (p *Pipeline) fail(ctx context.Context, taskID, issueID string, err error) error {
	kind := errkind.As(err)
	_ = p.Repo.FailTask(context.WithoutCancel(ctx), taskID, fmt.Sprintf("%s: %s", kind, err.Error()))
	if cleanupErr := p.Materializer.Cleanup(taskID, true); cleanupErr != nil {
		p.Logger.Warn("snapshot cleanup failed", "task_id", taskID, "error", cleanupErr)
	}
	metrics.TasksTotal.WithLabelValues(string(models.TaskFailed)).Inc()
	p.emit(taskID, models.TaskFailed, 100, err.Error())
	return err
}

func (p *Pipeline) cancelled(ctx context.Context, taskID, issueID, wsDir string) error {
	_ = p.Repo.UpdateTaskProgress(context.WithoutCancel(ctx), taskID, models.TaskCancelled, 100, "cancelled")
	if err := p.Materializer.Cleanup(taskID, false); err != nil {
		p.Logger.Warn("cancelled workspace cleanup failed", "task_id", taskID, "error", err)
	}
	metrics.TasksTotal.WithLabelValues(string(models.TaskCancelled)).Inc()
	p.emit(taskID, models.TaskCancelled, 100, "cancelled")
	return errkind.New(errkind.KindCancelled, "task cancelled")
}

func (p *Pipeline) emit(taskID string, state models.TaskState, percent int, message string) {
	ev := models.ProgressEvent{TaskID: taskID, State: state, ProgressPercent: percent, Message: message, UpdatedAt: time.Now()}
	p.ProgressBus.Publish(ev)
	if err := p.Repo.UpdateTaskProgress(context.Background(), taskID, state, percent, message); err != nil {
		p.Logger.Warn("failed to persist progress", "task_id", taskID, "error", err)
	}
}

// lastLines returns the trailing n lines of s, used to carry the agent's
// last stderr output (merged into the transcript with stdout) into an
// AgentCrash error without dragging the whole transcript along.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
