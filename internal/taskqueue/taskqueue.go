// Package taskqueue implements the Task Queue & Scheduler (§4.G): admission
// control, a fixed worker pool, priority-aware dequeue, cooperative
// cancellation, and startup recovery of tasks orphaned by a restart.
package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-backend/internal/repository"
)

// Executor runs one Task's analysis pipeline end to end. The scheduler
// depends only on this narrow interface so it never imports the pipeline
// package directly (composition happens at the root).
type Executor interface {
	Execute(ctx context.Context, taskID, issueID string) error
}

// job is one unit of scheduled work.
type job struct {
	taskID  string
	issueID string
}

// Scheduler is the admission-control + worker-pool core of the Task Queue
// (§4.G). Admission is a conditional upsert against the repository — the
// linearization point enforcing "at-most-one non-terminal Task per
// issue_id" (Testable Property 1).
type Scheduler struct {
	repo     repository.TaskRepository
	executor Executor
	logger   *slog.Logger
	workers  int

	highPriority chan job
	lowPriority  chan job

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

func New(repo repository.TaskRepository, executor Executor, logger *slog.Logger, workers, capacity int) *Scheduler {
	if workers <= 0 {
		workers = 3
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &Scheduler{
		repo:         repo,
		executor:     executor,
		logger:       logger,
		workers:      workers,
		highPriority: make(chan job, capacity),
		lowPriority:  make(chan job, capacity),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Submit performs admission control for issueID: if a non-terminal Task
// already exists it is returned unchanged (ok=false); otherwise a new
// queued Task is created and enqueued (ok=true) (§4.G).
func (s *Scheduler) Submit(ctx context.Context, issueID, requestedAgent, requestedBy string, priority models.IssuePriority) (*models.Task, bool, error) {
	task := &models.Task{
		TaskID:         uuid.NewString(),
		IssueID:        issueID,
		State:          models.TaskQueued,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
		RequestedAgent: requestedAgent,
		RequestedBy:    requestedBy,
		Priority:       priority,
	}

	existing, ok, err := s.repo.CreateTaskIfAbsent(ctx, task)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.KindInternal, "admission control", err)
	}
	if !ok {
		return existing, false, nil
	}

	s.enqueue(job{taskID: task.TaskID, issueID: task.IssueID}, priority)
	metrics.QueueDepth.Inc()
	return task, true, nil
}

func (s *Scheduler) enqueue(j job, priority models.IssuePriority) {
	if priority == models.PriorityHigh {
		s.highPriority <- j
		return
	}
	s.lowPriority <- j
}

// Start launches the fixed worker pool. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	metrics.WorkersBusy.Set(0)
	<-ctx.Done()
	s.wg.Wait()
}

// worker drains high-priority work ahead of low-priority work, falling back
// to low only when high is empty — priority-then-FIFO dequeue (§4.G).
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		var j job
		select {
		case <-ctx.Done():
			return
		case j = <-s.highPriority:
		default:
			select {
			case <-ctx.Done():
				return
			case j = <-s.highPriority:
			case j = <-s.lowPriority:
			}
		}
		metrics.QueueDepth.Dec()
		s.run(ctx, j)
	}
}

func (s *Scheduler) run(parent context.Context, j job) {
	taskCtx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancels[j.taskID] = cancel
	s.mu.Unlock()
	metrics.WorkersBusy.Inc()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, j.taskID)
		s.mu.Unlock()
		metrics.WorkersBusy.Dec()
	}()

	if err := s.executor.Execute(taskCtx, j.taskID, j.issueID); err != nil {
		s.logger.Warn("task execution failed", "task_id", j.taskID, "error", err)
	}
}

// Cancel requests cooperative cancellation of a running Task. It reports
// false if the Task is not currently owned by a worker (already terminal,
// or still queued).
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Recover runs at startup (§4.G, §7 ServerRestart): tasks stranded in a
// non-terminal state before the restart's stale threshold are marked
// failed; tasks that transitioned more recently are assumed to be in-flight
// work this process never started and are re-enqueued.
func (s *Scheduler) Recover(ctx context.Context, staleThreshold time.Duration) error {
	cutoff := time.Now().Add(-staleThreshold)

	stale, err := s.repo.ListStaleNonTerminal(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale non-terminal tasks: %w", err)
	}
	for _, t := range stale {
		if err := s.repo.FailTask(ctx, t.TaskID, string(errkind.KindServerRestart)+": server restart"); err != nil {
			s.logger.Warn("failed to mark stale task failed", "task_id", t.TaskID, "error", err)
		}
	}

	fresh, err := s.repo.ListFreshNonTerminal(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list fresh non-terminal tasks: %w", err)
	}
	for _, t := range fresh {
		s.enqueue(job{taskID: t.TaskID, issueID: t.IssueID}, t.Priority)
		metrics.QueueDepth.Inc()
	}

	s.logger.Info("recovery sweep complete", "failed", len(stale), "requeued", len(fresh))
	return nil
}
