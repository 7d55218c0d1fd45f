// Package kernel provides the shared worker lifecycle every task handler
// (scan-request, batch, DIANNA) runs inside: dequeue, dispatch, classify
// failures, consult the retry policy, reschedule with exponential backoff
// or emit to the dead-letter queue. Grounded on the teacher's RetryManager,
// generalized from a single Redpanda consumer group onto the taskqueue
// adapter's named Redis lists.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/deep-instinct/dsx-connect/internal/adapter/observability"
	"github.com/deep-instinct/dsx-connect/internal/adapter/queue/taskqueue"
	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// Handler is implemented by each concrete worker (scan-request, batch,
// DIANNA). Execute does the domain work for one task; returning an error
// routes the task through the kernel's retry/DLQ decision tree.
type Handler interface {
	// Name identifies the worker for metrics/logging/DLQ records.
	Name() string
	// Queue is the Redis ready-list this worker consumes from.
	Queue() string
	// Execute performs the task's domain work and returns the spec's
	// uppercase status token (e.g. "SUCCESS", "PAUSED", "BACKPRESSURE",
	// "SKIPPED_FILE_TOO_LARGE", "ENQUEUED:<n>") on success.
	Execute(ctx context.Context, task *domain.Task) (string, error)
}

// dlqArchive is the narrow interface the optional Postgres DLQ mirror
// satisfies, kept local so kernel never depends on pgx unless a mirror is
// actually attached.
type dlqArchive interface {
	Record(ctx context.Context, workerName string, rec domain.DLQRecord) error
}

// Base drives the dequeue/dispatch/retry loop common to every worker.
type Base struct {
	Handler     Handler
	Queue       *taskqueue.Queue
	Store       *redisstate.Store
	Policy      domain.RetryPolicy
	Logger      *slog.Logger
	PollTimeout time.Duration
	Archive     dlqArchive

	authFailed atomic.Bool
}

// NewBase constructs a Base with a sane default poll timeout.
func NewBase(h Handler, q *taskqueue.Queue, store *redisstate.Store, policy domain.RetryPolicy, logger *slog.Logger) *Base {
	return &Base{
		Handler:     h,
		Queue:       q,
		Store:       store,
		Policy:      policy,
		Logger:      logger.With("worker", h.Name()),
		PollTimeout: 5 * time.Second,
	}
}

// Run blocks, dispatching tasks until ctx is cancelled.
func (b *Base) Run(ctx context.Context) error {
	queueName := b.Handler.Queue()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := b.Queue.PromoteDue(ctx, queueName); err != nil {
			b.Logger.Error("promote due tasks failed", "err", err)
		}

		task, err := b.Queue.Dequeue(ctx, queueName, b.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			b.Logger.Error("dequeue failed", "err", err)
			continue
		}
		if task == nil {
			continue
		}
		b.dispatch(ctx, task)
	}
}

func (b *Base) dispatch(ctx context.Context, task *domain.Task) {
	log := b.Logger.With(
		"task_id", task.ID,
		"scan_request_task_id", task.ScanRequestTaskID,
		"retry_count", task.RetryCount,
	)

	if b.authFailed.Load() {
		log.Warn("skipping dispatch: worker is in sticky auth-failure state")
		b.emitDLQ(ctx, task, domain.ErrDsxaAuth, "sticky auth failure")
		return
	}

	_ = b.Queue.SetState(ctx, task.ID, domain.TaskStarted, "")
	start := time.Now()
	result, err := b.Handler.Execute(ctx, task)
	elapsed := time.Since(start)

	if err == nil {
		_ = b.Queue.SetState(ctx, task.ID, domain.TaskSuccess, result)
		observability.CompleteTask(b.Handler.Name(), "success")
		log.Info("task completed", "result", result, "elapsed_ms", elapsed.Milliseconds())
		return
	}

	category := domain.Classify(err)
	if category == domain.CategoryDsxaAuthError {
		if b.authFailed.CompareAndSwap(false, true) {
			log.Error("dsxa auth failure: entering sticky failure state for this process", "err", err)
		}
	}

	if b.Policy.ShouldRetry(category, task.RetryCount) {
		backoff := b.Policy.Backoff(category, task.RetryCount)
		task.RetryCount++
		_ = b.Queue.SetState(ctx, task.ID, domain.TaskRetry, err.Error())
		observability.RetryTask(b.Handler.Name(), string(category))
		log.Warn("task failed, rescheduling", "category", category, "backoff", backoff, "err", err)
		if rqErr := b.Queue.Requeue(ctx, task, backoff); rqErr != nil {
			log.Error("requeue failed, routing to dlq instead", "err", rqErr)
			b.emitDLQ(ctx, task, err, "requeue failed")
		}
		return
	}

	_ = b.Queue.SetState(ctx, task.ID, domain.TaskFailure, err.Error())
	observability.CompleteTask(b.Handler.Name(), "failure")
	log.Error("task failed, not retryable: routing to dlq", "category", category, "err", err)
	b.emitDLQ(ctx, task, err, "not retryable")
}

func (b *Base) emitDLQ(ctx context.Context, task *domain.Task, err error, reason string) {
	observability.DLQTask(b.Handler.Name(), reason)
	errorClass := string(domain.Classify(err))
	if errorClass == string(domain.CategoryUnclassified) {
		errorClass = fmt.Sprintf("%T", err)
	}
	record := domain.DLQRecord{
		Reason:             reason,
		ErrorClass:         errorClass,
		ErrorMessage:       err.Error(),
		ScanRequestTaskID:  task.ScanRequestTaskID,
		CurrentTaskID:      task.ID,
		UpstreamTaskID:     task.UpstreamTaskID,
		RetryCount:         task.RetryCount,
		PayloadSnapshot:    task.Args,
		CreatedAt:          time.Now(),
	}
	payload, mErr := json.Marshal(record)
	if mErr != nil {
		b.Logger.Error("failed to marshal dlq record", "err", mErr)
		return
	}
	if pErr := b.Store.RPush(ctx, domain.DLQListKey(b.Handler.Name()), string(payload)); pErr != nil {
		b.Logger.Error("failed to push dlq record", "err", pErr)
	}
	if b.Archive != nil {
		if aErr := b.Archive.Record(ctx, b.Handler.Name(), record); aErr != nil {
			b.Logger.Warn("dlq postgres archive write failed (swallowed)", "err", aErr)
		}
	}
}

// ResetAuthFailure clears the sticky auth-failure flag. The dispatch loop
// never calls it and nothing in cmd/ does, so in a running worker the state
// lasts until the process restarts.
func (b *Base) ResetAuthFailure() {
	b.authFailed.Store(false)
}
