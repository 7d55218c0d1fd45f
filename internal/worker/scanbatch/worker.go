// Package scanbatch implements the batch worker: validates every element
// of a batch up front (all-or-nothing), resolves the effective batch size,
// and re-enqueues each element onto REQUEST in windows of that size.
// Grounded on handleEvaluate's per-item loop shape and the teacher's
// straight-to-DLQ path when RetryManager.ShouldRetry returns false
// (RETRY_GROUPS = none for this worker, per spec.md §4.E).
package scanbatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deep-instinct/dsx-connect/internal/adapter/observability"
	"github.com/deep-instinct/dsx-connect/internal/adapter/queue/taskqueue"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// Worker implements kernel.Handler for the REQUEST_BATCH queue.
type Worker struct {
	TaskQueue        *taskqueue.Queue
	DefaultBatchSize int
	Logger           *slog.Logger
}

// Name identifies this worker for metrics/logging/DLQ records.
func (w *Worker) Name() string { return "scan_request_batch" }

// Queue is the Redis ready list this worker consumes from.
func (w *Worker) Queue() string { return domain.QueueRequestBatch }

// Execute validates the whole batch, resolves the effective window size,
// and re-enqueues each element onto REQUEST preserving the root id. Any
// failure here is surfaced to the caller unconditionally: this worker's
// RetryPolicy has MaxRetries=0, so the kernel routes straight to DLQ.
func (w *Worker) Execute(ctx context.Context, task *domain.Task) (string, error) {
	reqs, explicitBatchSize, err := domain.DecodeScanRequestBatch(task.Args)
	if err != nil {
		return "", err
	}
	if len(reqs) == 0 {
		return "", fmt.Errorf("empty batch: %w", domain.ErrMalformedScanRequest)
	}
	for i, r := range reqs {
		if validateErr := r.Validate(); validateErr != nil {
			return "", fmt.Errorf("batch element %d: %w", i, validateErr)
		}
	}

	batchSize := w.DefaultBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	if explicitBatchSize != nil && *explicitBatchSize > 0 {
		batchSize = *explicitBatchSize
	}

	enqueued := 0
	for start := 0; start < len(reqs); start += batchSize {
		end := start + batchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		for _, r := range reqs[start:end] {
			args, argErr := domain.ArgsFrom(r)
			if argErr != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrMalformedScanRequest, argErr)
			}
			opts := domain.SendTaskOptions{
				ScanRequestTaskID: task.ScanRequestTaskID,
				UpstreamTaskID:    task.ID,
			}
			if _, sendErr := w.TaskQueue.SendTask(ctx, domain.TaskScanRequest, args, domain.QueueRequest, 0, opts); sendErr != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrQueueDispatch, sendErr)
			}
			observability.EnqueueTask(domain.QueueRequest)
			enqueued++
		}
	}

	w.Logger.Info("batch re-enqueued", "task_id", task.ID, "count", enqueued, "batch_size", batchSize)
	return fmt.Sprintf("ENQUEUED:%d", enqueued), nil
}
