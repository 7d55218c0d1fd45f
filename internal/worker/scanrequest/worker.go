// Package scanrequest implements the scan-request worker: the twelve-step
// algorithm that validates a request, honors job pause/cancel and scanner
// backpressure, streams a file from its connector, scans it with DSXA, and
// dispatches the resulting verdict. Grounded on the teacher's
// handleEvaluate (per-stage structured logging, defensive validation
// up-front) and retry_manager.go's upstream-failure classification.
package scanrequest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deep-instinct/dsx-connect/internal/adapter/connector"
	"github.com/deep-instinct/dsx-connect/internal/adapter/observability"
	"github.com/deep-instinct/dsx-connect/internal/adapter/queue/taskqueue"
	"github.com/deep-instinct/dsx-connect/internal/adapter/scanner"
	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// Worker implements kernel.Handler for the REQUEST queue.
type Worker struct {
	Connector     *connector.Client
	Scanner       *scanner.Client
	Slots         *redisstate.ScannerSlots
	JobControl    *redisstate.JobControl
	MaliciousIdx  *redisstate.MaliciousIndex
	TaskQueue     *taskqueue.Queue
	MaxFileSize   int64
	Logger        *slog.Logger
}

// Name identifies this worker for metrics/logging/DLQ records.
func (w *Worker) Name() string { return "scan_request" }

// Queue is the Redis ready list this worker consumes from.
func (w *Worker) Queue() string { return domain.QueueRequest }

// Execute runs the twelve-step scan-request algorithm in spec order.
// PAUSED/CANCELLED/BACKPRESSURE/SKIPPED paths return nil: they are not
// task failures, so the kernel neither retries nor DLQs them, satisfying
// invariant I3 (pause/backpressure reschedules never consume retry budget).
func (w *Worker) Execute(ctx context.Context, task *domain.Task) (string, error) {
	log := w.Logger.With("task_id", task.ID, "scan_request_task_id", task.ScanRequestTaskID)

	// Step 1: validate.
	req, decodeErr := domain.DecodeScanRequest(task.Args)
	if decodeErr != nil {
		return "", decodeErr
	}
	if validateErr := req.Validate(); validateErr != nil {
		return "", validateErr
	}

	// Step 3: job timestamp bookkeeping, best-effort.
	if req.ScanJobID != nil && *req.ScanJobID != "" {
		if bkErr := w.JobControl.RecordScanStart(ctx, *req.ScanJobID, time.Now()); bkErr != nil {
			log.Warn("job timestamp bookkeeping failed (swallowed)", "err", bkErr)
		}
	}

	// Step 4: pause/cancel check.
	if req.ScanJobID != nil && *req.ScanJobID != "" {
		state, loadErr := w.JobControl.Load(ctx, *req.ScanJobID)
		if loadErr != nil {
			log.Warn("job state load failed (swallowed, proceeding unpaused)", "err", loadErr)
		} else {
			if state.IsCancelled() {
				log.Info("job cancelled, dropping task")
				return "CANCELLED", nil
			}
			if state.IsPaused() {
				countdown := time.Duration(5+rand.Intn(6)) * time.Second
				if rqErr := w.TaskQueue.Requeue(ctx, task, countdown); rqErr != nil {
					log.Error("pause reschedule failed, falling back to fixed 5s retry", "err", rqErr)
					_ = w.TaskQueue.Requeue(ctx, task, 5*time.Second)
				}
				log.Info("job paused, rescheduled self", "countdown", countdown)
				return "PAUSED", nil
			}
		}
	}

	// Step 5: preflight size skip.
	scanGUID := uuid.NewString()
	if req.SizeInBytes != nil && *req.SizeInBytes > w.MaxFileSize {
		if err := w.dispatchOversize(ctx, task, req, scanGUID, *req.SizeInBytes, log); err != nil {
			return "", err
		}
		return "SKIPPED_FILE_TOO_LARGE", nil
	}

	// Step 6: backpressure acquire.
	acquired, observed, acqErr := w.Slots.Acquire(ctx)
	if acqErr != nil {
		return "", fmt.Errorf("%w: acquiring scanner slot: %v", domain.ErrDsxaServer, acqErr)
	}
	observability.ObserveInflight(observed)
	if !acquired {
		countdown := time.Duration(3+rand.Intn(4)) * time.Second
		if rqErr := w.TaskQueue.Requeue(ctx, task, countdown); rqErr != nil {
			log.Error("backpressure reschedule failed", "err", rqErr)
			return "", fmt.Errorf("%w: backpressure reschedule: %v", domain.ErrQueueDispatch, rqErr)
		}
		log.Info("backpressure: rescheduled self", "countdown", countdown, "observed_inflight", observed)
		return "BACKPRESSURE", nil
	}
	// Step 12: always release, regardless of outcome below.
	defer func() {
		if relErr := w.Slots.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("scanner slot release failed (swallowed)", "err", relErr)
		}
	}()

	scanStart := time.Now()

	// Step 7: stream from connector.
	body, contentLength, streamErr := w.Connector.Stream(ctx, req.EffectiveConnectorURL(), req.Location, req.Metainfo)
	if streamErr != nil {
		return "", streamErr
	}
	defer body.Close()

	effectiveSize := contentLength
	if effectiveSize <= 0 && req.SizeInBytes != nil {
		effectiveSize = *req.SizeInBytes
	}
	if effectiveSize > w.MaxFileSize {
		if err := w.dispatchOversize(ctx, task, req, scanGUID, effectiveSize, log); err != nil {
			return "", err
		}
		return "SKIPPED_FILE_TOO_LARGE", nil
	}

	// Step 8: scan with DSXA.
	metadataHeader := scanner.BuildMetadataHeader(req.Location, req.Metainfo, req.ConnectorName(), task.ScanRequestTaskID)
	verdictValue, details, fileInfo, scanDurationUS, scanErr := w.Scanner.Scan(ctx, req.Location, metadataHeader, body, contentLength)
	if scanErr != nil {
		return "", scanErr
	}

	// Step 9: verdict translation, including the "initializing" transient case.
	if verdictValue == domain.VerdictNotScanned && strings.Contains(strings.ToLower(details.Reason), "initializing") {
		return "", fmt.Errorf("%w: scanner still initializing", domain.ErrDsxaServer)
	}
	if fileInfo.FileSizeInBytes == 0 && effectiveSize > 0 {
		fileInfo.FileSizeInBytes = effectiveSize
	}

	// Step 10: elapsed annotation.
	elapsedMS := float64(time.Since(scanStart).Microseconds()) / 1000.0

	verdict := domain.Verdict{
		ScanGUID:                   scanGUID,
		Verdict:                    verdictValue,
		VerdictDetails:             details,
		FileInfo:                   fileInfo,
		ScanDurationUS:             scanDurationUS,
		DsxconnectRequestElapsedMS: elapsedMS,
	}

	if verdictValue == domain.VerdictMalicious && req.Connector != nil {
		entry := domain.MaliciousIndexEntry{
			ConnectorUUID: req.Connector.UUID,
			ConnectorURL:  req.Connector.URL,
			Location:      req.Location,
			Metainfo:      req.Metainfo,
		}
		if recErr := w.MaliciousIdx.Record(ctx, task.ScanRequestTaskID, entry); recErr != nil {
			log.Warn("malicious index write failed (swallowed)", "err", recErr)
		}
	}

	observability.ObserveScanDuration(string(verdictValue), elapsedMS)

	// Step 11: dispatch.
	if err := w.dispatchVerdict(ctx, task, req, verdict); err != nil {
		return "", err
	}
	return "SUCCESS", nil
}

// dispatchOversize synthesizes and dispatches the NonCompliant verdict for
// step 5/7's oversize-skip path, satisfying invariant I5 (idempotent:
// exactly one synthetic verdict no matter which check triggers it).
func (w *Worker) dispatchOversize(ctx context.Context, task *domain.Task, req domain.ScanRequest, scanGUID string, sizeInBytes int64, log *slog.Logger) error {
	verdict := domain.NewOversizeVerdict(scanGUID, sizeInBytes)
	log.Info("oversize skip", "size_in_bytes", sizeInBytes, "max_file_size_bytes", w.MaxFileSize)
	observability.ObserveScanDuration(string(verdict.Verdict), 0)
	return w.dispatchVerdict(ctx, task, req, verdict)
}

func (w *Worker) dispatchVerdict(ctx context.Context, task *domain.Task, req domain.ScanRequest, verdict domain.Verdict) error {
	args := map[string]any{
		"request": must(domain.ArgsFrom(req))["request"],
		"verdict": verdict,
	}
	opts := domain.SendTaskOptions{
		ScanRequestTaskID: task.ScanRequestTaskID,
		UpstreamTaskID:    task.ID,
	}
	if _, err := w.TaskQueue.SendTask(ctx, domain.TaskScanVerdict, args, domain.QueueVerdict, 0, opts); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueDispatch, err)
	}
	observability.EnqueueTask(domain.QueueVerdict)
	return nil
}

func must(m map[string]any, err error) map[string]any {
	if err != nil {
		return map[string]any{}
	}
	return m
}
