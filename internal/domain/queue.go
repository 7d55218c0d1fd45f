package domain

import "time"

// Queue names, environment-agnostic subjects. The task queue adapter stores
// each subject under the Redis keys "dsxconnect:queue:<subject>" and
// "dsxconnect:scheduled:<subject>"; the keys carry no environment prefix.
const (
	QueueRequest      = "REQUEST"
	QueueRequestBatch = "REQUEST_BATCH"
	QueueVerdict      = "VERDICT"
	QueueResult       = "RESULT"
	QueueNotification = "NOTIFICATION"
	QueueAnalyze      = "ANALYZE"
)

// Task identifiers, stable dotted strings independent of environment.
const (
	TaskScanRequest       = "dsx_connect.tasks.scan.request"
	TaskScanRequestBatch  = "dsx_connect.tasks.scan.request.batch"
	TaskScanVerdict       = "dsx_connect.tasks.scan.verdict"
	TaskScanResult        = "dsx_connect.tasks.scan.result"
	TaskScanResultNotify  = "dsx_connect.tasks.scan.result.notify"
	TaskDiannaAnalyze     = "dsx_connect.tasks.dianna.analyze"
)

// TaskState mirrors the Celery-style lifecycle states a task queue adapter
// must expose via AsyncResult, per spec.md §4.B.
type TaskState string

// Task states.
const (
	TaskPending  TaskState = "PENDING"
	TaskReceived TaskState = "RECEIVED"
	TaskStarted  TaskState = "STARTED"
	TaskRetry    TaskState = "RETRY"
	TaskSuccess  TaskState = "SUCCESS"
	TaskFailure  TaskState = "FAILURE"
	TaskRevoked  TaskState = "REVOKED"
)

// Task is the unit of dispatch handled by a worker's Execute method.
// ScanRequestTaskID carries the root correlation id; Args carries the
// worker-specific arguments (e.g. a ScanRequest payload, a batch of ScanRequests).
type Task struct {
	ID                 string
	Name               string
	Queue              string
	RetryCount         int
	UpstreamTaskID      string
	ScanRequestTaskID  string
	Args               map[string]any
}

// AsyncResult is the introspection result returned by TaskQueue.AsyncResult.
type AsyncResult struct {
	State  TaskState
	Result string
}

// TaskQueue is the contract exposed by the task queue adapter (component B):
// named work queues with at-least-once delivery, retry scheduling with
// countdown, and task-state introspection.
type TaskQueue interface {
	// SendTask enqueues a task by task name onto the named queue. Countdown,
	// when non-zero, schedules a minimum visibility delay. The adapter
	// MUST preserve ScanRequestTaskID across reschedules.
	SendTask(ctx Context, taskName string, args map[string]any, queue string, countdown time.Duration, opts SendTaskOptions) (string, error)
	// AsyncResult reports the current lifecycle state of a previously sent task.
	AsyncResult(ctx Context, taskID string) (AsyncResult, error)
}

// SendTaskOptions carries the correlation metadata a reschedule or
// downstream enqueue must thread through, mirroring spec.md §4.B's
// requirement that the root scan_request_task_id survive every hop.
type SendTaskOptions struct {
	ScanRequestTaskID string
	UpstreamTaskID    string
	RetryCount        int
}
