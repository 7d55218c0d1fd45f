// Package taskqueue implements the Celery-style task queue contract
// (domain.TaskQueue): named ready lists backed by Redis, a scored
// "scheduled" set for countdown delays, and a task-state hash for
// AsyncResult introspection. Grounded on the shape of the teacher's asynq
// queue adapter (one ready list per queue name, task state tracked
// independently of the list payload) adapted from asynq's own
// process-model onto a plain Redis list/zset pair, since no pack library
// implements Celery's exact state machine.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// idGen produces sortable task ids. ulid.Monotonic's entropy source isn't
// safe for concurrent use, so calls are serialized behind a mutex; this
// gives the DLQ Postgres archive and Redis list a natural oldest-first
// (chronological) ordering by id, not just by created_at.
var (
	idMu   sync.Mutex
	idGen  = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newTaskID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idGen).String()
}

// kafkaMirror is the narrow interface kafkabridge.Bridge satisfies, kept
// local to avoid taskqueue depending on franz-go when no bridge is wired.
type kafkaMirror interface {
	Mirror(ctx context.Context, queue, scanRequestTaskID string, payload []byte) error
}

const taskStateTTL = 24 * time.Hour

func readyKey(queue string) string { return fmt.Sprintf("dsxconnect:queue:%s", queue) }
func scheduledKey(queue string) string { return fmt.Sprintf("dsxconnect:scheduled:%s", queue) }
func taskStateKey(taskID string) string { return fmt.Sprintf("dsxconnect:taskstate:%s", taskID) }

// envelope is the wire payload stored in the ready list / scheduled set.
type envelope struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Queue             string         `json:"queue"`
	Args              map[string]any `json:"args"`
	RetryCount        int            `json:"retry_count"`
	UpstreamTaskID    string         `json:"upstream_task_id"`
	ScanRequestTaskID string         `json:"scan_request_task_id"`
}

// Queue implements domain.TaskQueue against a single Redis client.
type Queue struct {
	rdb    *redis.Client
	mirror kafkaMirror
	logger *slog.Logger
}

// New wraps an existing go-redis client, shared with the state store so
// both speak to the same Redis deployment without opening a second pool.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, logger: slog.Default()}
}

// WithMirror attaches a Kafka/Redpanda bridge that every SendTask call
// mirrors its payload onto, best-effort. Passing nil disables mirroring.
func (q *Queue) WithMirror(mirror kafkaMirror) *Queue {
	q.mirror = mirror
	return q
}

var _ domain.TaskQueue = (*Queue)(nil)

// SendTask enqueues a task by name. When countdown is zero the task lands
// directly on the ready list; otherwise it is placed on the scheduled
// sorted set, scored by its ready-at unix timestamp, and promoted by
// PromoteDue once that time elapses. ScanRequestTaskID/UpstreamTaskID are
// carried verbatim so correlation survives reschedules, per spec.md §4.B.
func (q *Queue) SendTask(ctx context.Context, taskName string, args map[string]any, queue string, countdown time.Duration, opts domain.SendTaskOptions) (string, error) {
	taskID := newTaskID()
	env := envelope{
		ID:                taskID,
		Name:              taskName,
		Queue:             queue,
		Args:              args,
		RetryCount:        opts.RetryCount,
		UpstreamTaskID:    opts.UpstreamTaskID,
		ScanRequestTaskID: opts.ScanRequestTaskID,
	}
	if env.ScanRequestTaskID == "" {
		// First hop in a chain: this task IS the root correlation id.
		env.ScanRequestTaskID = taskID
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("op=Queue.SendTask: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, taskStateKey(taskID), map[string]any{
		"state":  string(domain.TaskPending),
		"result": "",
	})
	pipe.Expire(ctx, taskStateKey(taskID), taskStateTTL)
	if countdown > 0 {
		readyAt := float64(time.Now().Add(countdown).Unix())
		pipe.ZAdd(ctx, scheduledKey(queue), redis.Z{Score: readyAt, Member: payload})
	} else {
		pipe.RPush(ctx, readyKey(queue), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("op=Queue.SendTask: %w", err)
	}
	if q.mirror != nil {
		if mErr := q.mirror.Mirror(ctx, queue, env.ScanRequestTaskID, payload); mErr != nil {
			q.logger.Warn("kafka mirror failed (swallowed)", "queue", queue, "task_id", taskID, "err", mErr)
		}
	}
	return taskID, nil
}

// AsyncResult reports the last-known lifecycle state for taskID.
func (q *Queue) AsyncResult(ctx context.Context, taskID string) (domain.AsyncResult, error) {
	vals, err := q.rdb.HMGet(ctx, taskStateKey(taskID), "state", "result").Result()
	if err != nil {
		return domain.AsyncResult{}, fmt.Errorf("op=Queue.AsyncResult: %w", err)
	}
	state := domain.TaskPending
	if vals[0] != nil {
		if s, ok := vals[0].(string); ok && s != "" {
			state = domain.TaskState(s)
		}
	}
	result := ""
	if vals[1] != nil {
		if s, ok := vals[1].(string); ok {
			result = s
		}
	}
	return domain.AsyncResult{State: state, Result: result}, nil
}

// SetState records a task's lifecycle transition, called by the worker
// kernel as a task moves RECEIVED -> STARTED -> SUCCESS/FAILURE/RETRY.
func (q *Queue) SetState(ctx context.Context, taskID string, state domain.TaskState, result string) error {
	if err := q.rdb.HSet(ctx, taskStateKey(taskID), map[string]any{
		"state":  string(state),
		"result": result,
	}).Err(); err != nil {
		return fmt.Errorf("op=Queue.SetState: %w", err)
	}
	return q.rdb.Expire(ctx, taskStateKey(taskID), taskStateTTL).Err()
}

// PromoteDue moves scheduled tasks whose countdown has elapsed onto the
// ready list. Workers call this once per poll cycle ahead of Dequeue.
func (q *Queue) PromoteDue(ctx context.Context, queue string) (int, error) {
	now := float64(time.Now().Unix())
	members, err := q.rdb.ZRangeByScore(ctx, scheduledKey(queue), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("op=Queue.PromoteDue: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	pipe := q.rdb.TxPipeline()
	for _, m := range members {
		pipe.RPush(ctx, readyKey(queue), m)
		pipe.ZRem(ctx, scheduledKey(queue), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("op=Queue.PromoteDue: %w", err)
	}
	return len(members), nil
}

// Dequeue blocks up to timeout for the next ready task on queue.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*domain.Task, error) {
	res, err := q.rdb.BLPop(ctx, timeout, readyKey(queue)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=Queue.Dequeue: %w", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("op=Queue.Dequeue: %w", err)
	}
	return &domain.Task{
		ID:                env.ID,
		Name:              env.Name,
		Queue:             env.Queue,
		RetryCount:        env.RetryCount,
		UpstreamTaskID:    env.UpstreamTaskID,
		ScanRequestTaskID: env.ScanRequestTaskID,
		Args:              env.Args,
	}, nil
}

// Requeue re-sends a task onto its own queue after a reschedule decision,
// preserving its id and correlation metadata. RetryCount is written as the
// caller set it; the kernel increments it before a retry reschedule.
func (q *Queue) Requeue(ctx context.Context, t *domain.Task, countdown time.Duration) error {
	env := envelope{
		ID:                t.ID,
		Name:              t.Name,
		Queue:             t.Queue,
		Args:              t.Args,
		RetryCount:        t.RetryCount,
		UpstreamTaskID:    t.UpstreamTaskID,
		ScanRequestTaskID: t.ScanRequestTaskID,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("op=Queue.Requeue: %w", err)
	}
	if countdown <= 0 {
		return q.rdb.RPush(ctx, readyKey(t.Queue), payload).Err()
	}
	readyAt := float64(time.Now().Add(countdown).Unix())
	return q.rdb.ZAdd(ctx, scheduledKey(t.Queue), redis.Z{Score: readyAt, Member: payload}).Err()
}
