package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// JobControl reads and updates the per-job control hash (pause/cancel
// flags and scan timestamps) that every scan-request task consults before
// touching the scanner, per spec.md §4.D steps 2-3.
type JobControl struct {
	store *Store
}

// NewJobControl builds a JobControl bound to store.
func NewJobControl(store *Store) *JobControl {
	return &JobControl{store: store}
}

// Load fetches the current control state for a job, defaulting to a clean
// (not paused, not cancelled) state if no hash yet exists.
func (j *JobControl) Load(ctx context.Context, jobID string) (domain.JobState, error) {
	vals, err := j.store.HMGet(ctx, domain.JobKey(jobID), "status", "paused", "cancel", "first_scan_started_at", "last_scan_started_at", "last_update")
	if err != nil {
		return domain.JobState{}, fmt.Errorf("op=JobControl.Load: %w", err)
	}
	return domain.JobState{
		Status:             vals[0],
		Paused:             vals[1],
		Cancel:             vals[2],
		FirstScanStartedAt: vals[3],
		LastScanStartedAt:  vals[4],
		LastUpdate:         vals[5],
	}, nil
}

// RecordScanStart stamps first_scan_started_at (once, via HSETNX) and
// unconditionally overwrites last_scan_started_at/last_update, matching the
// bookkeeping spec.md §4.D step 2 requires before every scan attempt.
func (j *JobControl) RecordScanStart(ctx context.Context, jobID string, now time.Time) error {
	key := domain.JobKey(jobID)
	stamp := now.Format(time.RFC3339Nano)
	if _, err := j.store.HSetNX(ctx, key, "first_scan_started_at", stamp); err != nil {
		return fmt.Errorf("op=JobControl.RecordScanStart: %w", err)
	}
	if err := j.store.HSet(ctx, key, map[string]any{
		"last_scan_started_at": stamp,
		"last_update":          stamp,
	}); err != nil {
		return fmt.Errorf("op=JobControl.RecordScanStart: %w", err)
	}
	return j.store.Expire(ctx, key, domain.JobKeyTTL)
}

// SetStatus updates the job's status field and refreshes last_update.
func (j *JobControl) SetStatus(ctx context.Context, jobID, status string, now time.Time) error {
	key := domain.JobKey(jobID)
	if err := j.store.HSet(ctx, key, map[string]any{
		"status":      status,
		"last_update": now.Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("op=JobControl.SetStatus: %w", err)
	}
	return j.store.Expire(ctx, key, domain.JobKeyTTL)
}

// SetPaused flips the job's pause flag, consulted by every scan-request
// task before step 4's pause check.
func (j *JobControl) SetPaused(ctx context.Context, jobID string, paused bool, now time.Time) error {
	return j.setFlag(ctx, jobID, "paused", paused, now)
}

// SetCancelled flips the job's cancel flag.
func (j *JobControl) SetCancelled(ctx context.Context, jobID string, cancelled bool, now time.Time) error {
	return j.setFlag(ctx, jobID, "cancel", cancelled, now)
}

func (j *JobControl) setFlag(ctx context.Context, jobID, field string, set bool, now time.Time) error {
	val := "0"
	if set {
		val = "1"
	}
	key := domain.JobKey(jobID)
	if err := j.store.HSet(ctx, key, map[string]any{
		field:         val,
		"last_update": now.Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("op=JobControl.setFlag: %w", err)
	}
	return j.store.Expire(ctx, key, domain.JobKeyTTL)
}

// MaliciousIndex records a job/task pair associated with a malicious
// verdict so operators can look up which connector location produced it,
// per spec.md §4.D's verdict-translation step.
type MaliciousIndex struct {
	store *Store
}

// NewMaliciousIndex builds a MaliciousIndex bound to store.
func NewMaliciousIndex(store *Store) *MaliciousIndex {
	return &MaliciousIndex{store: store}
}

// Record stores entry under taskID with the standard malicious-index TTL.
func (m *MaliciousIndex) Record(ctx context.Context, taskID string, entry domain.MaliciousIndexEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("op=MaliciousIndex.Record: %w", err)
	}
	key := domain.MaliciousIndexKey(taskID)
	if err := m.store.Set(ctx, key, string(payload), domain.MaliciousIndexTTL); err != nil {
		return fmt.Errorf("op=MaliciousIndex.Record: %w", err)
	}
	return nil
}
