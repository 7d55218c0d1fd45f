package domain

import (
	"fmt"
	"time"
)

// JobKeyTTL is the expiry refreshed on every job-state update, per spec.md §3.
const JobKeyTTL = 7 * 24 * time.Hour

// InflightKeyTTL is the expiry refreshed on first inflight-gauge acquisition
// within a TTL window, per spec.md §3/§4.A.
const InflightKeyTTL = 10 * time.Minute

// MaliciousIndexTTL is the retention window for the malicious-event index,
// per spec.md §3.
const MaliciousIndexTTL = 90 * 24 * time.Hour

// JobKey returns the Redis hash key for a scan job's coordination record.
func JobKey(jobID string) string {
	return fmt.Sprintf("dsxconnect:job:%s", jobID)
}

// JobTasksKey returns the reserved task-set membership key for a scan job.
func JobTasksKey(jobID string) string {
	return fmt.Sprintf("dsxconnect:job:%s:tasks", jobID)
}

// InflightKey is the single integer counter bounding concurrent scans.
const InflightKey = "dsxconnect:scanner:inflight"

// MaliciousIndexKey returns the key an escalation task id's
// connector-topology record is written under, as a JSON string value.
func MaliciousIndexKey(taskID string) string {
	return fmt.Sprintf("dsxconnect:malicious:%s", taskID)
}

// JobState is the per-scan_job_id coordination record.
type JobState struct {
	Status              string    `redis:"status"`
	Paused              string    `redis:"paused"`  // "0" or "1"
	Cancel              string    `redis:"cancel"`  // "0" or "1"
	FirstScanStartedAt  string    `redis:"first_scan_started_at"`
	LastScanStartedAt   string    `redis:"last_scan_started_at"`
	LastUpdate          string    `redis:"last_update"`
}

// IsPaused reports whether the job hash's paused flag is set.
func (j JobState) IsPaused() bool { return j.Paused == "1" }

// IsCancelled reports whether the job hash's cancel flag is set.
func (j JobState) IsCancelled() bool { return j.Cancel == "1" }

// MaliciousIndexEntry is the record written when a scan produces a
// Malicious verdict, consumed by the DIANNA escalation path so SIEM can
// reference a task id without knowing connector topology.
type MaliciousIndexEntry struct {
	ConnectorUUID string `json:"connector_uuid"`
	ConnectorURL  string `json:"connector_url"`
	Location      string `json:"location"`
	Metainfo      string `json:"metainfo"`
}
