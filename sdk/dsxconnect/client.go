// Package dsxconnect is a thin SDK for operators driving dsx-connect's
// admin surface (cmd/dsxctl): check job state, issue job-control commands,
// and read the malicious index, DLQ and inflight gauge. It does not
// enqueue scan requests or read AsyncResult state. Mirrors the shape of the
// original Python `dsx_connect_sdk` client, rebuilt as a plain Go HTTP
// client in the teacher's streaming-client idiom (scoped *http.Client,
// context-first methods, op=...: %w error wrapping).
package dsxconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// Client talks to a dsx-connect admin HTTP surface (cmd/dsxctl).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client bound to the admin surface's base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// JobState fetches the current pause/cancel/timestamp state for a scan job.
func (c *Client) JobState(ctx context.Context, jobID string) (domain.JobState, error) {
	var state domain.JobState
	if err := c.getJSON(ctx, "/jobs/"+jobID, &state); err != nil {
		return domain.JobState{}, fmt.Errorf("op=dsxconnect.JobState: %w", err)
	}
	return state, nil
}

// PauseJob pauses every in-flight and future scan-request task for jobID.
func (c *Client) PauseJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/jobs/"+jobID+"/pause")
}

// ResumeJob clears a job's pause flag.
func (c *Client) ResumeJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/jobs/"+jobID+"/resume")
}

// CancelJob marks a job cancelled; queued tasks for it are dropped rather
// than scanned.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/jobs/"+jobID+"/cancel")
}

// MaliciousEntry looks up the connector topology recorded against a
// scan_request_task_id that produced a Malicious verdict.
func (c *Client) MaliciousEntry(ctx context.Context, taskID string) (domain.MaliciousIndexEntry, error) {
	var entry domain.MaliciousIndexEntry
	if err := c.getJSON(ctx, "/malicious/"+taskID, &entry); err != nil {
		return domain.MaliciousIndexEntry{}, fmt.Errorf("op=dsxconnect.MaliciousEntry: %w", err)
	}
	return entry, nil
}

// DLQEntries lists up to 100 dead-lettered records for a worker family.
func (c *Client) DLQEntries(ctx context.Context, workerName string) ([]domain.DLQRecord, error) {
	var records []domain.DLQRecord
	if err := c.getJSON(ctx, "/dlq/"+workerName, &records); err != nil {
		return nil, fmt.Errorf("op=dsxconnect.DLQEntries: %w", err)
	}
	return records, nil
}

// Inflight reports the currently observed scanner inflight count.
func (c *Client) Inflight(ctx context.Context) (int64, error) {
	var out struct {
		Inflight int64 `json:"inflight"`
	}
	if err := c.getJSON(ctx, "/scanner/inflight", &out); err != nil {
		return 0, fmt.Errorf("op=dsxconnect.Inflight: %w", err)
	}
	return out.Inflight, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("op=dsxconnect.post: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("op=dsxconnect.post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("op=dsxconnect.post: status %d", resp.StatusCode)
	}
	return nil
}
