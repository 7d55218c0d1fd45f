// Package dianna implements the DIANNA deep-analysis worker: chunked
// upload with running SHA-256, the upload-response terminal decision
// tree, and a bounded poll loop for the asynchronous path. Grounded on
// the polling-loop shape implied by the teacher's DLQ cooldown-then-retry
// goroutine, using cenkalti/backoff/v4 for the inter-poll delay.
package dianna

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	diannaclient "github.com/deep-instinct/dsx-connect/internal/adapter/dianna"
	"github.com/deep-instinct/dsx-connect/internal/adapter/connector"
	"github.com/deep-instinct/dsx-connect/internal/adapter/notify"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

var terminalUploadStatuses = map[string]bool{
	"FAILED": true, "ERROR": true, "CANCELLED": true, "UNSUPPORTED_FILE_TYPE": true,
}

var terminalResultStatuses = map[string]bool{
	"SUCCESS": true, "FAILED": true, "ERROR": true, "CANCELLED": true, "UNSUPPORTED_FILE_TYPE": true,
}

// Worker implements kernel.Handler for the ANALYZE queue.
type Worker struct {
	Connector         *connector.Client
	Dianna            *diannaclient.Client
	Notifier          *notify.Notifier
	ChunkSizeBytes    int64
	PollInterval      time.Duration
	PollTimeout       time.Duration
	Logger            *slog.Logger
}

// Name identifies this worker for metrics/logging/DLQ records.
func (w *Worker) Name() string { return "dianna_analyze" }

// Queue is the Redis ready list this worker consumes from.
func (w *Worker) Queue() string { return domain.QueueAnalyze }

type args struct {
	req             domain.ScanRequest
	archivePassword string
}

func decodeArgs(raw map[string]any) (args, error) {
	req, err := domain.DecodeScanRequest(raw)
	if err != nil {
		return args{}, err
	}
	pw, _ := raw["archive_password"].(string)
	return args{req: req, archivePassword: pw}, nil
}

// Execute runs the chunked-upload protocol then, depending on the upload
// response, the synchronous or asynchronous result-polling branch. Every
// branch returns a JSON result payload carrying a status string. Failures
// are reported to the UI and returned as status=ERROR without retry or
// DLQ, so this worker never returns an error from Execute; the kernel
// always records it as a success.
func (w *Worker) Execute(ctx context.Context, task *domain.Task) (string, error) {
	log := w.Logger.With("task_id", task.ID, "scan_request_task_id", task.ScanRequestTaskID)

	a, decodeErr := decodeArgs(task.Args)
	if decodeErr != nil {
		return w.terminal(task, "ERROR", "", "", "", decodeErr.Error(), log), nil
	}

	body, contentLength, streamErr := w.Connector.Stream(ctx, a.req.EffectiveConnectorURL(), a.req.Location, a.req.Metainfo)
	if streamErr != nil {
		return w.terminal(task, "ERROR", "", "", "", streamErr.Error(), log), nil
	}
	defer body.Close()

	totalBytes := contentLength
	var fullBuf []byte
	if totalBytes <= 0 {
		buf, n, err := diannaclient.ReadFullyForSize(body)
		if err != nil {
			return w.terminal(task, "ERROR", "", "", "", err.Error(), log), nil
		}
		fullBuf = buf
		totalBytes = n
		body = io.NopCloser(bytes.NewReader(buf))
	}

	hasher := sha256.New()
	chunkSize := w.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = 4 << 20
	}

	var uploadID string
	var lastResp diannaclient.UploadResponse
	var offset int64
	reader := body
	if fullBuf != nil {
		reader = io.NopCloser(bytes.NewReader(fullBuf))
	}

	for offset < totalBytes {
		end := offset + chunkSize
		if end > totalBytes {
			end = totalBytes
		}
		chunk := make([]byte, end-offset)
		if _, err := io.ReadFull(reader, chunk); err != nil {
			return w.terminal(task, "ERROR", uploadID, "", "", err.Error(), log), nil
		}
		hasher.Write(chunk)

		resp, err := w.Dianna.PostChunk(ctx, diannaclient.ChunkRequest{
			StartByte:       offset,
			EndByte:         end,
			TotalBytes:      totalBytes,
			UploadID:        uploadID,
			FileName:        a.req.Location,
			FileChunk:       diannaclient.EncodeChunk(chunk),
			ArchivePassword: a.archivePassword,
		})
		if err != nil {
			return w.terminal(task, "ERROR", uploadID, "", "", err.Error(), log), nil
		}
		if uploadID == "" && resp.UploadID != "" {
			uploadID = resp.UploadID
		}
		lastResp = resp
		offset = end
	}

	sha256Hex := hex.EncodeToString(hasher.Sum(nil))

	// Step 1: terminal upload-response statuses short-circuit, no polling.
	if terminalUploadStatuses[strings.ToUpper(lastResp.Status)] {
		return w.terminal(task, strings.ToUpper(lastResp.Status), uploadID, lastResp.AnalysisID, sha256Hex, "", log), nil
	}

	// Step 2: synchronous path — analysisId present, no upload_id.
	if lastResp.AnalysisID != "" && lastResp.UploadID == "" {
		return w.poll(ctx, task, lastResp.AnalysisID, "", sha256Hex, log), nil
	}

	// Step 3: asynchronous path — upload_id present.
	if uploadID != "" {
		w.emit(task, "QUEUED", uploadID, "", sha256Hex)
		return w.poll(ctx, task, "", uploadID, sha256Hex, log), nil
	}

	return w.terminal(task, "ERROR", "", "", sha256Hex, "no upload_id or analysisId in response", log), nil
}

// poll drives the bounded poll loop for either DIANNA identifier shape
// (analysisID for the synchronous path, uploadID for the asynchronous
// path — spec.md's open question directs accepting both as equivalent
// poll keys), treating non-2xx responses as transient per spec.md §4.F.3,
// bounded by PollTimeout.
func (w *Worker) poll(ctx context.Context, task *domain.Task, analysisID, uploadID, sha256Hex string, log *slog.Logger) string {
	key := uploadID
	if key == "" {
		key = analysisID
	}
	deadline := time.Now().Add(w.PollTimeout)
	interval := w.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	bo := backoff.NewConstantBackOff(interval)

	var final diannaclient.ResultResponse
	for time.Now().Before(deadline) {
		resp, err := w.Dianna.PollResult(ctx, key)
		if err != nil {
			log.Warn("dianna poll transient error (continuing)", "err", err)
			time.Sleep(bo.NextBackOff())
			continue
		}
		final = resp
		if terminalResultStatuses[strings.ToUpper(resp.Status)] {
			break
		}
		time.Sleep(bo.NextBackOff())
	}

	status := strings.ToUpper(final.Status)
	message := ""
	if !terminalResultStatuses[status] {
		message = "poll timed out before a terminal status was observed"
		status = "ERROR"
	}
	return w.terminal(task, status, uploadID, analysisID, sha256Hex, message, log)
}

func (w *Worker) emit(task *domain.Task, status, uploadID, analysisID, sha256Hex string) {
	event := map[string]any{
		"event":                "dianna_analysis",
		"status":               status,
		"scan_request_task_id": task.ScanRequestTaskID,
		"upload_id":            uploadID,
		"analysis_id":          analysisID,
		"sha256":               sha256Hex,
	}
	w.Notifier.PublishScanResultAsync(event)
	w.Notifier.EmitSyslog("dianna_analysis", event)
}

// terminal emits the final UI/syslog event and renders the spec's
// {status, analysis_id?, upload_id?, response?, message?} payload as the
// task's AsyncResult string.
func (w *Worker) terminal(task *domain.Task, status, uploadID, analysisID, sha256Hex, message string, log *slog.Logger) string {
	w.emit(task, status, uploadID, analysisID, sha256Hex)
	if message != "" {
		log.Error("dianna analysis terminal error", "status", status, "err", message)
	} else {
		log.Info("dianna analysis terminal", "status", status)
	}
	payload := map[string]any{"status": status}
	if uploadID != "" {
		payload["upload_id"] = uploadID
	}
	if analysisID != "" {
		payload["analysis_id"] = analysisID
	}
	if message != "" {
		payload["message"] = message
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(out)
}
