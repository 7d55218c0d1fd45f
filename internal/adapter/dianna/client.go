// Package dianna implements the chunked-upload and polling HTTP client for
// the DIANNA deep-analysis service, per spec.md §4.F. Built from the
// teacher's streaming HTTP client conventions (scoped *http.Client,
// otelhttp wrapping, fmt.Errorf("op=...: %w", err) wrapping) since no
// chunked-uploader example survived into the final pack.
package dianna

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client uploads file chunks and polls result status against DIANNA's
// management endpoint.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// New builds a Client bound to DIANNA's management URL.
func New(baseURL, apiToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// ChunkRequest is the JSON body posted for every chunk of the upload.
type ChunkRequest struct {
	StartByte       int64  `json:"start_byte"`
	EndByte         int64  `json:"end_byte"`
	TotalBytes      int64  `json:"total_bytes"`
	UploadID        string `json:"upload_id,omitempty"`
	FileName        string `json:"file_name"`
	FileChunk       string `json:"file_chunk"`
	ArchivePassword string `json:"archive_password,omitempty"`
}

// UploadResponse is DIANNA's response to a chunk POST. The first chunk's
// response carries the UploadID every subsequent chunk echoes. Terminal
// statuses, when present, short-circuit the upload loop.
type UploadResponse struct {
	UploadID   string `json:"upload_id,omitempty"`
	AnalysisID string `json:"analysisId,omitempty"`
	Status     string `json:"status,omitempty"`
}

// PostChunk uploads one chunk and returns the parsed response.
func (c *Client) PostChunk(ctx context.Context, req ChunkRequest) (UploadResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("op=dianna.PostChunk: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return UploadResponse{}, fmt.Errorf("op=dianna.PostChunk: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("op=dianna.PostChunk: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return UploadResponse{}, fmt.Errorf("op=dianna.PostChunk: status %d", resp.StatusCode)
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResponse{}, fmt.Errorf("op=dianna.PostChunk: decoding response: %w", err)
	}
	return out, nil
}

// ResultResponse is the shape of DIANNA's result-polling endpoint.
type ResultResponse struct {
	Status          string `json:"status"`
	IsFileMalicious bool   `json:"isFileMalicious"`
}

// PollResult reads the current status for a key (either upload_id or
// analysisId, per spec.md's open question: both are accepted as
// equivalent poll keys). A non-2xx response is reported as an error for
// the caller to log-and-continue, per spec.md §4.F.3.
func (c *Client) PollResult(ctx context.Context, key string) (ResultResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/result/"+key, nil)
	if err != nil {
		return ResultResponse{}, fmt.Errorf("op=dianna.PollResult: %w", err)
	}
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ResultResponse{}, fmt.Errorf("op=dianna.PollResult: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ResultResponse{}, fmt.Errorf("op=dianna.PollResult: transient status %d", resp.StatusCode)
	}
	var out ResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ResultResponse{}, fmt.Errorf("op=dianna.PollResult: decoding response: %w", err)
	}
	return out, nil
}

// EncodeChunk base64-encodes a raw chunk for the file_chunk field.
func EncodeChunk(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// ReadFullyForSize reads r to completion into memory, used only as the
// spec'd fallback when the connector's content-length is unavailable so
// total_bytes can still be computed before chunking begins.
func ReadFullyForSize(r io.Reader) ([]byte, int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("op=dianna.ReadFullyForSize: %w", err)
	}
	return buf, int64(len(buf)), nil
}
