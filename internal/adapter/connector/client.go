// Package connector implements the streaming HTTP client used to retrieve
// a file's bytes from a connector's READ_FILE endpoint. Grounded on the
// teacher's streaming HTTP client conventions (context-scoped request,
// explicit Close of the response body by the caller, otelhttp-wrapped
// transport for trace propagation).
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

// Client retrieves file content from connector READ_FILE endpoints.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with an otelhttp-instrumented transport.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// readFileRequest is the JSON scan-request body spec.md §10's connector
// contract says READ_FILE accepts.
type readFileRequest struct {
	Location string `json:"location"`
	Metainfo string `json:"metainfo,omitempty"`
}

// Stream posts a READ_FILE request against the connector URL for the given
// location and metainfo, returning the streaming response body for the
// caller to copy into the scanner client. The caller MUST close the
// returned io.ReadCloser, regardless of how the scan concludes, per
// spec.md §4.D's always-release requirement.
func (c *Client) Stream(ctx context.Context, connectorURL, location, metainfo string) (io.ReadCloser, int64, error) {
	reqURL, err := buildReadFileURL(connectorURL)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrConnectorClient, err)
	}
	payload, err := json.Marshal(readFileRequest{Location: location, Metainfo: metainfo})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrConnectorClient, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrConnectorClient, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrConnectorConnection, err)
	}

	switch {
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: connector returned status %d", domain.ErrConnectorServer, resp.StatusCode)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: connector returned status %d", domain.ErrConnectorClient, resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

func buildReadFileURL(connectorURL string) (string, error) {
	base, err := url.Parse(connectorURL)
	if err != nil {
		return "", err
	}
	base.Path, err = url.JoinPath(base.Path, "READ_FILE")
	if err != nil {
		return "", err
	}
	return base.String(), nil
}
