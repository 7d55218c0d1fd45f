package dsxconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobState_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/job-1", r.URL.Path)
		w.Write([]byte(`{"Status":"running","Paused":"0","Cancel":"1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	state, err := c.JobState(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "running", state.Status)
	require.False(t, state.IsPaused())
	require.True(t, state.IsCancelled())
}

func TestPauseJob_PostsToExpectedPath(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	require.NoError(t, c.PauseJob(context.Background(), "job-1"))
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/jobs/job-1/pause", gotPath)
}

func TestResumeJob_PostsToExpectedPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	require.NoError(t, c.ResumeJob(context.Background(), "job-1"))
	require.Equal(t, "/jobs/job-1/resume", gotPath)
}

func TestCancelJob_PostsToExpectedPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	require.NoError(t, c.CancelJob(context.Background(), "job-1"))
	require.Equal(t, "/jobs/job-1/cancel", gotPath)
}

func TestMaliciousEntry_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/malicious/t-1", r.URL.Path)
		w.Write([]byte(`{"connector_uuid":"c-1","connector_url":"http://c","location":"/a","metainfo":"m"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	entry, err := c.MaliciousEntry(context.Background(), "t-1")
	require.NoError(t, err)
	require.Equal(t, "c-1", entry.ConnectorUUID)
}

func TestDLQEntries_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dlq/scanrequest", r.URL.Path)
		w.Write([]byte(`[{"reason":"not retryable","retry_count":3}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	records, err := c.DLQEntries(context.Background(), "scanrequest")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "not retryable", records[0].Reason)
	require.Equal(t, 3, records[0].RetryCount)
}

func TestInflight_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inflight":7}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	n, err := c.Inflight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}

func TestGetJSON_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.JobState(context.Background(), "job-1")
	require.Error(t, err)
}
