package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

func TestStream_PostsJSONBodyAndReturnsBytes(t *testing.T) {
	var gotPath string
	var gotReq readFileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	body, contentLength, err := c.Stream(context.Background(), srv.URL, "/files/a.bin", "meta")
	require.NoError(t, err)
	defer body.Close()

	require.Equal(t, "/READ_FILE", gotPath)
	require.Equal(t, "/files/a.bin", gotReq.Location)
	require.Equal(t, "meta", gotReq.Metainfo)
	require.Equal(t, int64(5), contentLength)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestStream_ClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	_, _, err := c.Stream(context.Background(), srv.URL, "/x", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConnectorServer))
}

func TestStream_ClassifiesClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	_, _, err := c.Stream(context.Background(), srv.URL, "/x", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConnectorClient))
}

func TestStream_ClassifiesConnectionError(t *testing.T) {
	c := New(time.Second)
	_, _, err := c.Stream(context.Background(), "http://127.0.0.1:1", "/x", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConnectorConnection))
}

func TestBuildReadFileURL_JoinsPath(t *testing.T) {
	u, err := buildReadFileURL("http://connector:8080/api")
	require.NoError(t, err)
	require.Equal(t, "http://connector:8080/api/READ_FILE", u)
}
