package dianna

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostChunk_SendsAuthAndParsesResponse(t *testing.T) {
	var gotAuth string
	var gotReq ChunkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"upload_id":"up-1","status":"PENDING"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", 5*time.Second)
	resp, err := c.PostChunk(context.Background(), ChunkRequest{
		StartByte: 0, EndByte: 3, TotalBytes: 4, FileName: "a.bin", FileChunk: EncodeChunk([]byte("abcd")),
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, int64(4), gotReq.TotalBytes)
	require.Equal(t, "up-1", resp.UploadID)
	require.Equal(t, "PENDING", resp.Status)
}

func TestPostChunk_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, err := c.PostChunk(context.Background(), ChunkRequest{})
	require.Error(t, err)
}

func TestPollResult_ParsesTerminalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/result/up-1", r.URL.Path)
		w.Write([]byte(`{"status":"SUCCESS","isFileMalicious":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	resp, err := c.PollResult(context.Background(), "up-1")
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", resp.Status)
	require.True(t, resp.IsFileMalicious)
}

func TestPollResult_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, err := c.PollResult(context.Background(), "up-1")
	require.Error(t, err)
}

func TestEncodeChunk_RoundTripsBase64(t *testing.T) {
	encoded := EncodeChunk([]byte("hello"))
	require.Equal(t, "aGVsbG8=", encoded)
}

func TestReadFullyForSize_ReturnsLength(t *testing.T) {
	buf, n, err := ReadFullyForSize(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, int64(11), n)
	require.Equal(t, "hello world", string(buf))
}
