package dianna

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	diannaclient "github.com/deep-instinct/dsx-connect/internal/adapter/dianna"
	"github.com/deep-instinct/dsx-connect/internal/adapter/connector"
	"github.com/deep-instinct/dsx-connect/internal/adapter/notify"
	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

type testRig struct {
	worker *Worker
	rdb    *redis.Client
}

func newTestRig(t *testing.T, diannaSrv *httptest.Server) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := redisstate.NewFromClient(rdb)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	sink, err := notify.NewSyslogSink(notify.SyslogConfig{})
	require.NoError(t, err)
	notifier := notify.New(store, sink, logger)

	w := &Worker{
		Connector:      connector.New(5 * time.Second),
		Dianna:         diannaclient.New(diannaSrv.URL, "", 5*time.Second),
		Notifier:       notifier,
		ChunkSizeBytes: 4,
		PollInterval:   5 * time.Millisecond,
		PollTimeout:    200 * time.Millisecond,
		Logger:         logger,
	}
	return &testRig{worker: w, rdb: rdb}
}

func task(t *testing.T, req domain.ScanRequest) *domain.Task {
	t.Helper()
	args, err := domain.ArgsFrom(req)
	require.NoError(t, err)
	return &domain.Task{ID: "analyze-1", ScanRequestTaskID: "root-1", Args: args}
}

func decodeResult(t *testing.T, result string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &m))
	return m
}

func TestExecute_TerminalUploadStatusShortCircuits(t *testing.T) {
	connectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer connectorSrv.Close()
	pollCalled := false
	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			w.Write([]byte(`{"upload_id":"up-1","status":"UNSUPPORTED_FILE_TYPE"}`))
		default:
			pollCalled = true
		}
	}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)
	req := domain.ScanRequest{Location: "/a.bin", ConnectorURL: connectorSrv.URL}
	result, err := rig.worker.Execute(context.Background(), task(t, req))
	require.NoError(t, err)

	m := decodeResult(t, result)
	require.Equal(t, "UNSUPPORTED_FILE_TYPE", m["status"])
	require.False(t, pollCalled, "a terminal upload status must short-circuit before any polling")
}

func TestExecute_AsyncPathPollsUntilSuccess(t *testing.T) {
	connectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer connectorSrv.Close()

	pollCount := 0
	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/analyze":
			w.Write([]byte(`{"upload_id":"up-1","status":"PENDING"}`))
		default:
			pollCount++
			if pollCount < 2 {
				w.Write([]byte(`{"status":"RUNNING"}`))
				return
			}
			w.Write([]byte(`{"status":"SUCCESS","isFileMalicious":false}`))
		}
	}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)
	req := domain.ScanRequest{Location: "/a.bin", ConnectorURL: connectorSrv.URL}
	result, err := rig.worker.Execute(context.Background(), task(t, req))
	require.NoError(t, err)

	m := decodeResult(t, result)
	require.Equal(t, "SUCCESS", m["status"])
	require.Equal(t, "up-1", m["upload_id"])
	require.GreaterOrEqual(t, pollCount, 2, "must poll at least until the terminal status is observed")
}

func TestExecute_AsyncPathTimesOutWithoutTerminalStatusReturnsError(t *testing.T) {
	connectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer connectorSrv.Close()

	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			w.Write([]byte(`{"upload_id":"up-1","status":"PENDING"}`))
		default:
			w.Write([]byte(`{"status":"RUNNING"}`))
		}
	}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)
	req := domain.ScanRequest{Location: "/a.bin", ConnectorURL: connectorSrv.URL}
	result, err := rig.worker.Execute(context.Background(), task(t, req))
	require.NoError(t, err)

	m := decodeResult(t, result)
	require.Equal(t, "ERROR", m["status"], "a deadline reached without ever observing a terminal status must still render an enumerated status token")
	require.NotEmpty(t, m["message"])
}

func TestExecute_ChunkedUploadHashesRawBytes(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	want := sha256.Sum256(content)
	wantHex := hex.EncodeToString(want[:])

	connectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer connectorSrv.Close()

	var gotChunks int
	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/analyze" {
			gotChunks++
			var creq diannaclient.ChunkRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creq))
			w.Write([]byte(`{"upload_id":"up-1","status":"FAILED"}`))
			return
		}
	}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)

	ctx := context.Background()
	sub := rig.rdb.Subscribe(ctx, "dsxconnect:notifications:scan_results")
	defer sub.Close()
	msgs := sub.Channel()

	req := domain.ScanRequest{Location: "/a.bin", ConnectorURL: connectorSrv.URL}
	result, err := rig.worker.Execute(ctx, task(t, req))
	require.NoError(t, err)

	m := decodeResult(t, result)
	require.Equal(t, "FAILED", m["status"])
	require.Greater(t, gotChunks, 1, "a chunk size smaller than the file must split the upload into multiple POSTs")

	select {
	case msg := <-msgs:
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, wantHex, event["sha256"], "the hash published alongside the terminal event must cover the raw file bytes, not the chunked base64 wire encoding")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the terminal notification to publish")
	}
}

func TestExecute_ConnectorStreamErrorReturnsErrorStatusWithoutFailingTask(t *testing.T) {
	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)
	req := domain.ScanRequest{Location: "/a.bin", ConnectorURL: "http://127.0.0.1:1"}
	result, err := rig.worker.Execute(context.Background(), task(t, req))
	require.NoError(t, err, "dianna worker must never return an error from Execute; terminal failures are status=ERROR")

	m := decodeResult(t, result)
	require.Equal(t, "ERROR", m["status"])
	require.NotEmpty(t, m["message"])
}

func TestExecute_MalformedArgsReturnsErrorStatus(t *testing.T) {
	diannaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer diannaSrv.Close()

	rig := newTestRig(t, diannaSrv)
	badTask := &domain.Task{ID: "t1", ScanRequestTaskID: "t1", Args: map[string]any{}}
	result, err := rig.worker.Execute(context.Background(), badTask)
	require.NoError(t, err)

	m := decodeResult(t, result)
	require.Equal(t, "ERROR", m["status"])
}
