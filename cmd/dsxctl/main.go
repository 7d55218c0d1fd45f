// Command dsxctl runs the thin HTTP admin surface for dsx-connect: health
// checks, Prometheus metrics, and job-control/DLQ/malicious-index
// operator endpoints backed directly by the same Redis state the worker
// process reads and writes. Grounded on the teacher's cmd/server chi
// router (middleware stack, graceful shutdown shape), generalized from a
// CV-evaluation REST API to an operator control plane.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deep-instinct/dsx-connect/internal/adapter/observability"
	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
	"github.com/deep-instinct/dsx-connect/internal/config"
	"github.com/deep-instinct/dsx-connect/internal/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	store, err := redisstate.New(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to DSXCONNECT_REDIS_URL", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	jobControl := redisstate.NewJobControl(store)
	slots := redisstate.NewScannerSlots(store, cfg.ScannerMaxInflight)

	h := &handlers{store: store, jobControl: jobControl, slots: slots, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}}))
	r.Use(httprate.LimitByIP(100, time.Minute))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/", h.getJob)
		r.Post("/pause", h.pauseJob)
		r.Post("/resume", h.resumeJob)
		r.Post("/cancel", h.cancelJob)
	})
	r.Get("/malicious/{taskID}", h.getMaliciousEntry)
	r.Get("/dlq/{worker}", h.listDLQ)
	r.Get("/scanner/inflight", h.getInflight)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		logger.Info("dsxctl listening", "addr", srv.Addr)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("dsxctl server failed", "err", serveErr)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("dsxctl stopped")
}

type handlers struct {
	store      *redisstate.Store
	jobControl *redisstate.JobControl
	slots      *redisstate.ScannerSlots
	logger     *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Get(r.Context(), "dsxconnect:healthcheck"); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	state, err := h.jobControl.Load(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) pauseJob(w http.ResponseWriter, r *http.Request) {
	h.setPause(w, r, true)
}

func (h *handlers) resumeJob(w http.ResponseWriter, r *http.Request) {
	h.setPause(w, r, false)
}

func (h *handlers) setPause(w http.ResponseWriter, r *http.Request, paused bool) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.jobControl.SetPaused(r.Context(), jobID, paused, time.Now()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.jobControl.SetCancelled(r.Context(), jobID, true, time.Now()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *handlers) getMaliciousEntry(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	raw, err := h.store.Get(r.Context(), domain.MaliciousIndexKey(taskID))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if raw == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no malicious entry for task id"})
		return
	}
	var entry domain.MaliciousIndexEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) listDLQ(w http.ResponseWriter, r *http.Request) {
	worker := chi.URLParam(r, "worker")
	rows, err := h.store.LRange(r.Context(), domain.DLQListKey(worker), 0, 99)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	records := make([]domain.DLQRecord, 0, len(rows))
	for _, row := range rows {
		var rec domain.DLQRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			h.logger.Warn("dlq record decode failed, skipping", "worker", worker, "err", err)
			continue
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) getInflight(w http.ResponseWriter, r *http.Request) {
	n, err := h.slots.Observed(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"inflight": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
