// Command dsxworker runs the dsx-connect worker process: it dequeues tasks
// from the REQUEST, REQUEST_BATCH, and ANALYZE queues and drives the
// scan-request, batch-fanout, and DIANNA deep-analysis algorithms described
// in spec.md §4. Wiring is grounded on the teacher's cmd/server bootstrap
// (config.Load, structured logging, OTEL tracing, graceful shutdown on
// SIGTERM/SIGINT), generalized from a single HTTP listener to three
// goroutine-driven worker loops sharing one Redis-backed state layer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/deep-instinct/dsx-connect/internal/adapter/connector"
	"github.com/deep-instinct/dsx-connect/internal/adapter/dianna"
	"github.com/deep-instinct/dsx-connect/internal/adapter/dlqarchive/postgres"
	"github.com/deep-instinct/dsx-connect/internal/adapter/notify"
	"github.com/deep-instinct/dsx-connect/internal/adapter/observability"
	"github.com/deep-instinct/dsx-connect/internal/adapter/queue/kafkabridge"
	"github.com/deep-instinct/dsx-connect/internal/adapter/queue/taskqueue"
	"github.com/deep-instinct/dsx-connect/internal/adapter/scanner"
	"github.com/deep-instinct/dsx-connect/internal/adapter/state/redisstate"
	"github.com/deep-instinct/dsx-connect/internal/config"
	"github.com/deep-instinct/dsx-connect/internal/domain"
	"github.com/deep-instinct/dsx-connect/internal/worker/kernel"
	diannaworker "github.com/deep-instinct/dsx-connect/internal/worker/dianna"
	"github.com/deep-instinct/dsx-connect/internal/worker/scanbatch"
	"github.com/deep-instinct/dsx-connect/internal/worker/scanrequest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.SetupTracing(cfg)
	if err != nil {
		logger.Error("failed to set up tracing", "err", err)
		os.Exit(1)
	}
	if shutdownTracing != nil {
		defer func() {
			if serr := shutdownTracing(context.Background()); serr != nil {
				logger.Warn("tracing shutdown failed", "err", serr)
			}
		}()
	}
	observability.InitMetrics()

	resultsOpts, err := redis.ParseURL(cfg.ResultsDB)
	if err != nil {
		logger.Error("invalid DSXCONNECT_RESULTS_DB", "err", err)
		os.Exit(1)
	}
	resultsClient := redis.NewClient(resultsOpts)
	defer resultsClient.Close()

	controlStore, err := redisstate.New(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to DSXCONNECT_REDIS_URL", "err", err)
		os.Exit(1)
	}
	defer controlStore.Close()

	queue := taskqueue.New(resultsClient)
	resultsStore := redisstate.NewFromClient(resultsClient)

	if len(cfg.KafkaBrokers) > 0 {
		bridge, bridgeErr := kafkabridge.New(cfg.KafkaBrokers, "dsxconnect.")
		if bridgeErr != nil {
			logger.Error("failed to connect kafka bridge", "err", bridgeErr)
			os.Exit(1)
		}
		defer bridge.Close()
		queue = queue.WithMirror(bridge)
	}

	slots := redisstate.NewScannerSlots(controlStore, cfg.ScannerMaxInflight)
	jobControl := redisstate.NewJobControl(controlStore)
	maliciousIdx := redisstate.NewMaliciousIndex(controlStore)

	connectorClient := connector.New(cfg.ScannerTimeoutSeconds)
	scannerClient := scanner.New(cfg.ScannerBaseURL, cfg.ScannerAuthToken, cfg.ScannerTimeoutSeconds)
	diannaClient := dianna.New(cfg.DiannaManagementURL, cfg.DiannaAPIToken, cfg.DiannaTimeout)

	syslogSink, err := notify.NewSyslogSink(notify.SyslogConfig{
		Network:  cfg.SyslogNetwork,
		Address:  cfg.SyslogAddress,
		TLSCA:    cfg.SyslogTLSCA,
		TLSCert:  cfg.SyslogTLSCert,
		TLSKey:   cfg.SyslogTLSKey,
		Insecure: cfg.SyslogInsecure,
	})
	if err != nil {
		logger.Error("failed to set up syslog sink", "err", err)
		os.Exit(1)
	}
	notifier := notify.New(resultsStore, syslogSink, logger)

	scanReqWorker := &scanrequest.Worker{
		Connector:    connectorClient,
		Scanner:      scannerClient,
		Slots:        slots,
		JobControl:   jobControl,
		MaliciousIdx: maliciousIdx,
		TaskQueue:    queue,
		MaxFileSize:  cfg.ScannerMaxFileSize,
		Logger:       logger.With("worker", "scan_request"),
	}
	batchWorker := &scanbatch.Worker{
		TaskQueue:        queue,
		DefaultBatchSize: cfg.ScanRequestBatchSize,
		Logger:           logger.With("worker", "scan_request_batch"),
	}
	analyzeWorker := &diannaworker.Worker{
		Connector:      connectorClient,
		Dianna:         diannaClient,
		Notifier:       notifier,
		ChunkSizeBytes: cfg.DiannaChunkSizeBytesFloor(),
		PollInterval:   cfg.DiannaPollIntervalSec,
		PollTimeout:    cfg.DiannaPollTimeoutSec,
		Logger:         logger.With("worker", "dianna_analyze"),
	}

	bases := []*kernel.Base{
		kernel.NewBase(scanReqWorker, queue, controlStore, cfg.ScanRequestRetryPolicy(), logger),
		kernel.NewBase(batchWorker, queue, controlStore, cfg.BatchRetryPolicy(), logger),
		kernel.NewBase(analyzeWorker, queue, controlStore, cfg.DiannaRetryPolicy(), logger),
	}

	if cfg.PostgresURL != "" {
		archive, archErr := postgres.New(context.Background(), cfg.PostgresURL)
		if archErr != nil {
			logger.Error("failed to connect dlq postgres archive", "err", archErr)
			os.Exit(1)
		}
		defer archive.Close()
		for _, b := range bases {
			b.Archive = archive
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup
	for _, b := range bases {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			if runErr := b.Run(ctx); runErr != nil && ctx.Err() == nil {
				logger.Error("worker loop exited with error", "err", runErr)
			}
		}()
	}

	logger.Info("dsxworker started",
		"env", cfg.AppEnv,
		"queues", []string{domain.QueueRequest, domain.QueueRequestBatch, domain.QueueAnalyze},
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for worker loops to drain")
	wg.Wait()
	logger.Info("dsxworker stopped")
}
