// Package postgres implements an optional SQL-queryable DLQ archive: the
// worker kernel double-writes every DLQRecord here in addition to the
// Redis DLQ list, so operators can query dead-lettered tasks beyond the
// Redis list's retention window. Grounded on the teacher's
// internal/adapter/repo/postgres package structure (pgxpool + otelpgx
// tracing, one struct per table wrapping *pgxpool.Pool).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deep-instinct/dsx-connect/internal/domain"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS dlq_records (
	id                    BIGSERIAL PRIMARY KEY,
	worker_name           TEXT NOT NULL,
	scan_request_task_id  TEXT NOT NULL,
	current_task_id       TEXT NOT NULL,
	upstream_task_id      TEXT,
	reason                TEXT NOT NULL,
	error_class           TEXT NOT NULL,
	error_message         TEXT NOT NULL,
	retry_count           INT NOT NULL,
	payload_snapshot      JSONB,
	created_at            TIMESTAMPTZ NOT NULL
)`

// Archive double-writes DLQRecords to Postgres for long-term retention.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects to connString (tracing via otelpgx.NewTracer) and ensures
// the dlq_records table exists.
func New(ctx context.Context, connString string) (*Archive, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.New: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.New: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("op=postgres.New: creating dlq_records table: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}

// Record writes rec for workerName. Callers treat failures here as
// best-effort: the Redis DLQ list remains the record of truth.
func (a *Archive) Record(ctx context.Context, workerName string, rec domain.DLQRecord) error {
	snapshot, err := json.Marshal(rec.PayloadSnapshot)
	if err != nil {
		return fmt.Errorf("op=postgres.Record: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO dlq_records
			(worker_name, scan_request_task_id, current_task_id, upstream_task_id,
			 reason, error_class, error_message, retry_count, payload_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		workerName, rec.ScanRequestTaskID, rec.CurrentTaskID, rec.UpstreamTaskID,
		rec.Reason, rec.ErrorClass, rec.ErrorMessage, rec.RetryCount, snapshot, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("op=postgres.Record: %w", err)
	}
	return nil
}

// ListByScanRequest returns every archived DLQ record for a correlation id,
// across all worker families, newest first.
func (a *Archive) ListByScanRequest(ctx context.Context, scanRequestTaskID string) ([]domain.DLQRecord, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT worker_name, scan_request_task_id, current_task_id, upstream_task_id,
		       reason, error_class, error_message, retry_count, created_at
		FROM dlq_records
		WHERE scan_request_task_id = $1
		ORDER BY created_at DESC`, scanRequestTaskID)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.ListByScanRequest: %w", err)
	}
	defer rows.Close()

	var out []domain.DLQRecord
	for rows.Next() {
		var workerName string
		var rec domain.DLQRecord
		if err := rows.Scan(&workerName, &rec.ScanRequestTaskID, &rec.CurrentTaskID, &rec.UpstreamTaskID,
			&rec.Reason, &rec.ErrorClass, &rec.ErrorMessage, &rec.RetryCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=postgres.ListByScanRequest: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=postgres.ListByScanRequest: %w", err)
	}
	return out, nil
}
