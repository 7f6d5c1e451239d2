// Package audit appends one immutable record per search request to a
// durable store. Writes are best-effort from the caller's point of view:
// the search response never waits on or fails with the audit path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easyfix/easyfix-go/internal/logging"
)

// Record is one search audit entry. Created once, never mutated.
type Record struct {
	ID          string    `json:"id"`
	UserUID     string    `json:"user_uid"`
	Query       string    `json:"query"`
	Terms       []string  `json:"terms"`
	ResultCount int       `json:"result_count"`
	TookMS      int64     `json:"took_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recorder appends audit records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// PostgresRecorder stores records as JSONB documents in a search_logs
// table, one row per search.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRecorder connects to the audit store and ensures its table
// exists. Fails fast when the DSN is missing or the store is unreachable.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit postgres DSN missing")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach audit store: %w", err)
	}

	r := &PostgresRecorder{
		pool:   pool,
		logger: logging.Component("audit"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	r.logger.Info("audit recorder connected")
	return r, nil
}

func (r *PostgresRecorder) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_logs (
			id         UUID PRIMARY KEY,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure search_logs table: %w", err)
	}
	return nil
}

// Append writes one record. Missing id/timestamp are filled in.
func (r *PostgresRecorder) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO search_logs (id, doc, created_at) VALUES ($1, $2, $3)`,
		rec.ID, doc, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	r.logger.Debug("audit record appended", "id", rec.ID, "user", rec.UserUID)
	return nil
}

// Close releases the connection pool.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
