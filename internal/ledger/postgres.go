package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// PostgresJobsLedger persists jobs in a jobs table:
//
//	id TEXT PRIMARY KEY,
//	cache_key TEXT NOT NULL,
//	status TEXT NOT NULL,
//	result_key TEXT NOT NULL DEFAULT '',
//	error_message TEXT NOT NULL DEFAULT '',
//	attempts INT NOT NULL DEFAULT 0,
//	lease_expires_at TIMESTAMPTZ,
//	created_at TIMESTAMPTZ NOT NULL,
//	updated_at TIMESTAMPTZ NOT NULL
type PostgresJobsLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsLedger(ctx context.Context, databaseURL string) (*PostgresJobsLedger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsLedger{pool: pool}, nil
}

func (l *PostgresJobsLedger) Close() {
	l.pool.Close()
}

func (l *PostgresJobsLedger) Create(ctx context.Context, cacheKey string) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		CacheKey:  cacheKey,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO jobs (
			id,
			cache_key,
			status,
			result_key,
			error_message,
			attempts,
			lease_expires_at,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		job.ID,
		job.CacheKey,
		string(job.Status),
		job.ResultKey,
		job.ErrorMessage,
		job.Attempts,
		job.LeaseExpiresAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (l *PostgresJobsLedger) MarkProcessing(
	ctx context.Context,
	jobID string,
	leaseExpiresAt time.Time,
	attempt int,
) error {
	command, err := l.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			lease_expires_at = $3,
			attempts = $4,
			updated_at = $5
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, jobID, string(domain.JobStatusProcessing), leaseExpiresAt.UTC(), attempt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if command.RowsAffected() == 0 {
		return l.transitionRejection(ctx, jobID)
	}
	return nil
}

func (l *PostgresJobsLedger) MarkCompleted(ctx context.Context, jobID string, resultKey string) error {
	command, err := l.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			result_key = $3,
			error_message = '',
			lease_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, jobID, string(domain.JobStatusCompleted), resultKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return l.transitionRejection(ctx, jobID)
	}
	return nil
}

func (l *PostgresJobsLedger) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	command, err := l.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			error_message = $3,
			lease_expires_at = NULL,
			updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, jobID, string(domain.JobStatusFailed), errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return l.transitionRejection(ctx, jobID)
	}
	return nil
}

func (l *PostgresJobsLedger) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
		lease  *time.Time
	)

	err := l.pool.QueryRow(ctx, `
		SELECT id, cache_key, status, result_key, error_message, attempts, lease_expires_at, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&job.CacheKey,
		&status,
		&job.ResultKey,
		&job.ErrorMessage,
		&job.Attempts,
		&lease,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.LeaseExpiresAt = lease
	return &job, nil
}

// transitionRejection distinguishes a missing row from a guarded terminal row.
func (l *PostgresJobsLedger) transitionRejection(ctx context.Context, jobID string) error {
	job, err := l.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrTerminalState
	}
	return fmt.Errorf("job %s transition rejected in status %s", jobID, job.Status)
}
