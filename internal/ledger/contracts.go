package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrTerminalState is returned when a transition targets a job that has
	// already completed or failed. Terminal states are never re-opened.
	ErrTerminalState = errors.New("job is in a terminal state")
)

// JobsLedger records asynchronous generation attempts. Transitions are
// monotonic: pending -> processing -> completed|failed.
type JobsLedger interface {
	Create(ctx context.Context, cacheKey string) (*domain.Job, error)
	MarkProcessing(ctx context.Context, jobID string, leaseExpiresAt time.Time, attempt int) error
	MarkCompleted(ctx context.Context, jobID string, resultKey string) error
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
}
