package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// MemoryJobsLedger stores jobs in memory for local development and tests.
type MemoryJobsLedger struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryJobsLedger() *MemoryJobsLedger {
	return &MemoryJobsLedger{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (l *MemoryJobsLedger) Create(_ context.Context, cacheKey string) (*domain.Job, error) {
	now := l.now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		CacheKey:  cacheKey,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	l.mu.Lock()
	l.jobs[job.ID] = cloneJob(job)
	l.mu.Unlock()

	return job, nil
}

func (l *MemoryJobsLedger) MarkProcessing(
	_ context.Context,
	jobID string,
	leaseExpiresAt time.Time,
	attempt int,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminalState
	}

	lease := leaseExpiresAt.UTC()
	job.Status = domain.JobStatusProcessing
	job.LeaseExpiresAt = &lease
	job.Attempts = attempt
	job.UpdatedAt = l.now().UTC()
	return nil
}

func (l *MemoryJobsLedger) MarkCompleted(_ context.Context, jobID string, resultKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminalState
	}

	job.Status = domain.JobStatusCompleted
	job.ResultKey = resultKey
	job.ErrorMessage = ""
	job.LeaseExpiresAt = nil
	job.UpdatedAt = l.now().UTC()
	return nil
}

func (l *MemoryJobsLedger) MarkFailed(_ context.Context, jobID string, errorMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminalState
	}

	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errorMessage
	job.LeaseExpiresAt = nil
	job.UpdatedAt = l.now().UTC()
	return nil
}

func (l *MemoryJobsLedger) Get(_ context.Context, jobID string) (*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.LeaseExpiresAt != nil {
		lease := *job.LeaseExpiresAt
		clone.LeaseExpiresAt = &lease
	}
	return &clone
}
