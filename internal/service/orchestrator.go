package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/cachekey"
	"github.com/mbelshaw/dailyoffice-back/internal/domain"
	"github.com/mbelshaw/dailyoffice-back/internal/generator"
	"github.com/mbelshaw/dailyoffice-back/internal/ledger"
	"github.com/mbelshaw/dailyoffice-back/internal/quality"
	"github.com/mbelshaw/dailyoffice-back/internal/queue"
	"github.com/mbelshaw/dailyoffice-back/internal/store"
)

var (
	// ErrGenerationFailed means the generator could not produce an artifact.
	// Retrying the same request will regenerate; the orchestrator never
	// retries on its own.
	ErrGenerationFailed = errors.New("document generation failed")
	// ErrStoreUnavailable means the artifact store or job ledger could not be
	// reached. The whole request is safe to retry.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrUnknownJob means the polled job ID was never created or has been
	// garbage-collected.
	ErrUnknownJob = errors.New("unknown job")
	// ErrResultEvicted means a completed job's artifact left the cache before
	// the job record did. The poll path never re-triggers generation.
	ErrResultEvicted = errors.New("job result evicted from artifact store")
)

type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss-generated"
)

type CostClass string

const (
	CostFast CostClass = "fast"
	CostSlow CostClass = "slow"
)

// Classify applies the static cost policy: single-date documents are cheap
// enough to generate inline, monthly ranges are not.
func Classify(request domain.Request) CostClass {
	if request.Shape == domain.ShapeRange {
		return CostSlow
	}
	return CostFast
}

type DocumentResult struct {
	Artifact    domain.Artifact
	CacheStatus CacheStatus
	CacheKey    string
}

// Outcome carries exactly one of an immediate document or an accepted job.
type Outcome struct {
	Document *DocumentResult
	Job      *domain.Job
}

type PollOutcome struct {
	Job      *domain.Job
	Artifact *domain.Artifact
}

type OrchestratorDependencies struct {
	Store     store.ArtifactStore
	Ledger    ledger.JobsLedger
	Producer  queue.Producer
	Generator generator.Generator
	Validator *quality.ArtifactValidator
	Logger    *log.Logger

	// PendingTimeout bounds how long a pending job may wait for a worker
	// before the poll path force-fails it.
	PendingTimeout time.Duration
}

// Orchestrator composes the cache, ledger, queue and generator into the two
// entry points of the system: HandleRequest and Poll. Instances share no
// mutable state; many may run concurrently against the same stores.
type Orchestrator struct {
	store          store.ArtifactStore
	ledger         ledger.JobsLedger
	producer       queue.Producer
	generator      generator.Generator
	validator      *quality.ArtifactValidator
	logger         *log.Logger
	pendingTimeout time.Duration
	now            func() time.Time
}

func NewOrchestrator(deps OrchestratorDependencies) *Orchestrator {
	if deps.Validator == nil {
		deps.Validator = quality.NewArtifactValidator()
	}
	if deps.PendingTimeout <= 0 {
		deps.PendingTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		store:          deps.Store,
		ledger:         deps.Ledger,
		producer:       deps.Producer,
		generator:      deps.Generator,
		validator:      deps.Validator,
		logger:         deps.Logger,
		pendingTimeout: deps.PendingTimeout,
		now:            time.Now,
	}
}

// HandleRequest resolves a document request to a cached artifact, a freshly
// generated artifact, or an accepted asynchronous job.
func (o *Orchestrator) HandleRequest(ctx context.Context, request domain.Request) (Outcome, error) {
	request = request.Canonicalize(o.now().UTC())
	key := cachekey.Derive(request)

	if !request.BypassCache {
		artifact, err := o.store.Get(ctx, key)
		if err == nil {
			return Outcome{Document: &DocumentResult{
				Artifact:    artifact,
				CacheStatus: CacheHit,
				CacheKey:    key,
			}}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: read artifact %s: %v", ErrStoreUnavailable, key, err)
		}
	}

	if Classify(request) == CostFast {
		return o.generateInline(ctx, request, key)
	}
	return o.acceptJob(ctx, request, key)
}

func (o *Orchestrator) generateInline(
	ctx context.Context,
	request domain.Request,
	key string,
) (Outcome, error) {
	artifact, err := o.generator.Generate(ctx, request)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if err := o.validator.ValidatePDF(artifact); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// Caching is best effort; a store outage must not discard a document we
	// already hold.
	if err := o.store.Put(ctx, key, artifact); err != nil && o.logger != nil {
		o.logger.Printf("artifact cache write failed key=%s err=%v", key, err)
	}

	return Outcome{Document: &DocumentResult{
		Artifact:    artifact,
		CacheStatus: CacheMiss,
		CacheKey:    key,
	}}, nil
}

func (o *Orchestrator) acceptJob(
	ctx context.Context,
	request domain.Request,
	key string,
) (Outcome, error) {
	job, err := o.ledger.Create(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create job: %v", ErrStoreUnavailable, err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		CacheKey:    key,
		Request:     request,
		Attempt:     0,
		RequestedAt: o.now().UTC(),
	}
	if err := o.producer.Enqueue(ctx, message); err != nil {
		if markErr := o.ledger.MarkFailed(ctx, job.ID, "enqueue failed: "+err.Error()); markErr != nil && o.logger != nil {
			o.logger.Printf("failed to fail unenqueued job job_id=%s err=%v", job.ID, markErr)
		}
		return Outcome{}, fmt.Errorf("%w: enqueue job: %v", ErrStoreUnavailable, err)
	}

	return Outcome{Job: job}, nil
}

// Poll reports the state of an asynchronous job. On completion it returns the
// cached artifact; it never re-triggers generation. Jobs stuck in a
// non-terminal state past their bound are force-failed here so callers are
// never left polling forever.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (PollOutcome, error) {
	job, err := o.ledger.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return PollOutcome{}, ErrUnknownJob
		}
		return PollOutcome{}, fmt.Errorf("%w: read job %s: %v", ErrStoreUnavailable, jobID, err)
	}

	if reason, stuck := o.stuckReason(job); stuck {
		if markErr := o.ledger.MarkFailed(ctx, job.ID, reason); markErr != nil && !errors.Is(markErr, ledger.ErrTerminalState) {
			return PollOutcome{}, fmt.Errorf("%w: force-fail job %s: %v", ErrStoreUnavailable, job.ID, markErr)
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = reason
		job.LeaseExpiresAt = nil
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		artifact, err := o.store.Get(ctx, job.ResultKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return PollOutcome{Job: job}, ErrResultEvicted
			}
			return PollOutcome{}, fmt.Errorf("%w: read artifact %s: %v", ErrStoreUnavailable, job.ResultKey, err)
		}
		return PollOutcome{Job: job, Artifact: &artifact}, nil
	default:
		return PollOutcome{Job: job}, nil
	}
}

func (o *Orchestrator) stuckReason(job *domain.Job) (string, bool) {
	now := o.now().UTC()
	switch job.Status {
	case domain.JobStatusProcessing:
		if job.LeaseExpiresAt != nil && now.After(*job.LeaseExpiresAt) {
			return "generation lease expired before completion", true
		}
	case domain.JobStatusPending:
		if now.After(job.CreatedAt.Add(o.pendingTimeout)) {
			return "generation was never picked up by a worker", true
		}
	}
	return "", false
}
