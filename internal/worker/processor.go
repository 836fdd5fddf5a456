package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
	"github.com/mbelshaw/dailyoffice-back/internal/generator"
	"github.com/mbelshaw/dailyoffice-back/internal/ledger"
	"github.com/mbelshaw/dailyoffice-back/internal/quality"
	"github.com/mbelshaw/dailyoffice-back/internal/queue"
	"github.com/mbelshaw/dailyoffice-back/internal/store"
)

// Processor consumes generation jobs, drives them through the ledger state
// machine and writes finished artifacts to the store.
//
// Error handling follows two tracks: a generation or validation failure is a
// terminal job failure (acked, never redelivered), while an infrastructure
// failure is returned to the queue so the message is retried and eventually
// dead-lettered.
type Processor struct {
	consumer  queue.Consumer
	ledger    ledger.JobsLedger
	store     store.ArtifactStore
	generator generator.Generator
	validator *quality.ArtifactValidator
	leaseTTL  time.Duration
	logger    *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	jobs ledger.JobsLedger,
	artifacts store.ArtifactStore,
	gen generator.Generator,
	leaseTTL time.Duration,
	logger *log.Logger,
) *Processor {
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	return &Processor{
		consumer:  consumer,
		ledger:    jobs,
		store:     artifacts,
		generator: gen,
		validator: quality.NewArtifactValidator(),
		leaseTTL:  leaseTTL,
		logger:    logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	job, err := p.ledger.Get(ctx, message.JobID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			// Job record is gone (force-failed and swept, or a duplicate
			// delivery from before a wipe). Nothing to do.
			if p.logger != nil {
				p.logger.Printf("dropping message for unknown job job_id=%s", message.JobID)
			}
			return nil
		}
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}
	if job.Status.Terminal() {
		// Redelivery after a terminal transition; the outcome is settled.
		return nil
	}

	lease := time.Now().UTC().Add(p.leaseTTL)
	if err := p.ledger.MarkProcessing(ctx, message.JobID, lease, message.Attempt+1); err != nil {
		if errors.Is(err, ledger.ErrTerminalState) {
			return nil
		}
		return fmt.Errorf("mark processing %s: %w", message.JobID, err)
	}

	artifact, genErr := p.generator.Generate(ctx, message.Request)
	if genErr == nil {
		genErr = p.validator.ValidatePDF(artifact)
	}
	if genErr != nil {
		if markErr := p.ledger.MarkFailed(ctx, message.JobID, genErr.Error()); markErr != nil && !errors.Is(markErr, ledger.ErrTerminalState) {
			return fmt.Errorf("mark failed %s: %w", message.JobID, markErr)
		}
		if p.logger != nil {
			p.logger.Printf("job failed job_id=%s key=%s err=%v", message.JobID, message.CacheKey, genErr)
		}
		return nil
	}

	// The artifact must land in the store before the ledger says completed,
	// otherwise a poll could observe completed with nothing to serve.
	if err := p.store.Put(ctx, message.CacheKey, artifact); err != nil {
		return fmt.Errorf("store artifact %s: %w", message.CacheKey, err)
	}

	if err := p.ledger.MarkCompleted(ctx, message.JobID, message.CacheKey); err != nil {
		if errors.Is(err, ledger.ErrTerminalState) {
			return nil
		}
		return fmt.Errorf("mark completed %s: %w", message.JobID, err)
	}

	if p.logger != nil {
		p.logger.Printf("job completed job_id=%s key=%s bytes=%d", message.JobID, message.CacheKey, len(artifact.Body))
	}
	return nil
}
