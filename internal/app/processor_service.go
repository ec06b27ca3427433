package app

import (
	"context"
	"log"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// JobDispatcher routes a claimed job to its type's handler.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *domain.BackgroundJob) domain.HandlerResult
}

type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// ProcessorService claims due jobs and drives them to a terminal or
// retry state. It is safe to run from overlapping invocations: all
// mutual exclusion lives in the atomic claim statement.
type ProcessorService struct {
	jobs       domain.JobRepository
	dispatcher JobDispatcher
	jobTimeout time.Duration
}

func NewProcessorService(jobs domain.JobRepository, dispatcher JobDispatcher, jobTimeout time.Duration) *ProcessorService {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &ProcessorService{jobs: jobs, dispatcher: dispatcher, jobTimeout: jobTimeout}
}

// A claim older than this can only belong to a worker that died before
// finishing its batch: per-job timeouts keep live claims far shorter.
const reclaimAfter = 10 * time.Minute

// ProcessPendingJobs runs one batch. Per-job outcomes are recorded on
// the job rows and never propagated as errors, so one bad job cannot
// abort the batch.
func (s *ProcessorService) ProcessPendingJobs(ctx context.Context, batchSize int) (BatchResult, error) {
	if batchSize <= 0 {
		batchSize = 25
	}

	reclaimed, err := s.jobs.ReclaimStuckJobs(ctx, reclaimAfter)
	if err != nil {
		log.Printf("[processor] reclaim stuck jobs: %v", err)
	} else if reclaimed > 0 {
		log.Printf("[processor] reclaimed %d jobs orphaned in processing", reclaimed)
	}

	claimed, err := s.jobs.ClaimDueJobs(ctx, batchSize)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Processed: len(claimed)}
	for _, job := range claimed {
		switch s.processOne(ctx, job) {
		case domain.JobStatusCompleted:
			result.Succeeded++
		case domain.JobStatusPending:
			result.Retried++
		default:
			result.Failed++
		}
	}

	if result.Processed > 0 {
		log.Printf("[processor] batch done processed=%d succeeded=%d retried=%d failed=%d",
			result.Processed, result.Succeeded, result.Retried, result.Failed)
	}
	return result, nil
}

func (s *ProcessorService) processOne(ctx context.Context, job *domain.BackgroundJob) domain.JobStatus {
	// Bounded per-job timeout so one stuck provider call cannot starve
	// the rest of the batch.
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	res := s.dispatcher.Dispatch(jobCtx, job)
	cancel()

	if res.Success {
		if err := s.jobs.MarkCompleted(ctx, job.ID, res.Data); err != nil {
			log.Printf("[processor] mark completed job=%s: %v", job.ID, err)
		}
		return domain.JobStatusCompleted
	}

	attempts := job.Attempts + 1
	if res.Permanent {
		// Unrecoverable input: exhaust retries now rather than walking
		// the backoff schedule.
		attempts = job.MaxAttempts
	}

	if attempts >= job.MaxAttempts {
		if err := s.jobs.MarkFailed(ctx, job.ID, attempts, res.Err); err != nil {
			log.Printf("[processor] mark failed job=%s: %v", job.ID, err)
		}
		log.Printf("[processor] job=%s type=%s dead-lettered after %d attempts: %s", job.ID, job.Type, attempts, res.Err)
		return domain.JobStatusFailed
	}

	runAt := time.Now().Add(backoff(attempts))
	if err := s.jobs.MarkRetry(ctx, job.ID, attempts, runAt, res.Err); err != nil {
		log.Printf("[processor] mark retry job=%s: %v", job.ID, err)
	}
	log.Printf("[processor] job=%s type=%s retry %d/%d at %s: %s",
		job.ID, job.Type, attempts, job.MaxAttempts, runAt.Format(time.RFC3339), res.Err)
	return domain.JobStatusPending
}

// backoff returns 2^n minutes after the n-th failure. The shift cap
// only guards against overflow on absurd retry limits.
func backoff(attempts int) time.Duration {
	shift := attempts
	if shift > 20 {
		shift = 20
	}
	return time.Duration(1<<uint(shift)) * time.Minute
}
