package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type ScheduleOptions struct {
	RunAt      *time.Time
	RetryLimit *int
}

// SchedulerService is the pure write path into the job table. It never
// executes work; enrollment creation relies on that to stay fast and
// side-effect-free.
type SchedulerService struct {
	jobs domain.JobRepository
}

func NewSchedulerService(jobs domain.JobRepository) *SchedulerService {
	return &SchedulerService{jobs: jobs}
}

func (s *SchedulerService) Schedule(ctx context.Context, workspaceID string, jobType domain.JobType, payload interface{}, opts ScheduleOptions) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", jobType, err)
	}

	job := domain.NewJob(workspaceID, jobType, raw)
	if opts.RunAt != nil {
		job.ScheduledFor = *opts.RunAt
	}
	if opts.RetryLimit != nil {
		job.MaxAttempts = *opts.RetryLimit
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Cancel transitions a pending job to cancelled. Jobs that are already
// processing or terminal are left alone and false is returned.
func (s *SchedulerService) Cancel(ctx context.Context, workspaceID, jobID string) (bool, error) {
	return s.jobs.CancelPending(ctx, workspaceID, jobID)
}
