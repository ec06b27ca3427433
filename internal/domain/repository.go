package domain

import (
	"context"
	"encoding/json"
	"time"
)

type JobFilter struct {
	WorkspaceID string
	Status      JobStatus
	Type        JobType
	Limit       int
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *BackgroundJob) error
	GetJob(ctx context.Context, workspaceID, id string) (*BackgroundJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*BackgroundJob, error)
	// ClaimDueJobs atomically flips up to limit due pending jobs to
	// processing and returns them, oldest-due-first. Concurrent callers
	// never receive the same job.
	ClaimDueJobs(ctx context.Context, limit int) ([]*BackgroundJob, error)
	// ReclaimStuckJobs returns processing jobs older than olderThan to
	// pending. A worker that crashed mid-batch leaves its claims in
	// processing forever; this puts them back in the queue.
	ReclaimStuckJobs(ctx context.Context, olderThan time.Duration) (int, error)
	MarkCompleted(ctx context.Context, id string, result json.RawMessage) error
	MarkFailed(ctx context.Context, id string, attempts int, jobErr string) error
	MarkRetry(ctx context.Context, id string, attempts int, runAt time.Time, jobErr string) error
	// CancelPending transitions a pending job to cancelled. Returns
	// false when the job is already processing, terminal, or missing.
	CancelPending(ctx context.Context, workspaceID, id string) (bool, error)
	// CancelPendingSequenceStepJobs cancels any pending sequence_step
	// job belonging to the enrollment. Returns the number cancelled.
	CancelPendingSequenceStepJobs(ctx context.Context, workspaceID, enrollmentID string) (int, error)
	CountByStatus(ctx context.Context, workspaceID string) (*JobStats, error)
	CountDueJobs(ctx context.Context, workspaceID string) (int, error)
}

type SequenceRepository interface {
	CreateSequence(ctx context.Context, seq *Sequence) error
	GetSequence(ctx context.Context, workspaceID, id string) (*Sequence, error)
	UpdateSequence(ctx context.Context, seq *Sequence) error
	SetActive(ctx context.Context, workspaceID, id string, active bool) error
	ListSequences(ctx context.Context, workspaceID string) ([]*Sequence, error)
}

type EnrollmentFilter struct {
	WorkspaceID string
	SequenceID  string
	CustomerID  string
	Status      EnrollmentStatus
	Limit       int
}

type EnrollmentRepository interface {
	// CreateEnrollment inserts the enrollment and, when stepJob is
	// non-nil, its first step job in the same transaction, so an
	// enrollment can never exist without the job that drives it.
	// Returns ErrAlreadyEnrolled when the customer already has an
	// active enrollment in the sequence.
	CreateEnrollment(ctx context.Context, e *SequenceEnrollment, stepJob *BackgroundJob) error
	GetEnrollment(ctx context.Context, workspaceID, id string) (*SequenceEnrollment, error)
	ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]*SequenceEnrollment, error)
	GetActiveEnrollment(ctx context.Context, workspaceID, sequenceID, customerID string) (*SequenceEnrollment, error)
	// AdvanceEnrollment moves an active enrollment from fromStep to
	// fromStep+1 with the given next fire time, inserting nextJob (when
	// non-nil) in the same transaction so the advance and the job that
	// continues the sequence commit or roll back together. Returns
	// false when the enrollment is no longer active or has moved past
	// fromStep, making redelivered step jobs a no-op; nextJob is not
	// inserted in that case.
	AdvanceEnrollment(ctx context.Context, id string, fromStep int, nextStepAt *time.Time, nextJob *BackgroundJob) (bool, error)
	CompleteEnrollment(ctx context.Context, id string, fromStep int) (bool, error)
	// TerminateEnrollment sets a terminal status (stopped, unsubscribed,
	// converted) with a reason. Returns false if already terminal.
	TerminateEnrollment(ctx context.Context, workspaceID, id string, status EnrollmentStatus, reason string) (bool, error)
	PauseEnrollment(ctx context.Context, id string, reason string) (bool, error)
	ResumeEnrollments(ctx context.Context, workspaceID, sequenceID string) ([]*SequenceEnrollment, error)
	CountActiveEnrollments(ctx context.Context, workspaceID string) (int, error)
	SequenceStats(ctx context.Context, workspaceID, sequenceID string) (*SequenceStats, error)
}
