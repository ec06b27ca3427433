package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// EnrollmentService is the sequence enrollment state machine. It owns
// every transition on SequenceEnrollment rows and hands each step job
// to the repository alongside the transition that schedules it; it
// never sends messages itself.
type EnrollmentService struct {
	enrollments domain.EnrollmentRepository
	sequences   domain.SequenceRepository
	jobs        domain.JobRepository
}

func NewEnrollmentService(
	enrollments domain.EnrollmentRepository,
	sequences domain.SequenceRepository,
	jobs domain.JobRepository,
) *EnrollmentService {
	return &EnrollmentService{
		enrollments: enrollments,
		sequences:   sequences,
		jobs:        jobs,
	}
}

func stepTime(start time.Time, day int) time.Time {
	return start.Add(time.Duration(day) * 24 * time.Hour)
}

// Enroll creates an active enrollment at step 0 and schedules the
// step-0 job. Duplicate active enrollments, inactive sequences, and
// empty sequences are rejected with typed errors, never queued.
func (s *EnrollmentService) Enroll(ctx context.Context, workspaceID, sequenceID, customerID string, crmJobID *string) (*domain.SequenceEnrollment, error) {
	seq, err := s.sequences.GetSequence(ctx, workspaceID, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, domain.ErrSequenceNotFound
	}
	if !seq.Active {
		return nil, domain.ErrSequenceInactive
	}
	if len(seq.Steps) == 0 {
		return nil, domain.ErrSequenceNoSteps
	}

	existing, err := s.enrollments.GetActiveEnrollment(ctx, workspaceID, sequenceID, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyEnrolled
	}

	e := domain.NewEnrollment(workspaceID, sequenceID, customerID, crmJobID)
	// A day offset at or below zero puts the first step at or before
	// enrollment time, meaning immediately eligible on the next
	// processor pass.
	runAt := stepTime(e.StartedAt, seq.Steps[0].Day)
	e.NextStepAt = &runAt

	job, err := buildStepJob(seq, e, 0, runAt)
	if err != nil {
		return nil, err
	}
	// One transaction: an enrollment row without its step-0 job would
	// block re-enrollment while never sending anything.
	if err := s.enrollments.CreateEnrollment(ctx, e, job); err != nil {
		return nil, err
	}

	log.Printf("[enrollments] enrolled customer=%s sequence=%s enrollment=%s", customerID, sequenceID, e.ID)
	return e, nil
}

// buildStepJob snapshots the step's channel, template, and subject into
// the job payload, so editing a sequence never rewrites a job that is
// already in the table.
func buildStepJob(seq *domain.Sequence, e *domain.SequenceEnrollment, stepIndex int, runAt time.Time) (*domain.BackgroundJob, error) {
	step := seq.Steps[stepIndex]
	payload := domain.SequenceStepPayload{
		WorkspaceID:  e.WorkspaceID,
		EnrollmentID: e.ID,
		StepIndex:    stepIndex,
		CustomerID:   e.CustomerID,
		Channel:      step.Channel,
		Template:     step.Template,
		Subject:      step.Subject,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal step %d payload: %w", stepIndex, err)
	}
	job := domain.NewJob(e.WorkspaceID, domain.JobTypeSequenceStep, raw)
	job.ScheduledFor = runAt
	return job, nil
}

// AdvanceFromStep moves the enrollment past fromStep after that step's
// job succeeded, inserting the next step's job in the same transaction
// as the advance. Step timing is always relative to enrollment start,
// so a step delayed by retries does not skew the rest of the schedule.
// The conditional advance makes redelivered jobs a no-op: they may
// re-send a message but can never double-advance or double-schedule.
func (s *EnrollmentService) AdvanceFromStep(ctx context.Context, workspaceID, enrollmentID string, fromStep int) error {
	e, err := s.enrollments.GetEnrollment(ctx, workspaceID, enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return domain.ErrEnrollmentNotFound
	}
	if e.Status != domain.EnrollmentActive || e.CurrentStep != fromStep {
		return nil
	}

	seq, err := s.sequences.GetSequence(ctx, workspaceID, e.SequenceID)
	if err != nil {
		return err
	}
	if seq == nil {
		return domain.ErrSequenceNotFound
	}

	next := fromStep + 1
	if next >= len(seq.Steps) {
		if _, err := s.enrollments.CompleteEnrollment(ctx, enrollmentID, fromStep); err != nil {
			return err
		}
		log.Printf("[enrollments] completed enrollment=%s sequence=%s", enrollmentID, e.SequenceID)
		return nil
	}

	runAt := stepTime(e.StartedAt, seq.Steps[next].Day)
	job, err := buildStepJob(seq, e, next, runAt)
	if err != nil {
		return err
	}
	_, err = s.enrollments.AdvanceEnrollment(ctx, enrollmentID, fromStep, &runAt, job)
	return err
}

// Stop terminates an enrollment and cancels its pending step job.
// Idempotent: stopping an already-terminal enrollment, or one whose job
// was already claimed, is not an error.
func (s *EnrollmentService) Stop(ctx context.Context, workspaceID, enrollmentID, reason string) error {
	return s.terminate(ctx, workspaceID, enrollmentID, domain.EnrollmentStopped, reason)
}

func (s *EnrollmentService) terminate(ctx context.Context, workspaceID, enrollmentID string, status domain.EnrollmentStatus, reason string) error {
	e, err := s.enrollments.GetEnrollment(ctx, workspaceID, enrollmentID)
	if err != nil {
		return err
	}
	if e == nil {
		return domain.ErrEnrollmentNotFound
	}

	changed, err := s.enrollments.TerminateEnrollment(ctx, workspaceID, enrollmentID, status, reason)
	if err != nil {
		return err
	}
	if changed {
		log.Printf("[enrollments] %s enrollment=%s reason=%q", status, enrollmentID, reason)
	}

	cancelled, err := s.jobs.CancelPendingSequenceStepJobs(ctx, workspaceID, enrollmentID)
	if err != nil {
		return err
	}
	if cancelled == 0 && changed {
		// The step job may already be processing; it will observe the
		// terminal status and complete as a no-op.
		log.Printf("[enrollments] no pending job to cancel for enrollment=%s", enrollmentID)
	}
	return nil
}

// HandleCustomerReply stops the customer's active enrollments in
// sequences that opt in to stop-on-reply. Called synchronously by the
// inbound-message webhook handler.
func (s *EnrollmentService) HandleCustomerReply(ctx context.Context, workspaceID, customerID string) error {
	return s.stopByPolicy(ctx, workspaceID, customerID, func(seq *domain.Sequence) (bool, domain.EnrollmentStatus, string) {
		return seq.StopOnReply, domain.EnrollmentStopped, "customer replied"
	})
}

// HandleJobBooked marks the customer's active enrollments converted in
// sequences that stop on booking.
func (s *EnrollmentService) HandleJobBooked(ctx context.Context, workspaceID, customerID string) error {
	return s.stopByPolicy(ctx, workspaceID, customerID, func(seq *domain.Sequence) (bool, domain.EnrollmentStatus, string) {
		return seq.StopOnBooking, domain.EnrollmentConverted, "job booked"
	})
}

// Unsubscribe stops every active enrollment for the customer regardless
// of sequence policy.
func (s *EnrollmentService) Unsubscribe(ctx context.Context, workspaceID, customerID string) error {
	return s.stopByPolicy(ctx, workspaceID, customerID, func(*domain.Sequence) (bool, domain.EnrollmentStatus, string) {
		return true, domain.EnrollmentUnsubscribed, "customer unsubscribed"
	})
}

func (s *EnrollmentService) stopByPolicy(ctx context.Context, workspaceID, customerID string, policy func(*domain.Sequence) (bool, domain.EnrollmentStatus, string)) error {
	active, err := s.enrollments.ListEnrollments(ctx, domain.EnrollmentFilter{
		WorkspaceID: workspaceID,
		CustomerID:  customerID,
		Status:      domain.EnrollmentActive,
	})
	if err != nil {
		return err
	}

	for _, e := range active {
		seq, err := s.sequences.GetSequence(ctx, workspaceID, e.SequenceID)
		if err != nil {
			return err
		}
		if seq == nil {
			continue
		}
		stop, status, reason := policy(seq)
		if !stop {
			continue
		}
		if err := s.terminate(ctx, workspaceID, e.ID, status, reason); err != nil {
			return err
		}
	}
	return nil
}

// PauseForInactiveSequence parks an enrollment whose parent sequence
// was deactivated between scheduling and firing.
func (s *EnrollmentService) PauseForInactiveSequence(ctx context.Context, enrollmentID string) error {
	_, err := s.enrollments.PauseEnrollment(ctx, enrollmentID, "sequence deactivated")
	return err
}
