package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// SequenceService covers the admin surface over sequence definitions.
type SequenceService struct {
	sequences   domain.SequenceRepository
	enrollments domain.EnrollmentRepository
	scheduler   *SchedulerService
}

func NewSequenceService(sequences domain.SequenceRepository, enrollments domain.EnrollmentRepository, scheduler *SchedulerService) *SequenceService {
	return &SequenceService{sequences: sequences, enrollments: enrollments, scheduler: scheduler}
}

func (s *SequenceService) Create(ctx context.Context, seq *domain.Sequence) error {
	if err := validateSteps(seq.Steps); err != nil {
		return err
	}
	return s.sequences.CreateSequence(ctx, seq)
}

// Update edits the definition. Already-scheduled step jobs carry their
// own template snapshot and are unaffected; steps scheduled after this
// call use the new definition.
func (s *SequenceService) Update(ctx context.Context, seq *domain.Sequence) error {
	if err := validateSteps(seq.Steps); err != nil {
		return err
	}
	return s.sequences.UpdateSequence(ctx, seq)
}

func (s *SequenceService) Get(ctx context.Context, workspaceID, id string) (*domain.Sequence, error) {
	return s.sequences.GetSequence(ctx, workspaceID, id)
}

func (s *SequenceService) List(ctx context.Context, workspaceID string) ([]*domain.Sequence, error) {
	return s.sequences.ListSequences(ctx, workspaceID)
}

func (s *SequenceService) Stats(ctx context.Context, workspaceID, id string) (*domain.SequenceStats, error) {
	return s.enrollments.SequenceStats(ctx, workspaceID, id)
}

// Deactivate pauses the sequence's enrollments without deleting
// history. Step jobs already in the table still fire, observe the
// inactive flag, and park their enrollment instead of sending.
func (s *SequenceService) Deactivate(ctx context.Context, workspaceID, id string) error {
	return s.sequences.SetActive(ctx, workspaceID, id, false)
}

// Activate re-enables the sequence and resumes its paused enrollments,
// rescheduling each one's current step at its original start-relative
// offset (or now, when that offset is already past).
func (s *SequenceService) Activate(ctx context.Context, workspaceID, id string) error {
	if err := s.sequences.SetActive(ctx, workspaceID, id, true); err != nil {
		return err
	}

	seq, err := s.sequences.GetSequence(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if seq == nil {
		return domain.ErrSequenceNotFound
	}

	resumed, err := s.enrollments.ResumeEnrollments(ctx, workspaceID, id)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, e := range resumed {
		if e.CurrentStep >= len(seq.Steps) {
			continue
		}
		step := seq.Steps[e.CurrentStep]
		runAt := stepTime(e.StartedAt, step.Day)
		if runAt.Before(now) {
			runAt = now
		}
		payload := domain.SequenceStepPayload{
			WorkspaceID:  e.WorkspaceID,
			EnrollmentID: e.ID,
			StepIndex:    e.CurrentStep,
			CustomerID:   e.CustomerID,
			Channel:      step.Channel,
			Template:     step.Template,
			Subject:      step.Subject,
		}
		if _, err := s.scheduler.Schedule(ctx, workspaceID, domain.JobTypeSequenceStep, payload, ScheduleOptions{RunAt: &runAt}); err != nil {
			log.Printf("[sequences] failed to reschedule enrollment %s on activate: %v", e.ID, err)
		}
	}

	if len(resumed) > 0 {
		log.Printf("[sequences] activated sequence=%s resumed=%d enrollments", id, len(resumed))
	}
	return nil
}

// validateSteps checks channel and template. Day offsets are not
// range-checked: negative offsets are meaningful for enrollments
// anchored to an upcoming appointment, and any offset at or before
// enrollment time simply fires on the next processor pass.
func validateSteps(steps []domain.SequenceStep) error {
	for _, step := range steps {
		switch step.Channel {
		case domain.ChannelSMS, domain.ChannelEmail, domain.ChannelVoice:
		default:
			return errors.New("step channel must be one of sms, email, voice")
		}
		if step.Template == "" {
			return errors.New("step template is required")
		}
	}
	return nil
}
