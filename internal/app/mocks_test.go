package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) CreateJob(ctx context.Context, job *domain.BackgroundJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetJob(ctx context.Context, workspaceID, id string) (*domain.BackgroundJob, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BackgroundJob), args.Error(1)
}

func (m *MockJobRepository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.BackgroundJob, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BackgroundJob), args.Error(1)
}

func (m *MockJobRepository) ClaimDueJobs(ctx context.Context, limit int) ([]*domain.BackgroundJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BackgroundJob), args.Error(1)
}

func (m *MockJobRepository) ReclaimStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, id string, attempts int, jobErr string) error {
	args := m.Called(ctx, id, attempts, jobErr)
	return args.Error(0)
}

func (m *MockJobRepository) MarkRetry(ctx context.Context, id string, attempts int, runAt time.Time, jobErr string) error {
	args := m.Called(ctx, id, attempts, runAt, jobErr)
	return args.Error(0)
}

func (m *MockJobRepository) CancelPending(ctx context.Context, workspaceID, id string) (bool, error) {
	args := m.Called(ctx, workspaceID, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) CancelPendingSequenceStepJobs(ctx context.Context, workspaceID, enrollmentID string) (int, error) {
	args := m.Called(ctx, workspaceID, enrollmentID)
	return args.Int(0), args.Error(1)
}

func (m *MockJobRepository) CountByStatus(ctx context.Context, workspaceID string) (*domain.JobStats, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobStats), args.Error(1)
}

func (m *MockJobRepository) CountDueJobs(ctx context.Context, workspaceID string) (int, error) {
	args := m.Called(ctx, workspaceID)
	return args.Int(0), args.Error(1)
}

type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) CreateSequence(ctx context.Context, seq *domain.Sequence) error {
	args := m.Called(ctx, seq)
	return args.Error(0)
}

func (m *MockSequenceRepository) GetSequence(ctx context.Context, workspaceID, id string) (*domain.Sequence, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sequence), args.Error(1)
}

func (m *MockSequenceRepository) UpdateSequence(ctx context.Context, seq *domain.Sequence) error {
	args := m.Called(ctx, seq)
	return args.Error(0)
}

func (m *MockSequenceRepository) SetActive(ctx context.Context, workspaceID, id string, active bool) error {
	args := m.Called(ctx, workspaceID, id, active)
	return args.Error(0)
}

func (m *MockSequenceRepository) ListSequences(ctx context.Context, workspaceID string) ([]*domain.Sequence, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Sequence), args.Error(1)
}

type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) CreateEnrollment(ctx context.Context, e *domain.SequenceEnrollment, stepJob *domain.BackgroundJob) error {
	args := m.Called(ctx, e, stepJob)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) GetEnrollment(ctx context.Context, workspaceID, id string) (*domain.SequenceEnrollment, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) ListEnrollments(ctx context.Context, filter domain.EnrollmentFilter) ([]*domain.SequenceEnrollment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SequenceEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) GetActiveEnrollment(ctx context.Context, workspaceID, sequenceID, customerID string) (*domain.SequenceEnrollment, error) {
	args := m.Called(ctx, workspaceID, sequenceID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) AdvanceEnrollment(ctx context.Context, id string, fromStep int, nextStepAt *time.Time, nextJob *domain.BackgroundJob) (bool, error) {
	args := m.Called(ctx, id, fromStep, nextStepAt, nextJob)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) CompleteEnrollment(ctx context.Context, id string, fromStep int) (bool, error) {
	args := m.Called(ctx, id, fromStep)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) TerminateEnrollment(ctx context.Context, workspaceID, id string, status domain.EnrollmentStatus, reason string) (bool, error) {
	args := m.Called(ctx, workspaceID, id, status, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) PauseEnrollment(ctx context.Context, id string, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) ResumeEnrollments(ctx context.Context, workspaceID, sequenceID string) ([]*domain.SequenceEnrollment, error) {
	args := m.Called(ctx, workspaceID, sequenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SequenceEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) CountActiveEnrollments(ctx context.Context, workspaceID string) (int, error) {
	args := m.Called(ctx, workspaceID)
	return args.Int(0), args.Error(1)
}

func (m *MockEnrollmentRepository) SequenceStats(ctx context.Context, workspaceID, sequenceID string) (*domain.SequenceStats, error) {
	args := m.Called(ctx, workspaceID, sequenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceStats), args.Error(1)
}

// MockDispatcher records sends and returns a scripted result.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) SendSMS(ctx context.Context, workspaceID, to, body string) domain.DispatchResult {
	args := m.Called(ctx, workspaceID, to, body)
	return args.Get(0).(domain.DispatchResult)
}

func (m *MockDispatcher) SendEmail(ctx context.Context, workspaceID, to, subject, body string) domain.DispatchResult {
	args := m.Called(ctx, workspaceID, to, subject, body)
	return args.Get(0).(domain.DispatchResult)
}

func (m *MockDispatcher) SendVoice(ctx context.Context, workspaceID, to, script string) domain.DispatchResult {
	args := m.Called(ctx, workspaceID, to, script)
	return args.Get(0).(domain.DispatchResult)
}
