package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

const testWorkspace = "ws-1"

func newTestSequence(steps []domain.SequenceStep) *domain.Sequence {
	seq := domain.NewSequence(testWorkspace, "Lead follow-up", domain.TriggerNewLead, steps)
	return seq
}

func threeStepSequence() *domain.Sequence {
	return newTestSequence([]domain.SequenceStep{
		{Day: 0, Channel: domain.ChannelSMS, Template: "Hi {{name}}"},
		{Day: 3, Channel: domain.ChannelEmail, Template: "Following up, {{name}}", Subject: "Checking in"},
		{Day: 7, Channel: domain.ChannelSMS, Template: "Last try, {{name}}"},
	})
}

func newEnrollmentFixture() (*EnrollmentService, *MockEnrollmentRepository, *MockSequenceRepository, *MockJobRepository) {
	enrollRepo := new(MockEnrollmentRepository)
	seqRepo := new(MockSequenceRepository)
	jobRepo := new(MockJobRepository)
	svc := NewEnrollmentService(enrollRepo, seqRepo, jobRepo)
	return svc, enrollRepo, seqRepo, jobRepo
}

func decodeStepPayload(t *testing.T, job *domain.BackgroundJob) domain.SequenceStepPayload {
	t.Helper()
	var p domain.SequenceStepPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	return p
}

func TestEnrollCreatesEnrollmentAndStepZeroJob(t *testing.T) {
	svc, enrollRepo, seqRepo, jobRepo := newEnrollmentFixture()
	seq := threeStepSequence()

	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("GetActiveEnrollment", mock.Anything, testWorkspace, seq.ID, "cust-1").Return(nil, nil)

	// The step-0 job rides along in the same CreateEnrollment call.
	var scheduled *domain.BackgroundJob
	enrollRepo.On("CreateEnrollment", mock.Anything, mock.Anything, mock.MatchedBy(func(job *domain.BackgroundJob) bool {
		scheduled = job
		return job.Type == domain.JobTypeSequenceStep
	})).Return(nil)

	before := time.Now()
	e, err := svc.Enroll(context.Background(), testWorkspace, seq.ID, "cust-1", nil)

	require.NoError(t, err)
	jobRepo.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	assert.Equal(t, 0, e.CurrentStep)
	assert.Equal(t, domain.EnrollmentActive, e.Status)
	require.NotNil(t, e.NextStepAt)

	require.NotNil(t, scheduled)
	// Step 0 has day offset 0: due immediately.
	assert.WithinDuration(t, before, scheduled.ScheduledFor, 5*time.Second)
	assert.Equal(t, domain.JobStatusPending, scheduled.Status)
	assert.Equal(t, testWorkspace, scheduled.WorkspaceID)

	p := decodeStepPayload(t, scheduled)
	assert.Equal(t, e.ID, p.EnrollmentID)
	assert.Equal(t, 0, p.StepIndex)
	assert.Equal(t, domain.ChannelSMS, p.Channel)
	assert.Equal(t, "Hi {{name}}", p.Template)
}

func TestEnrollRejectsDuplicateActiveEnrollment(t *testing.T) {
	svc, enrollRepo, seqRepo, _ := newEnrollmentFixture()
	seq := threeStepSequence()
	existing := domain.NewEnrollment(testWorkspace, seq.ID, "cust-1", nil)

	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("GetActiveEnrollment", mock.Anything, testWorkspace, seq.ID, "cust-1").Return(existing, nil)

	_, err := svc.Enroll(context.Background(), testWorkspace, seq.ID, "cust-1", nil)

	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
	enrollRepo.AssertNotCalled(t, "CreateEnrollment", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnrollSurfacesRepositoryConflict(t *testing.T) {
	svc, enrollRepo, seqRepo, _ := newEnrollmentFixture()
	seq := threeStepSequence()

	// A racing enrollment slips between the pre-check and the insert;
	// the repository reports the unique-index conflict.
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("GetActiveEnrollment", mock.Anything, testWorkspace, seq.ID, "cust-1").Return(nil, nil)
	enrollRepo.On("CreateEnrollment", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrAlreadyEnrolled)

	_, err := svc.Enroll(context.Background(), testWorkspace, seq.ID, "cust-1", nil)

	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
}

func TestEnrollRejectsInactiveSequence(t *testing.T) {
	svc, _, seqRepo, _ := newEnrollmentFixture()
	seq := threeStepSequence()
	seq.Active = false

	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)

	_, err := svc.Enroll(context.Background(), testWorkspace, seq.ID, "cust-1", nil)

	assert.ErrorIs(t, err, domain.ErrSequenceInactive)
}

func TestEnrollRejectsEmptySequence(t *testing.T) {
	svc, _, seqRepo, _ := newEnrollmentFixture()
	seq := newTestSequence(nil)

	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)

	_, err := svc.Enroll(context.Background(), testWorkspace, seq.ID, "cust-1", nil)

	assert.ErrorIs(t, err, domain.ErrSequenceNoSteps)
}

func TestEnrollRejectsMissingSequence(t *testing.T) {
	svc, _, seqRepo, _ := newEnrollmentFixture()

	seqRepo.On("GetSequence", mock.Anything, testWorkspace, "seq-missing").Return(nil, nil)

	_, err := svc.Enroll(context.Background(), testWorkspace, "seq-missing", "cust-1", nil)

	assert.ErrorIs(t, err, domain.ErrSequenceNotFound)
}

func TestAdvanceSchedulesNextStepRelativeToStart(t *testing.T) {
	svc, enrollRepo, seqRepo, jobRepo := newEnrollmentFixture()
	seq := threeStepSequence()

	// The enrollment started two days ago and step 0 just succeeded
	// (late, after retries). Step 1's time must still be start+3d, not
	// now+3d.
	e := domain.NewEnrollment(testWorkspace, seq.ID, "cust-1", nil)
	e.StartedAt = time.Now().Add(-48 * time.Hour)
	wantRunAt := e.StartedAt.Add(3 * 24 * time.Hour)

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)

	// The step-1 job travels with the advance in one call.
	var scheduled *domain.BackgroundJob
	enrollRepo.On("AdvanceEnrollment", mock.Anything, e.ID, 0, mock.MatchedBy(func(next *time.Time) bool {
		return next != nil && next.Equal(wantRunAt)
	}), mock.MatchedBy(func(job *domain.BackgroundJob) bool {
		scheduled = job
		return job.Type == domain.JobTypeSequenceStep
	})).Return(true, nil)

	err := svc.AdvanceFromStep(context.Background(), testWorkspace, e.ID, 0)

	require.NoError(t, err)
	jobRepo.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	require.NotNil(t, scheduled)
	assert.True(t, scheduled.ScheduledFor.Equal(wantRunAt))

	p := decodeStepPayload(t, scheduled)
	assert.Equal(t, 1, p.StepIndex)
	assert.Equal(t, domain.ChannelEmail, p.Channel)
	assert.Equal(t, "Checking in", p.Subject)
}

func TestAdvanceCompletesOnLastStep(t *testing.T) {
	svc, enrollRepo, seqRepo, jobRepo := newEnrollmentFixture()
	seq := threeStepSequence()

	e := domain.NewEnrollment(testWorkspace, seq.ID, "cust-1", nil)
	e.CurrentStep = 2

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("CompleteEnrollment", mock.Anything, e.ID, 2).Return(true, nil)

	err := svc.AdvanceFromStep(context.Background(), testWorkspace, e.ID, 2)

	require.NoError(t, err)
	jobRepo.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	enrollRepo.AssertExpectations(t)
}

func TestAdvanceIsNoOpWhenStepAlreadyMoved(t *testing.T) {
	svc, enrollRepo, _, jobRepo := newEnrollmentFixture()

	e := domain.NewEnrollment(testWorkspace, "seq-1", "cust-1", nil)
	e.CurrentStep = 1

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)

	// Redelivered step-0 job: the enrollment already moved past it.
	err := svc.AdvanceFromStep(context.Background(), testWorkspace, e.ID, 0)

	require.NoError(t, err)
	enrollRepo.AssertNotCalled(t, "AdvanceEnrollment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestAdvancePropagatesRepositoryFailure(t *testing.T) {
	svc, enrollRepo, seqRepo, _ := newEnrollmentFixture()
	seq := threeStepSequence()

	e := domain.NewEnrollment(testWorkspace, seq.ID, "cust-1", nil)

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("AdvanceEnrollment", mock.Anything, e.ID, 0, mock.Anything, mock.Anything).
		Return(false, errors.New("insert job: connection reset"))

	err := svc.AdvanceFromStep(context.Background(), testWorkspace, e.ID, 0)

	// Nothing committed, so the caller must see the failure and let
	// the step job retry.
	assert.Error(t, err)
}

func TestStopTerminatesAndCancelsPendingJob(t *testing.T) {
	svc, enrollRepo, _, jobRepo := newEnrollmentFixture()

	e := domain.NewEnrollment(testWorkspace, "seq-1", "cust-1", nil)

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	enrollRepo.On("TerminateEnrollment", mock.Anything, testWorkspace, e.ID, domain.EnrollmentStopped, "customer asked").Return(true, nil)
	jobRepo.On("CancelPendingSequenceStepJobs", mock.Anything, testWorkspace, e.ID).Return(1, nil)

	err := svc.Stop(context.Background(), testWorkspace, e.ID, "customer asked")

	require.NoError(t, err)
	enrollRepo.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestStopIsIdempotent(t *testing.T) {
	svc, enrollRepo, _, jobRepo := newEnrollmentFixture()

	e := domain.NewEnrollment(testWorkspace, "seq-1", "cust-1", nil)
	e.Status = domain.EnrollmentStopped

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	// Already terminal: the conditional update matches nothing.
	enrollRepo.On("TerminateEnrollment", mock.Anything, testWorkspace, e.ID, domain.EnrollmentStopped, "again").Return(false, nil)
	// And no pending job exists either.
	jobRepo.On("CancelPendingSequenceStepJobs", mock.Anything, testWorkspace, e.ID).Return(0, nil)

	err := svc.Stop(context.Background(), testWorkspace, e.ID, "again")

	assert.NoError(t, err)
}

func TestStopMissingEnrollment(t *testing.T) {
	svc, enrollRepo, _, _ := newEnrollmentFixture()

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, "nope").Return(nil, nil)

	err := svc.Stop(context.Background(), testWorkspace, "nope", "reason")

	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestHandleCustomerReplyHonorsStopOnReply(t *testing.T) {
	svc, enrollRepo, seqRepo, jobRepo := newEnrollmentFixture()

	stopSeq := threeStepSequence()
	stopSeq.StopOnReply = true
	keepSeq := threeStepSequence()
	keepSeq.StopOnReply = false

	e1 := domain.NewEnrollment(testWorkspace, stopSeq.ID, "cust-1", nil)
	e2 := domain.NewEnrollment(testWorkspace, keepSeq.ID, "cust-1", nil)

	enrollRepo.On("ListEnrollments", mock.Anything, domain.EnrollmentFilter{
		WorkspaceID: testWorkspace,
		CustomerID:  "cust-1",
		Status:      domain.EnrollmentActive,
	}).Return([]*domain.SequenceEnrollment{e1, e2}, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, stopSeq.ID).Return(stopSeq, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, keepSeq.ID).Return(keepSeq, nil)

	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e1.ID).Return(e1, nil)
	enrollRepo.On("TerminateEnrollment", mock.Anything, testWorkspace, e1.ID, domain.EnrollmentStopped, "customer replied").Return(true, nil)
	jobRepo.On("CancelPendingSequenceStepJobs", mock.Anything, testWorkspace, e1.ID).Return(1, nil)

	err := svc.HandleCustomerReply(context.Background(), testWorkspace, "cust-1")

	require.NoError(t, err)
	// The sequence without stop-on-reply is left alone.
	enrollRepo.AssertNotCalled(t, "TerminateEnrollment", mock.Anything, testWorkspace, e2.ID, mock.Anything, mock.Anything)
}

func TestHandleJobBookedMarksConverted(t *testing.T) {
	svc, enrollRepo, seqRepo, jobRepo := newEnrollmentFixture()

	seq := threeStepSequence()
	seq.StopOnBooking = true
	e := domain.NewEnrollment(testWorkspace, seq.ID, "cust-1", nil)

	enrollRepo.On("ListEnrollments", mock.Anything, mock.Anything).Return([]*domain.SequenceEnrollment{e}, nil)
	seqRepo.On("GetSequence", mock.Anything, testWorkspace, seq.ID).Return(seq, nil)
	enrollRepo.On("GetEnrollment", mock.Anything, testWorkspace, e.ID).Return(e, nil)
	enrollRepo.On("TerminateEnrollment", mock.Anything, testWorkspace, e.ID, domain.EnrollmentConverted, "job booked").Return(true, nil)
	jobRepo.On("CancelPendingSequenceStepJobs", mock.Anything, testWorkspace, e.ID).Return(0, nil)

	err := svc.HandleJobBooked(context.Background(), testWorkspace, "cust-1")

	require.NoError(t, err)
	enrollRepo.AssertExpectations(t)
}
