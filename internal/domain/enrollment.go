package domain

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const (
	EnrollmentActive       EnrollmentStatus = "active"
	EnrollmentPaused       EnrollmentStatus = "paused"
	EnrollmentCompleted    EnrollmentStatus = "completed"
	EnrollmentStopped      EnrollmentStatus = "stopped"
	EnrollmentUnsubscribed EnrollmentStatus = "unsubscribed"
	EnrollmentConverted    EnrollmentStatus = "converted"
)

// SequenceEnrollment tracks one customer's run through one sequence.
// At most one active enrollment may exist per (sequence, customer).
type SequenceEnrollment struct {
	ID          string
	WorkspaceID string
	SequenceID  string
	CustomerID  string
	CRMJobID    *string
	CurrentStep int
	Status      EnrollmentStatus
	StartedAt   time.Time
	NextStepAt  *time.Time
	CompletedAt *time.Time
	StoppedAt   *time.Time
	StopReason  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewEnrollment(workspaceID, sequenceID, customerID string, crmJobID *string) *SequenceEnrollment {
	now := time.Now()
	return &SequenceEnrollment{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		SequenceID:  sequenceID,
		CustomerID:  customerID,
		CRMJobID:    crmJobID,
		CurrentStep: 0,
		Status:      EnrollmentActive,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (e *SequenceEnrollment) Terminal() bool {
	switch e.Status {
	case EnrollmentCompleted, EnrollmentStopped, EnrollmentUnsubscribed, EnrollmentConverted:
		return true
	}
	return false
}
