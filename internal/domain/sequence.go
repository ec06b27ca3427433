package domain

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelVoice Channel = "voice"
)

type TriggerType string

const (
	TriggerManual         TriggerType = "manual"
	TriggerNewLead        TriggerType = "new_lead"
	TriggerEstimateSent   TriggerType = "estimate_sent"
	TriggerInvoiceOverdue TriggerType = "invoice_overdue"
	TriggerJobCompleted   TriggerType = "job_completed"
	TriggerJobScheduled   TriggerType = "job_scheduled"
)

type ConditionOp string

const (
	ConditionEq  ConditionOp = "eq"
	ConditionNeq ConditionOp = "neq"
)

// StepCondition gates the send of a single step against current CRM
// state. A false condition skips the send; the enrollment advances
// either way.
type StepCondition struct {
	Field string      `json:"field"`
	Op    ConditionOp `json:"op"`
	Value string      `json:"value"`
}

type SequenceStep struct {
	// Day is a signed offset in days from enrollment start. Negative
	// values mean "before the anchor", e.g. -1 for a day-before
	// reminder on sequences anchored to a scheduled job.
	Day       int            `json:"day"`
	Channel   Channel        `json:"channel"`
	Template  string         `json:"template"`
	Subject   string         `json:"subject,omitempty"`
	Condition *StepCondition `json:"condition,omitempty"`
}

type Sequence struct {
	ID            string
	WorkspaceID   string
	Name          string
	TriggerType   TriggerType
	Active        bool
	StopOnReply   bool
	StopOnBooking bool
	Steps         []SequenceStep
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewSequence(workspaceID, name string, trigger TriggerType, steps []SequenceStep) *Sequence {
	now := time.Now()
	return &Sequence{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        name,
		TriggerType: trigger,
		Active:      true,
		Steps:       steps,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SequenceStats is derived on read from the enrollments table; the
// sequence row itself carries no counters.
type SequenceStats struct {
	TotalEnrolled  int
	Active         int
	TotalCompleted int
	TotalConverted int
	Stopped        int
}
