package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

type JobType string

const (
	JobTypeSequenceStep     JobType = "sequence_step"
	JobTypeInvoiceReminder  JobType = "invoice_reminder"
	JobTypeReviewRequest    JobType = "review_request"
	JobTypeWeatherCheck     JobType = "weather_check"
	JobTypeSpeedToLead      JobType = "speed_to_lead"
	JobTypeMorningBriefing  JobType = "morning_briefing"
	JobTypeStatusUpdate     JobType = "status_update"
	JobTypeCrewNotification JobType = "crew_notification"
)

const DefaultMaxAttempts = 3

type BackgroundJob struct {
	ID           string
	WorkspaceID  string
	Type         JobType
	Status       JobStatus
	ScheduledFor time.Time
	Attempts     int
	MaxAttempts  int
	Payload      json.RawMessage
	Result       json.RawMessage
	LastError    *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewJob(workspaceID string, jobType JobType, payload json.RawMessage) *BackgroundJob {
	now := time.Now()
	return &BackgroundJob{
		ID:           uuid.New().String(),
		WorkspaceID:  workspaceID,
		Type:         jobType,
		Status:       JobStatusPending,
		ScheduledFor: now,
		Attempts:     0,
		MaxAttempts:  DefaultMaxAttempts,
		Payload:      payload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Terminal reports whether the job can no longer transition.
func (j *BackgroundJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type SequenceStepPayload struct {
	WorkspaceID  string  `json:"workspace_id"`
	EnrollmentID string  `json:"enrollment_id"`
	StepIndex    int     `json:"step_index"`
	CustomerID   string  `json:"customer_id"`
	Channel      Channel `json:"channel"`
	Template     string  `json:"template"`
	Subject      string  `json:"subject,omitempty"`
}

type InvoiceReminderPayload struct {
	WorkspaceID string  `json:"workspace_id"`
	InvoiceID   string  `json:"invoice_id"`
	CustomerID  string  `json:"customer_id"`
	AmountCents int64   `json:"amount_cents"`
	Channel     Channel `json:"channel"`
}

type ReviewRequestPayload struct {
	WorkspaceID string  `json:"workspace_id"`
	CustomerID  string  `json:"customer_id"`
	CRMJobID    string  `json:"crm_job_id"`
	ReviewLink  string  `json:"review_link"`
	Channel     Channel `json:"channel"`
}

type WeatherCheckPayload struct {
	WorkspaceID string  `json:"workspace_id"`
	CRMJobID    string  `json:"crm_job_id"`
	CrewPhone   string  `json:"crew_phone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	JobDate     string  `json:"job_date"`
}

type SpeedToLeadPayload struct {
	WorkspaceID string `json:"workspace_id"`
	CustomerID  string `json:"customer_id"`
	LeadSource  string `json:"lead_source,omitempty"`
}

type MorningBriefingPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

type StatusUpdatePayload struct {
	WorkspaceID string `json:"workspace_id"`
	CustomerID  string `json:"customer_id"`
	CRMJobID    string `json:"crm_job_id"`
	NewStatus   string `json:"new_status"`
}

type CrewNotificationPayload struct {
	WorkspaceID string `json:"workspace_id"`
	CrewPhone   string `json:"crew_phone"`
	Message     string `json:"message"`
}

// DecodePayload unmarshals a job payload into the struct for its type.
// The switch is exhaustive over JobType; adding a job type without a
// payload case fails every job of that type at dispatch time.
func DecodePayload(jobType JobType, raw json.RawMessage) (interface{}, error) {
	var dst interface{}
	switch jobType {
	case JobTypeSequenceStep:
		dst = &SequenceStepPayload{}
	case JobTypeInvoiceReminder:
		dst = &InvoiceReminderPayload{}
	case JobTypeReviewRequest:
		dst = &ReviewRequestPayload{}
	case JobTypeWeatherCheck:
		dst = &WeatherCheckPayload{}
	case JobTypeSpeedToLead:
		dst = &SpeedToLeadPayload{}
	case JobTypeMorningBriefing:
		dst = &MorningBriefingPayload{}
	case JobTypeStatusUpdate:
		dst = &StatusUpdatePayload{}
	case JobTypeCrewNotification:
		dst = &CrewNotificationPayload{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
	}
	return dst, nil
}

// HandlerResult is what a job handler returns. Handlers never write to
// the job row; the processor persists the outcome.
type HandlerResult struct {
	Success   bool
	Data      json.RawMessage
	Err       string
	Permanent bool
}

type JobStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
