package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// JobHandlers holds every job type's handler. Dispatch is an exhaustive
// switch over JobType, so a new job type without a handler is an
// immediately visible gap rather than a silent dead queue.
type JobHandlers struct {
	dispatcher  domain.ChannelDispatcher
	customers   domain.CustomerReader
	crmJobs     domain.CRMJobReader
	workspaces  domain.WorkspaceReader
	weather     domain.WeatherService
	enrollments *EnrollmentService
	enrollRepo  domain.EnrollmentRepository
	sequences   domain.SequenceRepository
	jobs        domain.JobRepository
	scheduler   *SchedulerService
}

type JobHandlerDeps struct {
	Dispatcher     domain.ChannelDispatcher
	Customers      domain.CustomerReader
	CRMJobs        domain.CRMJobReader
	Workspaces     domain.WorkspaceReader
	Weather        domain.WeatherService
	Enrollments    *EnrollmentService
	EnrollmentRepo domain.EnrollmentRepository
	Sequences      domain.SequenceRepository
	Jobs           domain.JobRepository
	Scheduler      *SchedulerService
}

func NewJobHandlers(deps JobHandlerDeps) *JobHandlers {
	return &JobHandlers{
		dispatcher:  deps.Dispatcher,
		customers:   deps.Customers,
		crmJobs:     deps.CRMJobs,
		workspaces:  deps.Workspaces,
		weather:     deps.Weather,
		enrollments: deps.Enrollments,
		enrollRepo:  deps.EnrollmentRepo,
		sequences:   deps.Sequences,
		jobs:        deps.Jobs,
		scheduler:   deps.Scheduler,
	}
}

func (h *JobHandlers) Dispatch(ctx context.Context, job *domain.BackgroundJob) domain.HandlerResult {
	payload, err := domain.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return permanentFail(err.Error())
	}

	switch p := payload.(type) {
	case *domain.SequenceStepPayload:
		return h.handleSequenceStep(ctx, p)
	case *domain.InvoiceReminderPayload:
		return h.handleInvoiceReminder(ctx, p)
	case *domain.ReviewRequestPayload:
		return h.handleReviewRequest(ctx, p)
	case *domain.WeatherCheckPayload:
		return h.handleWeatherCheck(ctx, p)
	case *domain.SpeedToLeadPayload:
		return h.handleSpeedToLead(ctx, p)
	case *domain.MorningBriefingPayload:
		return h.handleMorningBriefing(ctx, p)
	case *domain.StatusUpdatePayload:
		return h.handleStatusUpdate(ctx, p)
	case *domain.CrewNotificationPayload:
		return h.handleCrewNotification(ctx, p)
	default:
		return permanentFail(fmt.Sprintf("no handler for job type %s", job.Type))
	}
}

// handleSequenceStep sends one step's message and advances the
// enrollment. The advance and the next step's job insert commit in one
// transaction, so a failure after the send fails this job too: the
// retry re-fires the step, the message may go out twice, and the
// conditional advance absorbs the duplicate. The channels are
// at-least-once anyway.
func (h *JobHandlers) handleSequenceStep(ctx context.Context, p *domain.SequenceStepPayload) domain.HandlerResult {
	e, err := h.enrollRepo.GetEnrollment(ctx, p.WorkspaceID, p.EnrollmentID)
	if err != nil {
		return fail(err.Error())
	}
	if e == nil || e.Terminal() || e.Status == domain.EnrollmentPaused {
		return okNote("enrollment no longer active")
	}
	if e.CurrentStep != p.StepIndex {
		// Stale job from a redelivery; the enrollment already moved on.
		return okNote("enrollment already past this step")
	}

	seq, err := h.sequences.GetSequence(ctx, p.WorkspaceID, e.SequenceID)
	if err != nil {
		return fail(err.Error())
	}
	if seq == nil {
		return okNote("sequence deleted")
	}
	if !seq.Active {
		if err := h.enrollments.PauseForInactiveSequence(ctx, e.ID); err != nil {
			return fail(err.Error())
		}
		return okNote("sequence inactive, enrollment paused")
	}

	customer, err := h.customers.GetCustomer(ctx, p.WorkspaceID, p.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return permanentFail("customer not found")
		}
		return fail(err.Error())
	}
	if customer.OptedOut {
		if err := h.enrollments.Unsubscribe(ctx, p.WorkspaceID, p.CustomerID); err != nil {
			return fail(err.Error())
		}
		return okNote("customer opted out")
	}

	tc := TemplateContext{Customer: customer}
	if e.CRMJobID != nil {
		tc.CRMJob, err = h.crmJobs.GetCRMJob(ctx, p.WorkspaceID, *e.CRMJobID)
		if err != nil {
			return fail(err.Error())
		}
	}
	tc.Workspace, err = h.workspaces.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return fail(err.Error())
	}

	// Conditions come from the live definition, not the payload
	// snapshot; they gate the send, never the progression.
	if p.StepIndex < len(seq.Steps) {
		if cond := seq.Steps[p.StepIndex].Condition; cond != nil && !EvaluateCondition(cond, tc) {
			if err := h.enrollments.AdvanceFromStep(ctx, p.WorkspaceID, p.EnrollmentID, p.StepIndex); err != nil {
				return fail(err.Error())
			}
			return okNote("step condition false, skipped")
		}
	}

	body := RenderTemplate(p.Template, tc)
	subject := RenderTemplate(p.Subject, tc)

	res := h.send(ctx, p.Channel, p.WorkspaceID, customer, subject, body)
	if !res.Success {
		return domain.HandlerResult{Success: false, Err: res.Error, Permanent: res.Permanent}
	}

	if err := h.enrollments.AdvanceFromStep(ctx, p.WorkspaceID, p.EnrollmentID, p.StepIndex); err != nil {
		// The message went out but the enrollment did not move.
		// Returning failure keeps the job retryable; without it the
		// enrollment would sit at this step with no job to drive it.
		log.Printf("[handlers] advance enrollment=%s step=%d: %v", p.EnrollmentID, p.StepIndex, err)
		return fail(fmt.Sprintf("advance after send: %v", err))
	}
	return okData(map[string]interface{}{"sent": true, "channel": p.Channel})
}

func (h *JobHandlers) handleInvoiceReminder(ctx context.Context, p *domain.InvoiceReminderPayload) domain.HandlerResult {
	customer, res := h.lookupCustomer(ctx, p.WorkspaceID, p.CustomerID)
	if customer == nil {
		return res
	}

	amount := fmt.Sprintf("$%.2f", float64(p.AmountCents)/100)
	body := fmt.Sprintf("Hi %s, a friendly reminder that your invoice for %s is past due. Reply here with any questions.",
		firstNameOr(customer), amount)

	return fromDispatch(h.send(ctx, channelOr(p.Channel, domain.ChannelSMS), p.WorkspaceID, customer, "Invoice past due", body))
}

func (h *JobHandlers) handleReviewRequest(ctx context.Context, p *domain.ReviewRequestPayload) domain.HandlerResult {
	customer, res := h.lookupCustomer(ctx, p.WorkspaceID, p.CustomerID)
	if customer == nil {
		return res
	}

	body := fmt.Sprintf("Hi %s, thanks for choosing us! If you have a minute, we'd love a review: %s",
		firstNameOr(customer), p.ReviewLink)

	return fromDispatch(h.send(ctx, channelOr(p.Channel, domain.ChannelSMS), p.WorkspaceID, customer, "How did we do?", body))
}

func (h *JobHandlers) handleSpeedToLead(ctx context.Context, p *domain.SpeedToLeadPayload) domain.HandlerResult {
	customer, res := h.lookupCustomer(ctx, p.WorkspaceID, p.CustomerID)
	if customer == nil {
		return res
	}
	if customer.Phone == "" {
		return permanentFail("lead has no phone number")
	}

	body := fmt.Sprintf("Hi %s! Thanks for reaching out. We got your request and someone will call you shortly.",
		firstNameOr(customer))
	return fromDispatch(h.dispatcher.SendSMS(ctx, p.WorkspaceID, customer.Phone, body))
}

func (h *JobHandlers) handleMorningBriefing(ctx context.Context, p *domain.MorningBriefingPayload) domain.HandlerResult {
	ws, err := h.workspaces.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return fail(err.Error())
	}
	if ws == nil || ws.OwnerEmail == "" {
		return permanentFail("workspace has no owner email")
	}

	due, err := h.jobs.CountDueJobs(ctx, p.WorkspaceID)
	if err != nil {
		return fail(err.Error())
	}
	active, err := h.enrollRepo.CountActiveEnrollments(ctx, p.WorkspaceID)
	if err != nil {
		return fail(err.Error())
	}

	body := fmt.Sprintf("Good morning! %d automations are queued for today and %d customers are in active outreach sequences.",
		due, active)
	return fromDispatch(h.dispatcher.SendEmail(ctx, p.WorkspaceID, ws.OwnerEmail, "Your morning briefing", body))
}

func (h *JobHandlers) handleStatusUpdate(ctx context.Context, p *domain.StatusUpdatePayload) domain.HandlerResult {
	customer, res := h.lookupCustomer(ctx, p.WorkspaceID, p.CustomerID)
	if customer == nil {
		return res
	}

	crmJob, err := h.crmJobs.GetCRMJob(ctx, p.WorkspaceID, p.CRMJobID)
	if err != nil {
		return fail(err.Error())
	}
	title := "your project"
	if crmJob != nil && crmJob.Title != "" {
		title = crmJob.Title
	}

	body := fmt.Sprintf("Hi %s, an update on %s: it is now %s.", firstNameOr(customer), title, p.NewStatus)
	return fromDispatch(h.send(ctx, domain.ChannelSMS, p.WorkspaceID, customer, "Project update", body))
}

func (h *JobHandlers) handleCrewNotification(ctx context.Context, p *domain.CrewNotificationPayload) domain.HandlerResult {
	if p.CrewPhone == "" {
		return permanentFail("crew notification has no phone number")
	}
	return fromDispatch(h.dispatcher.SendSMS(ctx, p.WorkspaceID, p.CrewPhone, p.Message))
}

// handleWeatherCheck looks at the forecast for a scheduled job's site
// and warns the crew when rain is likely.
func (h *JobHandlers) handleWeatherCheck(ctx context.Context, p *domain.WeatherCheckPayload) domain.HandlerResult {
	forecast, err := h.weather.GetForecast(ctx, p.Latitude, p.Longitude, p.JobDate)
	if err != nil {
		return fail(err.Error())
	}

	const rainThreshold = 0.5
	if forecast.RainProbability < rainThreshold {
		return okData(map[string]interface{}{"rain_probability": forecast.RainProbability, "warned": false})
	}

	warn := domain.CrewNotificationPayload{
		WorkspaceID: p.WorkspaceID,
		CrewPhone:   p.CrewPhone,
		Message:     fmt.Sprintf("Weather alert for job on %s: %s. Check the schedule.", p.JobDate, forecast.Summary),
	}
	if _, err := h.scheduler.Schedule(ctx, p.WorkspaceID, domain.JobTypeCrewNotification, warn, ScheduleOptions{}); err != nil {
		return fail(fmt.Sprintf("schedule crew warning: %v", err))
	}
	return okData(map[string]interface{}{"rain_probability": forecast.RainProbability, "warned": true})
}

func (h *JobHandlers) lookupCustomer(ctx context.Context, workspaceID, customerID string) (*domain.Customer, domain.HandlerResult) {
	customer, err := h.customers.GetCustomer(ctx, workspaceID, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return nil, permanentFail("customer not found")
		}
		return nil, fail(err.Error())
	}
	if customer.OptedOut {
		return nil, permanentFail("customer opted out of messages")
	}
	return customer, domain.HandlerResult{}
}

func (h *JobHandlers) send(ctx context.Context, channel domain.Channel, workspaceID string, customer *domain.Customer, subject, body string) domain.DispatchResult {
	switch channel {
	case domain.ChannelSMS:
		if customer.Phone == "" {
			return domain.DispatchResult{Success: false, Error: "customer has no phone number", Permanent: true}
		}
		return h.dispatcher.SendSMS(ctx, workspaceID, customer.Phone, body)
	case domain.ChannelEmail:
		if customer.Email == "" {
			return domain.DispatchResult{Success: false, Error: "customer has no email address", Permanent: true}
		}
		return h.dispatcher.SendEmail(ctx, workspaceID, customer.Email, subject, body)
	case domain.ChannelVoice:
		if customer.Phone == "" {
			return domain.DispatchResult{Success: false, Error: "customer has no phone number", Permanent: true}
		}
		return h.dispatcher.SendVoice(ctx, workspaceID, customer.Phone, body)
	default:
		return domain.DispatchResult{Success: false, Error: fmt.Sprintf("unknown channel %q", channel), Permanent: true}
	}
}

func channelOr(c, fallback domain.Channel) domain.Channel {
	if c == "" {
		return fallback
	}
	return c
}

func firstNameOr(c *domain.Customer) string {
	if c.FirstName != "" {
		return c.FirstName
	}
	if c.Name != "" {
		return c.Name
	}
	return "there"
}

func okNote(note string) domain.HandlerResult {
	return okData(map[string]interface{}{"note": note})
}

func okData(data map[string]interface{}) domain.HandlerResult {
	raw, _ := json.Marshal(data)
	return domain.HandlerResult{Success: true, Data: raw}
}

func fromDispatch(res domain.DispatchResult) domain.HandlerResult {
	if res.Success {
		return okData(map[string]interface{}{"sent": true})
	}
	return domain.HandlerResult{Success: false, Err: res.Error, Permanent: res.Permanent}
}

func fail(err string) domain.HandlerResult {
	return domain.HandlerResult{Success: false, Err: err}
}

func permanentFail(err string) domain.HandlerResult {
	return domain.HandlerResult{Success: false, Err: err, Permanent: true}
}
