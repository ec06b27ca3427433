package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/app"
	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type Handler struct {
	sequences   *app.SequenceService
	enrollments *app.EnrollmentService
	scheduler   *app.SchedulerService
	processor   *app.ProcessorService
	jobs        domain.JobRepository
	enrollRepo  domain.EnrollmentRepository
}

func NewHandler(
	sequences *app.SequenceService,
	enrollments *app.EnrollmentService,
	scheduler *app.SchedulerService,
	processor *app.ProcessorService,
	jobs domain.JobRepository,
	enrollRepo domain.EnrollmentRepository,
) *Handler {
	return &Handler{
		sequences:   sequences,
		enrollments: enrollments,
		scheduler:   scheduler,
		processor:   processor,
		jobs:        jobs,
		enrollRepo:  enrollRepo,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "workflow-engine"})
	})

	// Fired by an external cron-style trigger. Overlapping invocations
	// are safe; claiming is atomic.
	router.POST("/internal/process-jobs", h.ProcessJobs)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sequences", h.CreateSequence)
		v1.GET("/sequences", h.ListSequences)
		v1.GET("/sequences/:id", h.GetSequence)
		v1.PUT("/sequences/:id", h.UpdateSequence)
		v1.POST("/sequences/:id/activate", h.ActivateSequence)
		v1.POST("/sequences/:id/deactivate", h.DeactivateSequence)
		v1.GET("/sequences/:id/stats", h.SequenceStats)

		v1.POST("/enrollments", h.EnrollCustomer)
		v1.GET("/enrollments", h.ListEnrollments)
		v1.GET("/enrollments/:id", h.GetEnrollment)
		v1.POST("/enrollments/:id/stop", h.StopEnrollment)

		// CRM mutation handlers call these synchronously; they fan out
		// to the enrollment engine's stop policies.
		v1.POST("/events/customer-reply", h.CustomerReply)
		v1.POST("/events/job-booked", h.JobBooked)
		v1.POST("/events/unsubscribe", h.Unsubscribe)

		v1.GET("/jobs", h.ListJobs)
		v1.GET("/jobs/stats", h.JobStats)
		v1.GET("/jobs/:id", h.GetJob)
		v1.POST("/jobs/:id/cancel", h.CancelJob)
	}
}

func workspaceID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-Workspace-ID")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Workspace-ID header is required"})
		return "", false
	}
	return id, true
}

type SequenceRequest struct {
	Name          string                `json:"name" binding:"required"`
	TriggerType   domain.TriggerType    `json:"trigger_type" binding:"required"`
	StopOnReply   bool                  `json:"stop_on_reply"`
	StopOnBooking bool                  `json:"stop_on_booking"`
	Steps         []domain.SequenceStep `json:"steps" binding:"required"`
}

func (h *Handler) CreateSequence(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	var req SequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seq := domain.NewSequence(ws, req.Name, req.TriggerType, req.Steps)
	seq.StopOnReply = req.StopOnReply
	seq.StopOnBooking = req.StopOnBooking

	if err := h.sequences.Create(c, seq); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, seq)
}

func (h *Handler) UpdateSequence(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	seq, err := h.sequences.Get(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if seq == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sequence not found"})
		return
	}

	var req SequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seq.Name = req.Name
	seq.TriggerType = req.TriggerType
	seq.StopOnReply = req.StopOnReply
	seq.StopOnBooking = req.StopOnBooking
	seq.Steps = req.Steps

	if err := h.sequences.Update(c, seq); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (h *Handler) GetSequence(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	seq, err := h.sequences.Get(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if seq == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sequence not found"})
		return
	}
	c.JSON(http.StatusOK, seq)
}

func (h *Handler) ListSequences(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	seqs, err := h.sequences.List(c, ws)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sequences": seqs})
}

func (h *Handler) ActivateSequence(c *gin.Context) {
	h.setSequenceActive(c, true)
}

func (h *Handler) DeactivateSequence(c *gin.Context) {
	h.setSequenceActive(c, false)
}

func (h *Handler) setSequenceActive(c *gin.Context, active bool) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	var err error
	if active {
		err = h.sequences.Activate(c, ws, c.Param("id"))
	} else {
		err = h.sequences.Deactivate(c, ws, c.Param("id"))
	}
	if errors.Is(err, domain.ErrSequenceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sequence not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (h *Handler) SequenceStats(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	stats, err := h.sequences.Stats(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type EnrollRequest struct {
	SequenceID string  `json:"sequence_id" binding:"required"`
	CustomerID string  `json:"customer_id" binding:"required"`
	CRMJobID   *string `json:"crm_job_id"`
}

func (h *Handler) EnrollCustomer(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enrollment, err := h.enrollments.Enroll(c, ws, req.SequenceID, req.CustomerID, req.CRMJobID)
	switch {
	case errors.Is(err, domain.ErrSequenceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSequenceInactive), errors.Is(err, domain.ErrSequenceNoSteps):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, enrollment)
	}
}

type StopEnrollmentRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) StopEnrollment(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	var req StopEnrollmentRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "stopped by operator"
	}

	err := h.enrollments.Stop(c, ws, c.Param("id"), req.Reason)
	if errors.Is(err, domain.ErrEnrollmentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *Handler) GetEnrollment(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	e, err := h.enrollRepo.GetEnrollment(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEnrollments(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	list, err := h.enrollRepo.ListEnrollments(c, domain.EnrollmentFilter{
		WorkspaceID: ws,
		SequenceID:  c.Query("sequence_id"),
		CustomerID:  c.Query("customer_id"),
		Status:      domain.EnrollmentStatus(c.Query("status")),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": list})
}

type CustomerEventRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
}

func (h *Handler) CustomerReply(c *gin.Context) {
	h.customerEvent(c, h.enrollments.HandleCustomerReply)
}

func (h *Handler) JobBooked(c *gin.Context) {
	h.customerEvent(c, h.enrollments.HandleJobBooked)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	h.customerEvent(c, h.enrollments.Unsubscribe)
}

func (h *Handler) customerEvent(c *gin.Context, apply func(ctx context.Context, workspaceID, customerID string) error) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	var req CustomerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := apply(c, ws, req.CustomerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListJobs(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	jobs, err := h.jobs.ListJobs(c, domain.JobFilter{
		WorkspaceID: ws,
		Status:      domain.JobStatus(c.Query("status")),
		Type:        domain.JobType(c.Query("type")),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) GetJob(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) CancelJob(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	cancelled, err := h.scheduler.Cancel(c, ws, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

func (h *Handler) JobStats(c *gin.Context) {
	ws, ok := workspaceID(c)
	if !ok {
		return
	}

	stats, err := h.jobs.CountByStatus(c, ws)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type ProcessJobsRequest struct {
	BatchSize int `json:"batch_size"`
}

func (h *Handler) ProcessJobs(c *gin.Context) {
	var req ProcessJobsRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.processor.ProcessPendingJobs(c, req.BatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
