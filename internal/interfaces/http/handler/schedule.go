package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	recurringapp "github.com/giveflow/backend/internal/application/recurring"
	"github.com/giveflow/backend/internal/domain/recurring"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// ScheduleHandler handles recurrence schedule API endpoints
type ScheduleHandler struct {
	BaseHandler
	schedulerService *recurringapp.SchedulerService
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(schedulerService *recurringapp.SchedulerService) *ScheduleHandler {
	return &ScheduleHandler{schedulerService: schedulerService}
}

// CreateScheduleRequest represents a request to create a recurrence schedule
type CreateScheduleRequest struct {
	DonorID      string  `json:"donor_id" binding:"required,uuid"`
	CampaignID   string  `json:"campaign_id" binding:"required,uuid"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	Currency     string  `json:"currency" binding:"omitempty,len=3"`
	MethodScheme string  `json:"method_scheme" binding:"omitempty,method_scheme"`
	MethodToken  string  `json:"method_token" binding:"required,max=128"`
	Interval     string  `json:"interval" binding:"required,oneof=WEEKLY MONTHLY"`
	Start        string  `json:"start" binding:"omitempty"`
}

// ScheduleResponse represents a schedule in API responses
type ScheduleResponse struct {
	ID                  string     `json:"id"`
	DonorID             string     `json:"donor_id"`
	CampaignID          string     `json:"campaign_id"`
	Amount              string     `json:"amount"`
	Currency            string     `json:"currency"`
	MethodScheme        string     `json:"method_scheme,omitempty"`
	Interval            string     `json:"interval"`
	State               string     `json:"state"`
	NextFireTime        time.Time  `json:"next_fire_time"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFiredAt         *time.Time `json:"last_fired_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toScheduleResponse(s *recurring.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:                  s.ID.String(),
		DonorID:             s.DonorID.String(),
		CampaignID:          s.CampaignID.String(),
		Amount:              s.Amount.String(),
		Currency:            s.Currency,
		MethodScheme:        s.MethodScheme,
		Interval:            string(s.Interval),
		State:               string(s.State),
		NextFireTime:        s.NextFireTime,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastFiredAt:         s.LastFiredAt,
		CreatedAt:           s.CreatedAt,
	}
}

// Create handles POST /schedules
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var start time.Time
	if req.Start != "" {
		parsed, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			h.BadRequest(c, "Start must be RFC3339 formatted")
			return
		}
		start = parsed
	}

	schedule, err := h.schedulerService.CreateSchedule(c.Request.Context(), recurringapp.CreateScheduleRequest{
		DonorID:      uuid.MustParse(req.DonorID),
		CampaignID:   uuid.MustParse(req.CampaignID),
		Amount:       decimal.NewFromFloat(req.Amount),
		Currency:     req.Currency,
		MethodScheme: req.MethodScheme,
		MethodToken:  req.MethodToken,
		Interval:     recurring.Interval(req.Interval),
		Start:        start,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toScheduleResponse(schedule))
}

// Get handles GET /schedules/:id
func (h *ScheduleHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid schedule ID format")
		return
	}

	schedule, err := h.schedulerService.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toScheduleResponse(schedule))
}

// ListByDonor handles GET /donors/:id/schedules
func (h *ScheduleHandler) ListByDonor(c *gin.Context) {
	donorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid donor ID format")
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	req.Normalize()

	schedules, err := h.schedulerService.ListByDonor(c.Request.Context(), donorID, shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		items = append(items, toScheduleResponse(&schedules[i]))
	}
	h.Success(c, items)
}

// Pause handles POST /schedules/:id/pause
func (h *ScheduleHandler) Pause(c *gin.Context) {
	h.mutate(c, h.schedulerService.PauseSchedule, "paused")
}

// Resume handles POST /schedules/:id/resume
func (h *ScheduleHandler) Resume(c *gin.Context) {
	h.mutate(c, h.schedulerService.ResumeSchedule, "resumed")
}

// Cancel handles POST /schedules/:id/cancel
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	h.mutate(c, h.schedulerService.CancelSchedule, "cancelled")
}

func (h *ScheduleHandler) mutate(c *gin.Context, fn func(context.Context, uuid.UUID) error, status string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid schedule ID format")
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"schedule_id": id, "status": status})
}
