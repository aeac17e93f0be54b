package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignapp "github.com/giveflow/backend/internal/application/campaign"
	donationapp "github.com/giveflow/backend/internal/application/donation"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// CampaignHandler handles campaign-related API endpoints
type CampaignHandler struct {
	BaseHandler
	campaignService *campaignapp.CampaignService
	donationService *donationapp.ContributionService
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(campaignService *campaignapp.CampaignService, donationService *donationapp.ContributionService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		donationService: donationService,
	}
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Title       string  `json:"title" binding:"required,max=200"`
	Creator     string  `json:"creator" binding:"required,max=100"`
	Category    string  `json:"category" binding:"required"`
	Description string  `json:"description" binding:"max=5000"`
	Goal        float64 `json:"goal" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"omitempty,len=3"`
	Deadline    string  `json:"deadline" binding:"required"`
	Activate    bool    `json:"activate"`
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Creator     string     `json:"creator"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Goal        string     `json:"goal"`
	Currency    string     `json:"currency"`
	Deadline    time.Time  `json:"deadline"`
	State       string     `json:"state"`
	Outcome     string     `json:"outcome,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Raised      string     `json:"raised,omitempty"`
	Progress    string     `json:"progress,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toCampaignResponse(c *campaign.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:          c.ID.String(),
		Title:       c.Title,
		Creator:     c.Creator,
		Category:    string(c.Category),
		Description: c.Description,
		Goal:        c.Goal.String(),
		Currency:    c.Currency,
		Deadline:    c.Deadline,
		State:       string(c.State),
		Outcome:     string(c.Outcome),
		ClosedAt:    c.ClosedAt,
		CreatedAt:   c.CreatedAt,
	}
}

// Create handles POST /campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		h.BadRequest(c, "Deadline must be RFC3339 formatted")
		return
	}

	created, err := h.campaignService.CreateCampaign(c.Request.Context(), campaignapp.CreateCampaignRequest{
		Title:       req.Title,
		Creator:     req.Creator,
		Category:    campaign.Category(req.Category),
		Description: req.Description,
		Goal:        decimal.NewFromFloat(req.Goal),
		Currency:    req.Currency,
		Deadline:    deadline,
		Activate:    req.Activate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCampaignResponse(created))
}

// Activate handles POST /campaigns/:id/activate
func (h *CampaignHandler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid campaign ID format")
		return
	}

	activated, err := h.campaignService.ActivateCampaign(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toCampaignResponse(activated))
}

// Get handles GET /campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid campaign ID format")
		return
	}

	view, err := h.campaignService.GetCampaign(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := toCampaignResponse(view.Campaign)
	resp.Raised = view.Raised.Amount().String()
	resp.Progress = view.Progress.String()
	h.Success(c, resp)
}

// CampaignListFilter represents filter options for the campaign list
type CampaignListFilter struct {
	dto.ListRequest
	Category string `form:"category"`
	State    string `form:"state" binding:"omitempty,oneof=DRAFT ACTIVE CLOSED"`
}

// List handles GET /campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	var filter CampaignListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter.Normalize()

	appFilter := campaign.CampaignFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		},
	}
	if filter.Category != "" {
		category := campaign.Category(filter.Category)
		appFilter.Category = &category
	}
	if filter.State != "" {
		state := campaign.CampaignState(filter.State)
		appFilter.State = &state
	}

	page, err := h.campaignService.ListCampaigns(c.Request.Context(), appFilter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]CampaignResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toCampaignResponse(&page.Items[i]))
	}
	h.SuccessWithMeta(c, items, page.Total, filter.Page, filter.PageSize)
}

// ListContributions handles GET /campaigns/:id/contributions
func (h *CampaignHandler) ListContributions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid campaign ID format")
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	req.Normalize()

	contributions, err := h.donationService.ListByCampaign(c.Request.Context(), id, shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]ContributionResponse, 0, len(contributions))
	for i := range contributions {
		items = append(items, toContributionResponse(&contributions[i]))
	}
	h.Success(c, items)
}

// Stats handles GET /stats
func (h *CampaignHandler) Stats(c *gin.Context) {
	stats, err := h.campaignService.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
