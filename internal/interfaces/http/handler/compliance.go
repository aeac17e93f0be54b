package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	complianceapp "github.com/giveflow/backend/internal/application/compliance"
	"github.com/giveflow/backend/internal/domain/compliance"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// ComplianceHandler exposes compliance records for audit export and donor
// statements
type ComplianceHandler struct {
	BaseHandler
	generatorService *complianceapp.GeneratorService
}

// NewComplianceHandler creates a new ComplianceHandler
func NewComplianceHandler(generatorService *complianceapp.GeneratorService) *ComplianceHandler {
	return &ComplianceHandler{generatorService: generatorService}
}

// ExportRequest represents filter options for the audit export
type ExportRequest struct {
	dto.ListRequest
	CampaignID string `form:"campaign_id" binding:"omitempty,uuid"`
	DonorID    string `form:"donor_id" binding:"omitempty,uuid"`
	From       string `form:"from"`
	To         string `form:"to"`
}

// RecordResponse represents a compliance record in API responses
type RecordResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	SerialNo      string    `json:"serial_no"`
	FiscalYear    int       `json:"fiscal_year"`
	LedgerEntryID string    `json:"ledger_entry_id"`
	VoidsRecordID *string   `json:"voids_record_id,omitempty"`
	DonorID       string    `json:"donor_id"`
	CampaignID    string    `json:"campaign_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	IssuedAt      time.Time `json:"issued_at"`
}

func toRecordResponse(r *compliance.Record) RecordResponse {
	resp := RecordResponse{
		ID:            r.ID.String(),
		Kind:          string(r.Kind),
		SerialNo:      r.SerialNo,
		FiscalYear:    r.FiscalYear,
		LedgerEntryID: r.LedgerEntryID.String(),
		DonorID:       r.DonorID.String(),
		CampaignID:    r.CampaignID.String(),
		Amount:        r.Amount.String(),
		Currency:      r.Currency,
		IssuedAt:      r.IssuedAt,
	}
	if r.VoidsRecordID != nil {
		v := r.VoidsRecordID.String()
		resp.VoidsRecordID = &v
	}
	return resp
}

// Export handles GET /compliance/records
func (h *ComplianceHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	req.Normalize()

	filter := complianceapp.ExportFilter{
		Page: shared.Filter{Page: req.Page, PageSize: req.PageSize},
	}
	if req.CampaignID != "" {
		id := uuid.MustParse(req.CampaignID)
		filter.CampaignID = &id
	}
	if req.DonorID != "" {
		id := uuid.MustParse(req.DonorID)
		filter.DonorID = &id
	}
	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			h.BadRequest(c, "From must be RFC3339 formatted")
			return
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			h.BadRequest(c, "To must be RFC3339 formatted")
			return
		}
		filter.To = &to
	}

	records, err := h.generatorService.Export(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]RecordResponse, 0, len(records))
	for i := range records {
		items = append(items, toRecordResponse(&records[i]))
	}
	h.Success(c, items)
}

// AnnualStatement handles GET /donors/:id/statements/:year
func (h *ComplianceHandler) AnnualStatement(c *gin.Context) {
	donorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid donor ID format")
		return
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 2000 || year > 2200 {
		h.BadRequest(c, "Invalid fiscal year")
		return
	}

	records, err := h.generatorService.AnnualStatement(c.Request.Context(), donorID, year)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]RecordResponse, 0, len(records))
	for i := range records {
		items = append(items, toRecordResponse(&records[i]))
	}
	h.Success(c, gin.H{
		"donor_id":    donorID,
		"fiscal_year": year,
		"records":     items,
	})
}
