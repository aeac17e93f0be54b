package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	donationapp "github.com/giveflow/backend/internal/application/donation"
	ledgerapp "github.com/giveflow/backend/internal/application/ledger"
	"github.com/giveflow/backend/internal/domain/campaign"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
)

// ContributionHandler handles contribution and transaction API endpoints
type ContributionHandler struct {
	BaseHandler
	donationService *donationapp.ContributionService
	ledgerService   *ledgerapp.LedgerService
}

// NewContributionHandler creates a new ContributionHandler
func NewContributionHandler(donationService *donationapp.ContributionService, ledgerService *ledgerapp.LedgerService) *ContributionHandler {
	return &ContributionHandler{
		donationService: donationService,
		ledgerService:   ledgerService,
	}
}

// SubmitContributionRequest represents a new contribution intent
type SubmitContributionRequest struct {
	CampaignID   string  `json:"campaign_id" binding:"required,uuid"`
	DonorID      string  `json:"donor_id" binding:"required,uuid"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	Currency     string  `json:"currency" binding:"omitempty,len=3"`
	Tier         string  `json:"tier" binding:"required,oneof=supporter backer champion founder"`
	Provider     string  `json:"provider" binding:"required,oneof=CARD BANK CRYPTO"`
	MethodScheme string  `json:"method_scheme" binding:"omitempty,method_scheme"`
	MethodToken  string  `json:"method_token" binding:"required,max=128"`
}

// RefundRequest represents a refund for a settled transaction
type RefundRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// ContributionResponse represents a contribution in API responses
type ContributionResponse struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	DonorID    string    `json:"donor_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Tier       string    `json:"tier"`
	State      string    `json:"state"`
	ScheduleID *string   `json:"schedule_id,omitempty"`
	PeriodKey  string    `json:"period_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toContributionResponse(contrib *campaign.Contribution) ContributionResponse {
	resp := ContributionResponse{
		ID:         contrib.ID.String(),
		CampaignID: contrib.CampaignID.String(),
		DonorID:    contrib.DonorID.String(),
		Amount:     contrib.Amount.String(),
		Currency:   contrib.Currency,
		Tier:       string(contrib.Tier),
		State:      string(contrib.State),
		PeriodKey:  contrib.PeriodKey,
		CreatedAt:  contrib.CreatedAt,
	}
	if contrib.ScheduleID != nil {
		s := contrib.ScheduleID.String()
		resp.ScheduleID = &s
	}
	return resp
}

// TransactionResponse represents a payment transaction in API responses
type TransactionResponse struct {
	ID            string     `json:"id"`
	Provider      string     `json:"provider"`
	ProviderRef   string     `json:"provider_ref,omitempty"`
	State         string     `json:"state"`
	Amount        string     `json:"amount"`
	MovedAmount   string     `json:"moved_amount,omitempty"`
	Currency      string     `json:"currency"`
	Attempt       int        `json:"attempt"`
	FailureReason string     `json:"failure_reason,omitempty"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionResponse(tx *payment.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:            tx.ID.String(),
		Provider:      tx.Provider.String(),
		ProviderRef:   tx.ProviderRef,
		State:         tx.State.String(),
		Amount:        tx.Amount.String(),
		Currency:      tx.Currency,
		Attempt:       tx.Attempt,
		FailureReason: tx.FailureReason,
		LastEventAt:   tx.LastEventAt,
		CreatedAt:     tx.CreatedAt,
	}
	if tx.MovedAmount.IsPositive() {
		resp.MovedAmount = tx.MovedAmount.String()
	}
	return resp
}

// LedgerEntryResponse represents a ledger entry in API responses
type LedgerEntryResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	PredecessorID *string   `json:"predecessor_id,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

func toLedgerEntryResponse(entry *ledger.Entry) LedgerEntryResponse {
	resp := LedgerEntryResponse{
		ID:            entry.ID.String(),
		TransactionID: entry.TransactionID.String(),
		Kind:          entry.Kind.String(),
		Amount:        entry.Amount.String(),
		Currency:      entry.Currency,
		RecordedAt:    entry.RecordedAt,
	}
	if entry.PredecessorID != nil {
		p := entry.PredecessorID.String()
		resp.PredecessorID = &p
	}
	return resp
}

// Submit handles POST /contributions
func (h *ContributionHandler) Submit(c *gin.Context) {
	var req SubmitContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	campaignID := uuid.MustParse(req.CampaignID)
	donorID := uuid.MustParse(req.DonorID)

	result, err := h.donationService.Submit(c.Request.Context(), donationapp.SubmitRequest{
		CampaignID:   campaignID,
		DonorID:      donorID,
		Amount:       decimal.NewFromFloat(req.Amount),
		Currency:     req.Currency,
		Tier:         campaign.RewardTier(req.Tier),
		Provider:     payment.ProviderID(req.Provider),
		MethodScheme: req.MethodScheme,
		MethodToken:  req.MethodToken,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, gin.H{
		"contribution": toContributionResponse(result.Contribution),
		"transaction":  toTransactionResponse(result.Transaction),
	})
}

// Get handles GET /contributions/:id
func (h *ContributionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid contribution ID format")
		return
	}

	contrib, txs, err := h.donationService.GetContribution(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	transactions := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		transactions = append(transactions, toTransactionResponse(&txs[i]))
	}
	h.Success(c, gin.H{
		"contribution": toContributionResponse(contrib),
		"transactions": transactions,
	})
}

// Refund handles POST /transactions/:id/refund
func (h *ContributionHandler) Refund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	if err := h.donationService.RefundTransaction(c.Request.Context(), id, decimal.NewFromFloat(req.Amount)); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"transaction_id": id, "status": "refund_submitted"})
}

// LedgerEntries handles GET /transactions/:id/ledger
func (h *ContributionHandler) LedgerEntries(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	entries, err := h.ledgerService.EntriesForTransaction(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toLedgerEntryResponse(&entries[i]))
	}
	h.Success(c, items)
}

// DonorBalance handles GET /donors/:id/balance
func (h *ContributionHandler) DonorBalance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid donor ID format")
		return
	}

	balance, err := h.ledgerService.BalanceOfDonor(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{
		"donor_id": id,
		"balance":  balance.Amount().String(),
		"currency": balance.Currency(),
	})
}
