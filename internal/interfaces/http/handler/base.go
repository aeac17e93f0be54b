package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/giveflow/backend/internal/application/donation"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// sentinelCodes maps well-known sentinel errors to response codes
var sentinelCodes = []struct {
	err  error
	code string
}{
	{donation.ErrCampaignNotAccepting, dto.ErrCodeCampaignNotAccepting},
	{donation.ErrNotRefundable, dto.ErrCodeNotRefundable},
	{donation.ErrRefundExceedsSettled, dto.ErrCodeNotRefundable},
	{payment.ErrProviderDeclined, dto.ErrCodeProviderDeclined},
	{payment.ErrProviderTransient, dto.ErrCodeProviderUnavailable},
	{payment.ErrProviderUnavailable, dto.ErrCodeProviderUnavailable},
	{payment.ErrUnknownProvider, dto.ErrCodeBadRequest},
	{payment.ErrInvalidSignature, dto.ErrCodeInvalidSignature},
	{ledger.ErrDuplicateEntry, dto.ErrCodeAlreadyExists},
	{ledger.ErrInvariantViolation, dto.ErrCodeBusinessRule},
}

// HandleError converts domain and sentinel errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			c.JSON(dto.GetHTTPStatus(s.code), dto.NewErrorResponseWithRequestID(s.code, err.Error(), requestID))
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		statusCode := dto.GetHTTPStatus(code)
		if _, known := dto.ErrorCodeHTTPStatus[code]; !known {
			// unmapped domain codes are business rule rejections, not crashes
			statusCode = http.StatusUnprocessableEntity
		}
		c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
