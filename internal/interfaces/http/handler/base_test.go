package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/application/donation"
	"github.com/giveflow/backend/internal/domain/ledger"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/interfaces/http/dto"
)

func performHandleError(t *testing.T, err error) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	var h BaseHandler
	h.HandleError(c, err)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandleErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{donation.ErrCampaignNotAccepting, http.StatusUnprocessableEntity, dto.ErrCodeCampaignNotAccepting},
		{donation.ErrNotRefundable, http.StatusUnprocessableEntity, dto.ErrCodeNotRefundable},
		{donation.ErrRefundExceedsSettled, http.StatusUnprocessableEntity, dto.ErrCodeNotRefundable},
		{payment.ErrProviderDeclined, http.StatusUnprocessableEntity, dto.ErrCodeProviderDeclined},
		{payment.ErrProviderUnavailable, http.StatusBadGateway, dto.ErrCodeProviderUnavailable},
		{payment.ErrInvalidSignature, http.StatusUnauthorized, dto.ErrCodeInvalidSignature},
		{ledger.ErrDuplicateEntry, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			w, resp := performHandleError(t, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestHandleErrorWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("failed to refund: %w", donation.ErrNotRefundable)

	w, resp := performHandleError(t, wrapped)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeNotRefundable, resp.Error.Code)
}

func TestHandleErrorMapsDomainErrors(t *testing.T) {
	w, resp := performHandleError(t, shared.NewDomainError("NOT_FOUND", "campaign not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "campaign not found", resp.Error.Message)
}

func TestHandleErrorUnmappedDomainCodeIs422(t *testing.T) {
	w, resp := performHandleError(t, shared.NewDomainError("INVALID_TITLE", "title is required"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_TITLE", resp.Error.Code)
}

func TestHandleErrorUnknownErrorIs500(t *testing.T) {
	w, resp := performHandleError(t, fmt.Errorf("database went away"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "database")
}
