package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contributionForm struct {
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	Currency     string  `json:"currency" binding:"omitempty,len=3"`
	MethodScheme string  `json:"method_scheme" binding:"omitempty,method_scheme"`
}

func bindForm(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	SetupValidator()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var form contributionForm
	return c.ShouldBindJSON(&form)
}

func TestSetupValidatorAcceptsKnownScheme(t *testing.T) {
	err := bindForm(t, `{"amount": 25, "currency": "EUR", "method_scheme": "sepa_debit"}`)
	assert.NoError(t, err)
}

func TestSetupValidatorRejectsUnknownScheme(t *testing.T) {
	err := bindForm(t, `{"amount": 25, "method_scheme": "barter"}`)
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-1")
	require.NotNil(t, resp.Error)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "method_scheme", resp.Error.Details[0].Field)
	assert.Equal(t, "Unknown payment method scheme", resp.Error.Details[0].Message)
}

func TestFormatValidationErrorsUsesJSONFieldNames(t *testing.T) {
	err := bindForm(t, `{"currency": "EURO"}`)
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-2")
	require.NotNil(t, resp.Error)

	fields := make([]string, 0, len(resp.Error.Details))
	for _, d := range resp.Error.Details {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "currency")
}
