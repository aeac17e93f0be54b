package valueobject_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giveflow/backend/internal/domain/shared/valueobject"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		currency    valueobject.Currency
		expectedErr bool
	}{
		{
			name:     "valid USD amount",
			amount:   decimal.NewFromFloat(50.00),
			currency: valueobject.USD,
		},
		{
			name:     "negative amount is allowed",
			amount:   decimal.NewFromFloat(-10.00),
			currency: valueobject.EUR,
		},
		{
			name:        "empty currency",
			amount:      decimal.NewFromFloat(10.00),
			currency:    "",
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := valueobject.NewMoney(tt.amount, tt.currency)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, m.Amount().Equal(tt.amount))
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestMoneyAdd(t *testing.T) {
	a := valueobject.NewMoneyUSDFromFloat(30.00)
	b := valueobject.NewMoneyUSDFromFloat(20.00)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "50.00 USD", sum.String())

	// currency mismatch
	c, _ := valueobject.NewMoneyFromFloat(5.00, valueobject.EUR)
	_, err = a.Add(c)
	assert.Error(t, err)
}

func TestMoneySubtract(t *testing.T) {
	a := valueobject.NewMoneyUSDFromFloat(50.00)
	b := valueobject.NewMoneyUSDFromFloat(30.00)

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.Equal(t, "20.00 USD", diff.String())

	neg, err := b.Subtract(a)
	require.NoError(t, err)
	assert.True(t, neg.IsNegative())
}

func TestMoneyComparisons(t *testing.T) {
	small := valueobject.NewMoneyUSDFromFloat(10.00)
	large := valueobject.NewMoneyUSDFromFloat(25.00)

	lt, err := small.LessThan(large)
	require.NoError(t, err)
	assert.True(t, lt)

	gte, err := large.GreaterThanOrEqual(small)
	require.NoError(t, err)
	assert.True(t, gte)

	assert.True(t, small.Equals(valueobject.NewMoneyUSDFromFloat(10.00)))
	assert.False(t, small.Equals(large))
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	m := valueobject.NewMoneyUSDFromFloat(99.95)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var parsed valueobject.Money
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, m.Equals(parsed))
}

func TestMoneyZero(t *testing.T) {
	z := valueobject.ZeroUSD()
	assert.True(t, z.IsZero())
	assert.False(t, z.IsPositive())
	assert.Equal(t, valueobject.USD, z.Currency())
}
