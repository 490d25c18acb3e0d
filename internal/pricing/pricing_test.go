package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculator_Quote(t *testing.T) {
	calc := NewCalculator(decimal.NewFromInt(10), decimal.NewFromInt(5))

	testCases := []struct {
		name        string
		baseCost    string
		expectedFee string
		expectedSum string
	}{
		{
			name:        "percentage above minimum",
			baseCost:    "100.00",
			expectedFee: "10",
			expectedSum: "110",
		},
		{
			name:        "minimum fee applies",
			baseCost:    "20.00",
			expectedFee: "5",
			expectedSum: "25",
		},
		{
			name:        "exactly at the minimum",
			baseCost:    "50.00",
			expectedFee: "5",
			expectedSum: "55",
		},
		{
			name:        "fractional base keeps precision",
			baseCost:    "99.99",
			expectedFee: "9.999",
			expectedSum: "109.989",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quote := calc.Quote(decimal.RequireFromString(tc.baseCost))

			assert.True(t, quote.ServiceFee.Equal(decimal.RequireFromString(tc.expectedFee)),
				"fee is %s", quote.ServiceFee)
			assert.True(t, quote.Total.Equal(decimal.RequireFromString(tc.expectedSum)),
				"total is %s", quote.Total)
			assert.True(t, quote.BaseCost.Equal(decimal.RequireFromString(tc.baseCost)))
		})
	}
}

func TestMinorUnits(t *testing.T) {
	testCases := []struct {
		name     string
		amount   string
		currency string
		expected int64
	}{
		{name: "two decimal currency", amount: "110.00", currency: "USD", expected: 11000},
		{name: "rounds half up", amount: "10.005", currency: "USD", expected: 1001},
		{name: "rounds down below half", amount: "10.004", currency: "EUR", expected: 1000},
		{name: "zero decimal currency", amount: "1500", currency: "JPY", expected: 1500},
		{name: "zero decimal currency rounds", amount: "1500.5", currency: "JPY", expected: 1501},
		{name: "lowercase currency code", amount: "25.50", currency: "usd", expected: 2550},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := MinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(11000, "USD").Equal(decimal.RequireFromString("110")))
	assert.True(t, FromMinorUnits(1500, "JPY").Equal(decimal.RequireFromString("1500")))
}
