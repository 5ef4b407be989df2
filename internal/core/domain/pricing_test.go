package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculatePricing(t *testing.T) {
	tests := []struct {
		name       string
		unitPrice  string
		quantity   int
		pct        string
		subtotal   string
		commission string
		total      string
	}{
		{"ten percent", "1000", 1, "10", "1000.00", "100.00", "1100.00"},
		{"zero price", "0", 1, "10", "0.00", "0.00", "0.00"},
		{"rounds commission", "333.33", 1, "10", "333.33", "33.33", "366.66"},
		{"quantity multiplies", "250.50", 3, "10", "751.50", "75.15", "826.65"},
		{"zero commission", "1500", 2, "0", "3000.00", "0.00", "3000.00"},
		{"fractional pct", "1000", 1, "12.5", "1000.00", "125.00", "1125.00"},
		{"negative pct", "1000", 1, "-10", "1000.00", "0.00", "1000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CalculatePricing(dec(tt.unitPrice), tt.quantity, dec(tt.pct))
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, p.Subtotal.StringFixed(2))
			assert.Equal(t, tt.commission, p.Commission.StringFixed(2))
			assert.Equal(t, tt.total, p.Total.StringFixed(2))
			assert.True(t, p.Total.Equal(p.Subtotal.Add(p.Commission)))
		})
	}
}

func TestCalculatePricing_RejectsNegativePrice(t *testing.T) {
	_, err := CalculatePricing(dec("-1"), 1, dec("10"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAmount))
	assert.Equal(t, CodeInvalidAmount, ErrorCode(err))
}

func TestCalculatePricing_RejectsZeroQuantity(t *testing.T) {
	_, err := CalculatePricing(dec("100"), 0, dec("10"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNetPayout(t *testing.T) {
	assert.Equal(t, "990.00", NetPayout(dec("1100"), dec("10")).StringFixed(2))
	assert.Equal(t, "0.00", NetPayout(dec("0"), dec("10")).StringFixed(2))
	assert.Equal(t, "329.99", NetPayout(dec("366.66"), dec("10")).StringFixed(2))
	assert.Equal(t, "500.00", NetPayout(dec("500"), dec("0")).StringFixed(2))
	assert.Equal(t, "1000.00", NetPayout(dec("1000"), dec("-10")).StringFixed(2))
}
