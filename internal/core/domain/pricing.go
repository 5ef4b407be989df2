package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pricing is the price breakdown of a reservation. All amounts carry two decimals.
type Pricing struct {
	UnitPrice  decimal.Decimal
	Quantity   int
	Subtotal   decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

// CalculatePricing derives subtotal, commission and total from the unit price,
// quantity and commission percentage. The commission is added on top of the
// subtotal.
func CalculatePricing(unitPrice decimal.Decimal, quantity int, commissionPct decimal.Decimal) (Pricing, error) {
	if unitPrice.IsNegative() {
		return Pricing{}, NewServiceError(ErrInvalidAmount,
			fmt.Sprintf("unit price %s is negative", unitPrice), CodeInvalidAmount)
	}
	if quantity < 1 {
		return Pricing{}, NewServiceError(ErrInvalidRequest,
			fmt.Sprintf("quantity %d must be at least 1", quantity), CodeValidation)
	}

	commissionPct = clampPct(commissionPct)
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	commission := subtotal.Mul(commissionPct).Div(hundred).Round(2)

	return Pricing{
		UnitPrice:  unitPrice.Round(2),
		Quantity:   quantity,
		Subtotal:   subtotal,
		Commission: commission,
		Total:      subtotal.Add(commission),
	}, nil
}

// NetPayout is the amount transferred to the provider for a released payment:
// total * (1 - pct/100), rounded to two decimals.
func NetPayout(total, commissionPct decimal.Decimal) decimal.Decimal {
	commissionPct = clampPct(commissionPct)
	share := decimal.NewFromInt(1).Sub(commissionPct.Div(hundred))
	return total.Mul(share).Round(2)
}

// clampPct treats a non-positive percentage as no commission.
func clampPct(pct decimal.Decimal) decimal.Decimal {
	if pct.Sign() <= 0 {
		return decimal.Zero
	}
	return pct
}
