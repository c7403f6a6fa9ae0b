// Package pricing derives quotation discounts and final prices.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealerquote/internal/shared"
)

const (
	// DefaultScale is the number of fractional digits kept on money amounts.
	DefaultScale int32 = 2
	// MaxScale matches the fractional digits of the money columns.
	MaxScale int32 = 8
	// RateScale matches the fractional digits of stored discount rates.
	RateScale int32 = 6
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Breakdown is the result of a price calculation.
type Breakdown struct {
	BasePrice          decimal.Decimal
	PromotionDiscount  decimal.Decimal
	AdditionalDiscount decimal.Decimal
	TotalDiscount      decimal.Decimal
	FinalPrice         decimal.Decimal
	// Capped reports that the combined discount exceeded the base price.
	Capped bool
}

// Calculator is stateless and safe for concurrent use.
type Calculator struct {
	scale int32
}

// NewCalculator returns a calculator rounding amounts to scale digits.
func NewCalculator(scale int32) *Calculator {
	if scale < 0 {
		scale = DefaultScale
	}
	if scale > MaxScale {
		scale = MaxScale
	}
	return &Calculator{scale: scale}
}

// Scale returns the rounding scale.
func (c *Calculator) Scale() int32 {
	if c == nil {
		return DefaultScale
	}
	return c.scale
}

// Calculate applies promotion rates (fractions) and an additional staff
// discount (percent) to basePrice. Discounts stack additively on the base
// price and the total is capped at the base price.
func (c *Calculator) Calculate(basePrice decimal.Decimal, promotionRates []decimal.Decimal, additionalRate decimal.Decimal) (Breakdown, error) {
	if !basePrice.IsPositive() {
		return Breakdown{}, shared.NewValidationError("base_price", "must be greater than zero")
	}
	if err := ValidateAdditionalRate(additionalRate); err != nil {
		return Breakdown{}, err
	}
	sum := decimal.Zero
	for _, rate := range promotionRates {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return Breakdown{}, shared.NewValidationError("discount_rate", "promotion rate must be between 0 and 1")
		}
		sum = sum.Add(rate)
	}

	scale := c.Scale()
	promotionDiscount := basePrice.Mul(sum).Round(scale)
	additionalDiscount := basePrice.Mul(additionalRate).Div(hundred).Round(scale)

	total := promotionDiscount.Add(additionalDiscount)
	capped := false
	if total.GreaterThan(basePrice) {
		total = basePrice
		capped = true
	}

	return Breakdown{
		BasePrice:          basePrice,
		PromotionDiscount:  promotionDiscount,
		AdditionalDiscount: additionalDiscount,
		TotalDiscount:      total,
		FinalPrice:         basePrice.Sub(total),
		Capped:             capped,
	}, nil
}

// ValidateAdditionalRate checks a staff discount percentage: between 0 and
// 100 with at most RateScale fractional digits.
func ValidateAdditionalRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return shared.NewValidationError("additional_discount_rate", "must be between 0 and 100")
	}
	if !rate.Equal(rate.Truncate(RateScale)) {
		return shared.NewValidationError("additional_discount_rate", "must have at most 6 decimal places")
	}
	return nil
}
