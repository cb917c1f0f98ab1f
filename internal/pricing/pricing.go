// Package pricing computes the total buyer-side cost of a listing.
package pricing

import (
	"fmt"
	"math"

	"vintedwatch/monitor-service/internal/model"
)

// Buyer-protection fee and shipping as charged at checkout. The fee formula
// is fixed by the marketplace, not tunable here.
const (
	feeRate      = 0.05
	feeFlat      = 0.70
	flatShipping = 2.99
)

// Estimate returns the full cost breakdown for an item price.
// Values are kept unrounded; rounding happens at presentation only, so
// repeated estimates never compound rounding error.
func Estimate(price float64) (model.CostBreakdown, error) {
	if price < 0 {
		return model.CostBreakdown{}, fmt.Errorf("price must not be negative, got %.2f", price)
	}

	fee := price*feeRate + feeFlat
	return model.CostBreakdown{
		ItemPrice: price,
		BuyerFee:  fee,
		Shipping:  flatShipping,
		Total:     price + fee + flatShipping,
	}, nil
}

// Round2 rounds a monetary value to two decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
