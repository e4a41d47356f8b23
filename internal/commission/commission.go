package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
)

const maxRateBps = 10000

// Split is the outcome of applying a commission rate to a gross amount.
type Split struct {
	CommissionCents   int64
	SellerPayoutCents int64
}

// Calculate applies rateBps (basis points) to grossCents with half-up rounding.
// The seller payout is the exact remainder so no cent is created or lost.
func Calculate(grossCents, rateBps int64) (Split, error) {
	if grossCents < 0 {
		return Split{}, fmt.Errorf("gross amount must be non-negative, got %d", grossCents)
	}
	if rateBps < 0 || rateBps > maxRateBps {
		return Split{}, fmt.Errorf("commission rate must be between 0 and %d bps, got %d", maxRateBps, rateBps)
	}

	commission := decimal.NewFromInt(grossCents).
		Mul(decimal.NewFromInt(rateBps)).
		Div(decimal.NewFromInt(maxRateBps)).
		Round(0).
		IntPart()

	return Split{
		CommissionCents:   commission,
		SellerPayoutCents: grossCents - commission,
	}, nil
}

// OrderSplit is the reconciled breakdown across all items in an order.
type OrderSplit struct {
	GrossTotalCents        int64
	PlatformFeeCents       int64
	SellerPayoutTotalCents int64
}

// SplitItems applies rateBps to each item in place and reconciles the totals.
// Per-item rounding remainders land on the platform fee so the identity
// gross == platform fee + seller payouts always holds.
func SplitItems(items []models.OrderItem, rateBps int64) (OrderSplit, error) {
	var out OrderSplit
	for i := range items {
		split, err := Calculate(items[i].GrossCents, rateBps)
		if err != nil {
			return OrderSplit{}, fmt.Errorf("item %s: %w", items[i].ID, err)
		}
		items[i].CommissionRateBps = rateBps
		items[i].PlatformCommissionCents = split.CommissionCents
		items[i].SellerPayoutCents = split.SellerPayoutCents

		out.GrossTotalCents += items[i].GrossCents
		out.PlatformFeeCents += split.CommissionCents
		out.SellerPayoutTotalCents += split.SellerPayoutCents
	}
	return out, nil
}
