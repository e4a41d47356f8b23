package enums

import "fmt"

// StockMovementReason classifies why a stock movement was recorded.
type StockMovementReason string

const (
	StockMovementReasonSale             StockMovementReason = "sale"
	StockMovementReasonCancellation     StockMovementReason = "cancellation"
	StockMovementReasonReturn           StockMovementReason = "return"
	StockMovementReasonRestock          StockMovementReason = "restock"
	StockMovementReasonManualAdjustment StockMovementReason = "manual_adjustment"
)

var validStockMovementReasons = []StockMovementReason{
	StockMovementReasonSale,
	StockMovementReasonCancellation,
	StockMovementReasonReturn,
	StockMovementReasonRestock,
	StockMovementReasonManualAdjustment,
}

// String implements fmt.Stringer.
func (r StockMovementReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known StockMovementReason.
func (r StockMovementReason) IsValid() bool {
	for _, candidate := range validStockMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStockMovementReason converts raw input into a StockMovementReason.
func ParseStockMovementReason(value string) (StockMovementReason, error) {
	for _, candidate := range validStockMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement reason %q", value)
}
