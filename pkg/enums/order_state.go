package enums

import "fmt"

// OrderState tracks the lifecycle of a marketplace order.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStatePaymentPending  OrderState = "payment_pending"
	OrderStatePaid            OrderState = "paid"
	OrderStateProcessing      OrderState = "processing"
	OrderStateShipped         OrderState = "shipped"
	OrderStateDelivered       OrderState = "delivered"
	OrderStateCompleted       OrderState = "completed"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRefundRequested OrderState = "refund_requested"
	OrderStateRefunded        OrderState = "refunded"
	OrderStateReturnRequested OrderState = "return_requested"
)

var validOrderStates = []OrderState{
	OrderStateCreated,
	OrderStatePaymentPending,
	OrderStatePaid,
	OrderStateProcessing,
	OrderStateShipped,
	OrderStateDelivered,
	OrderStateCompleted,
	OrderStateCancelled,
	OrderStateRefundRequested,
	OrderStateRefunded,
	OrderStateReturnRequested,
}

// OrderStates returns every known lifecycle state.
func OrderStates() []OrderState {
	out := make([]OrderState, len(validOrderStates))
	copy(out, validOrderStates)
	return out
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
