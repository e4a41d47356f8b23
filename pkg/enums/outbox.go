package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregatePayout     OutboxAggregateType = "payout"
	AggregateStockLevel OutboxAggregateType = "stock_level"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayout,
	AggregateStockLevel,
	AggregateWithdrawal,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderStateChanged   OutboxEventType = "order_state_changed"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderRefunded       OutboxEventType = "order_refunded"
	EventOrderCompleted      OutboxEventType = "order_completed"
	EventEscrowReleased      OutboxEventType = "escrow_released"
	EventPayoutRecorded      OutboxEventType = "payout_recorded"
	EventPayoutFailed        OutboxEventType = "payout_failed"
	EventStockAdjusted       OutboxEventType = "stock_adjusted"
	EventWithdrawalRequested OutboxEventType = "withdrawal_requested"
	EventWithdrawalSettled   OutboxEventType = "withdrawal_settled"
	EventWithdrawalRejected  OutboxEventType = "withdrawal_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderRefunded,
	EventOrderCompleted,
	EventEscrowReleased,
	EventPayoutRecorded,
	EventPayoutFailed,
	EventStockAdjusted,
	EventWithdrawalRequested,
	EventWithdrawalSettled,
	EventWithdrawalRejected,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
