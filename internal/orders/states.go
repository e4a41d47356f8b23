package orders

import "github.com/avelarsoto/tianguis-backend/pkg/enums"

// transitionTable is the single source of truth for the order lifecycle.
// Cancellation and refund requests are reachable from every pre-delivery
// state; a completed order can still open a return within the return window.
var transitionTable = map[enums.OrderState][]enums.OrderState{
	enums.OrderStateCreated: {
		enums.OrderStatePaymentPending,
		enums.OrderStatePaid,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStatePaymentPending: {
		enums.OrderStatePaid,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStatePaid: {
		enums.OrderStateProcessing,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStateProcessing: {
		enums.OrderStateShipped,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStateShipped: {
		enums.OrderStateDelivered,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStateDelivered: {
		enums.OrderStateCompleted,
		enums.OrderStateReturnRequested,
		enums.OrderStateCancelled,
		enums.OrderStateRefundRequested,
	},
	enums.OrderStateCompleted: {
		enums.OrderStateReturnRequested,
	},
	enums.OrderStateReturnRequested: {
		enums.OrderStateRefunded,
	},
	enums.OrderStateRefundRequested: {
		enums.OrderStateRefunded,
	},
	enums.OrderStateCancelled: {},
	enums.OrderStateRefunded:  {},
}

// CanTransition reports whether the edge from -> to exists in the lifecycle.
func CanTransition(from, to enums.OrderState) bool {
	for _, candidate := range transitionTable[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NextStates returns the states reachable from the given state.
func NextStates(from enums.OrderState) []enums.OrderState {
	targets := transitionTable[from]
	out := make([]enums.OrderState, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether no caller-driven transition leaves the state.
// Completed orders only accept the return edge, which IsTerminal ignores on
// purpose: for payout and sweep logic completed is the end of the line.
func IsTerminal(state enums.OrderState) bool {
	switch state {
	case enums.OrderStateCancelled, enums.OrderStateRefunded, enums.OrderStateCompleted:
		return true
	default:
		return false
	}
}

// isSweepOnly marks edges that external callers may not drive directly.
func isSweepOnly(from, to enums.OrderState) bool {
	return from == enums.OrderStateDelivered && to == enums.OrderStateCompleted
}
