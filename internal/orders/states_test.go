package orders

import (
	"testing"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

func TestTransitionTableIsClosed(t *testing.T) {
	for from, targets := range transitionTable {
		for _, to := range targets {
			if _, ok := transitionTable[to]; !ok {
				t.Errorf("target %s reachable from %s has no row of its own", to, from)
			}
		}
	}
	for _, state := range enums.OrderStates() {
		if _, ok := transitionTable[state]; !ok {
			t.Errorf("state %s missing from transition table", state)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.OrderState
		want     bool
	}{
		{enums.OrderStateCreated, enums.OrderStatePaid, true},
		{enums.OrderStateCreated, enums.OrderStatePaymentPending, true},
		{enums.OrderStateCreated, enums.OrderStateDelivered, false},
		{enums.OrderStatePaid, enums.OrderStateProcessing, true},
		{enums.OrderStateShipped, enums.OrderStateDelivered, true},
		{enums.OrderStateDelivered, enums.OrderStateCompleted, true},
		{enums.OrderStateDelivered, enums.OrderStateReturnRequested, true},
		{enums.OrderStateCompleted, enums.OrderStateReturnRequested, true},
		{enums.OrderStateCompleted, enums.OrderStateCancelled, false},
		{enums.OrderStateReturnRequested, enums.OrderStateRefunded, true},
		{enums.OrderStateRefundRequested, enums.OrderStateRefunded, true},
		{enums.OrderStateCancelled, enums.OrderStatePaid, false},
		{enums.OrderStateRefunded, enums.OrderStateCreated, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[enums.OrderState]bool{
		enums.OrderStateCancelled: true,
		enums.OrderStateRefunded:  true,
		enums.OrderStateCompleted: true,
	}
	for _, state := range enums.OrderStates() {
		if got := IsTerminal(state); got != terminal[state] {
			t.Errorf("IsTerminal(%s) = %v, want %v", state, got, terminal[state])
		}
	}
	for state := range terminal {
		if state == enums.OrderStateCompleted {
			// Completed still accepts the return edge.
			continue
		}
		if next := NextStates(state); len(next) != 0 {
			t.Errorf("terminal state %s has outgoing edges %v", state, next)
		}
	}
}

func TestNextStatesReturnsCopy(t *testing.T) {
	next := NextStates(enums.OrderStateCreated)
	if len(next) == 0 {
		t.Fatal("created must have outgoing edges")
	}
	next[0] = enums.OrderStateRefunded
	if transitionTable[enums.OrderStateCreated][0] == enums.OrderStateRefunded {
		t.Fatal("NextStates must not expose the underlying table")
	}
}

func TestSweepOnlyEdge(t *testing.T) {
	if !isSweepOnly(enums.OrderStateDelivered, enums.OrderStateCompleted) {
		t.Fatal("delivered -> completed must be sweep only")
	}
	if isSweepOnly(enums.OrderStateDelivered, enums.OrderStateReturnRequested) {
		t.Fatal("return request is caller driven")
	}
}
