package main

import (
	"encoding/json"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/payloads"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/registry"
)

// newDecoderRegistry wires a v1 decoder for every event type the publisher
// emits. Unknown types or versions fail Decode and the message is dropped.
func newDecoderRegistry() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	register := func(eventType enums.OutboxEventType, factory func() interface{}) {
		reg.Register(eventType, 1, func(payload json.RawMessage) (interface{}, error) {
			target := factory()
			if err := json.Unmarshal(payload, target); err != nil {
				return nil, err
			}
			return target, nil
		})
	}

	register(enums.EventOrderCreated, func() interface{} { return &payloads.OrderStateChangedEvent{} })
	register(enums.EventOrderStateChanged, func() interface{} { return &payloads.OrderStateChangedEvent{} })
	register(enums.EventOrderPaid, func() interface{} { return &payloads.OrderPaidEvent{} })
	register(enums.EventOrderCancelled, func() interface{} { return &payloads.OrderStateChangedEvent{} })
	register(enums.EventOrderRefunded, func() interface{} { return &payloads.OrderRefundedEvent{} })
	register(enums.EventOrderCompleted, func() interface{} { return &payloads.OrderStateChangedEvent{} })
	register(enums.EventEscrowReleased, func() interface{} { return &payloads.EscrowReleasedEvent{} })
	register(enums.EventPayoutRecorded, func() interface{} { return &payloads.PayoutRecordedEvent{} })
	register(enums.EventPayoutFailed, func() interface{} { return &payloads.PayoutFailedEvent{} })
	register(enums.EventWithdrawalRequested, func() interface{} { return &payloads.WithdrawalRequestedEvent{} })
	register(enums.EventWithdrawalSettled, func() interface{} { return &payloads.WithdrawalSettledEvent{} })
	register(enums.EventWithdrawalRejected, func() interface{} { return &payloads.WithdrawalRejectedEvent{} })
	register(enums.EventStockAdjusted, func() interface{} { return &payloads.StockAdjustedEvent{} })

	return reg
}
