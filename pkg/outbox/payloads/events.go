package payloads

import (
	"time"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderStateChangedEvent is emitted on every order transition.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID        `json:"order_id"`
	BuyerID    uuid.UUID        `json:"buyer_id"`
	FromState  enums.OrderState `json:"from_state"`
	ToState    enums.OrderState `json:"to_state"`
	OccurredAt time.Time        `json:"occurred_at"`
	Reason     string           `json:"reason,omitempty"`
}

// OrderPaidEvent carries the snapshot taken when payment is captured.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	GrossTotalCents  int64     `json:"gross_total_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	PaymentRef       string    `json:"payment_ref,omitempty"`
	CapturedAt       time.Time `json:"captured_at"`
}

// OrderRefundedEvent reports a refund back to the buyer.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	AmountCents int64     `json:"amount_cents"`
	RefundRef   string    `json:"refund_ref,omitempty"`
	RefundedAt  time.Time `json:"refunded_at"`
}

// EscrowReleasedEvent is emitted when an order clears its escrow window.
type EscrowReleasedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ReleasedAt time.Time `json:"released_at"`
}

// PayoutRecordedEvent reports a settled seller payout.
type PayoutRecordedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	AmountCents     int64     `json:"amount_cents"`
	CommissionCents int64     `json:"commission_cents"`
	NetAmountCents  int64     `json:"net_amount_cents"`
	TransferRef     string    `json:"transfer_ref,omitempty"`
	SettledAt       time.Time `json:"settled_at"`
}

// PayoutFailedEvent reports a payout attempt that will be retried.
type PayoutFailedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	SellerID uuid.UUID `json:"seller_id"`
	Reason   string    `json:"reason,omitempty"`
	FailedAt time.Time `json:"failed_at"`
}

// StockAdjustedEvent surfaces manual inventory adjustments.
type StockAdjustedEvent struct {
	ProductID    uuid.UUID                 `json:"product_id"`
	DeltaQty     int64                     `json:"delta_qty"`
	Reason       enums.StockMovementReason `json:"reason"`
	BalanceAfter int64                     `json:"balance_after"`
	AdjustedAt   time.Time                 `json:"adjusted_at"`
}

// WithdrawalRequestedEvent reports a new seller withdrawal request.
type WithdrawalRequestedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	AmountCents  int64     `json:"amount_cents"`
	RequestedAt  time.Time `json:"requested_at"`
}

// WithdrawalSettledEvent reports a completed seller withdrawal.
type WithdrawalSettledEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	AmountCents  int64     `json:"amount_cents"`
	TransferRef  string    `json:"transfer_ref,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

// WithdrawalRejectedEvent reports a rejected seller withdrawal.
type WithdrawalRejectedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	SellerID     uuid.UUID `json:"seller_id"`
	AmountCents  int64     `json:"amount_cents"`
	Notes        string    `json:"notes,omitempty"`
	RejectedAt   time.Time `json:"rejected_at"`
}
