package orders

import (
	"time"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateOrderItemInput is one product line submitted at order creation.
type CreateOrderItemInput struct {
	SellerID       uuid.UUID
	ProductID      uuid.UUID
	Name           string
	Qty            int64
	UnitPriceCents int64
}

// CreateOrderInput captures everything needed to open a new order.
type CreateOrderInput struct {
	BuyerID  uuid.UUID
	Currency enums.Currency
	Items    []CreateOrderItemInput
}

// TransitionInput drives one edge of the order lifecycle.
type TransitionInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderState
	Reason      string
	PaymentRef  string
	ActorUserID uuid.UUID
	ActorRole   string

	// fromSweep authorizes internal-only edges. Only the payout sweep
	// sets it, via CompleteFromSweep.
	fromSweep bool
}

// TransitionOptions reports the current state plus the legal next states.
type TransitionOptions struct {
	CurrentState enums.OrderState   `json:"current_state"`
	NextStates   []enums.OrderState `json:"next_states"`
}

// OrderSummary exposes the aggregated fields returned in order lists.
type OrderSummary struct {
	ID              uuid.UUID        `json:"id"`
	State           enums.OrderState `json:"state"`
	Currency        enums.Currency   `json:"currency"`
	GrossTotalCents int64            `json:"gross_total_cents"`
	TotalItems      int              `json:"total_items"`
	EscrowReleaseAt *time.Time       `json:"escrow_release_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
