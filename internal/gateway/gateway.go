package gateway

import (
	"context"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/google/uuid"
)

// TransferInput describes a payout of escrowed funds to a seller.
type TransferInput struct {
	OrderID            uuid.UUID
	SellerID           uuid.UUID
	DestinationAccount string
	AmountCents        int64
	Currency           enums.Currency
	IdempotencyKey     string
	Description        string
}

// TransferResult carries the gateway reference for a settled transfer.
type TransferResult struct {
	TransferRef string
}

// RefundInput describes a refund of a captured payment back to the buyer.
type RefundInput struct {
	OrderID        uuid.UUID
	PaymentRef     string
	AmountCents    int64
	Currency       enums.Currency
	IdempotencyKey string
	Reason         string
}

// RefundResult carries the gateway reference for a settled refund.
type RefundResult struct {
	RefundRef string
}

// Gateway abstracts the payment provider used for payouts and refunds.
type Gateway interface {
	Transfer(ctx context.Context, input TransferInput) (TransferResult, error)
	Refund(ctx context.Context, input RefundInput) (RefundResult, error)
}

// TransferIdempotencyKey derives the stable key for an (order, seller) payout.
func TransferIdempotencyKey(orderID, sellerID uuid.UUID) string {
	return "payout:" + orderID.String() + ":" + sellerID.String()
}

// RefundIdempotencyKey derives the stable key for an order refund.
func RefundIdempotencyKey(orderID uuid.UUID) string {
	return "refund:" + orderID.String()
}
