package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	pkgstripe "github.com/avelarsoto/tianguis-backend/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the initialized Stripe client as a payment gateway.
func NewStripeGateway(api *pkgstripe.Client) (Gateway, error) {
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &stripeGateway{}, nil
}

func (g *stripeGateway) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.DestinationAccount == "" {
		return TransferResult{}, pkgerrors.New(pkgerrors.CodeGateway, "seller has no payout account")
	}
	if input.AmountCents <= 0 {
		return TransferResult{}, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(input.AmountCents),
		Currency:      stripe.String(strings.ToLower(input.Currency.String())),
		Destination:   stripe.String(input.DestinationAccount),
		TransferGroup: stripe.String(input.OrderID.String()),
	}
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}

	result, err := transfer.New(params)
	if err != nil {
		return TransferResult{}, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create transfer")
	}
	return TransferResult{TransferRef: result.ID}, nil
}

func (g *stripeGateway) Refund(ctx context.Context, input RefundInput) (RefundResult, error) {
	if input.PaymentRef == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required for refund")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(input.PaymentRef),
	}
	params.Context = ctx
	if input.AmountCents > 0 {
		params.Amount = stripe.Int64(input.AmountCents)
	}
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	result, err := refund.New(params)
	if err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create refund")
	}
	return RefundResult{RefundRef: result.ID}, nil
}
