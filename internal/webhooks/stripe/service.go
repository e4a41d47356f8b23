package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

const orderIDMetadataKey = "order_id"

type orderTransitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders orderTransitioner
	Logger *logger.Logger
}

// Service translates Stripe payment events into order transitions.
type Service struct {
	orders orderTransitioner
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{
		orders: params.Orders,
		logg:   params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.markPaid(ctx, intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.markFailed(ctx, intent)
	default:
		return nil
	}
}

func (s *Service) markPaid(ctx context.Context, intent *stripe.PaymentIntent) error {
	orderID, err := orderIDFromIntent(intent)
	if err != nil {
		return err
	}
	_, err = s.orders.Transition(ctx, orders.TransitionInput{
		OrderID:    orderID,
		Target:     enums.OrderStatePaid,
		Reason:     "payment captured",
		PaymentRef: intent.ID,
	})
	if err != nil {
		// A replayed event lands on an order that already moved on.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInvalidTransition {
			if s.logg != nil {
				eventCtx := s.logg.WithOrderID(ctx, orderID.String())
				s.logg.Info(eventCtx, "payment event ignored for settled order")
			}
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) markFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	orderID, err := orderIDFromIntent(intent)
	if err != nil {
		return err
	}
	_, err = s.orders.Transition(ctx, orders.TransitionInput{
		OrderID: orderID,
		Target:  enums.OrderStateCancelled,
		Reason:  "payment failed",
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInvalidTransition {
			if s.logg != nil {
				eventCtx := s.logg.WithOrderID(ctx, orderID.String())
				s.logg.Info(eventCtx, "payment failure ignored for settled order")
			}
			return nil
		}
		return err
	}
	return nil
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	return &intent, nil
}

func orderIDFromIntent(intent *stripe.PaymentIntent) (uuid.UUID, error) {
	if intent == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	raw := intent.Metadata[orderIDMetadataKey]
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent missing order metadata")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id in metadata")
	}
	return orderID, nil
}
