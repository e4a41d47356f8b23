package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
)

type stubTransitioner struct {
	inputs []orders.TransitionInput
	err    error
}

func (s *stubTransitioner) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, input)
	return &models.Order{ID: input.OrderID, State: input.Target}, nil
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventPaymentSucceededMarksPaid(t *testing.T) {
	transitioner := &stubTransitioner{}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	orderID := uuid.New()
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{
		ID:       "pi_123",
		Metadata: map[string]string{"order_id": orderID.String()},
	})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(transitioner.inputs) != 1 {
		t.Fatalf("expected one transition, got %d", len(transitioner.inputs))
	}
	input := transitioner.inputs[0]
	if input.OrderID != orderID || input.Target != enums.OrderStatePaid || input.PaymentRef != "pi_123" {
		t.Fatalf("unexpected transition input: %+v", input)
	}
}

func TestHandleEventPaymentFailedCancels(t *testing.T) {
	transitioner := &stubTransitioner{}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	orderID := uuid.New()
	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{
		ID:       "pi_456",
		Metadata: map[string]string{"order_id": orderID.String()},
	})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(transitioner.inputs) != 1 {
		t.Fatalf("expected one transition, got %d", len(transitioner.inputs))
	}
	if transitioner.inputs[0].Target != enums.OrderStateCancelled {
		t.Fatalf("unexpected target: %s", transitioner.inputs[0].Target)
	}
}

func TestHandleEventToleratesReplayedEvents(t *testing.T) {
	transitioner := &stubTransitioner{
		err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot transition from paid to paid"),
	}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{
		ID:       "pi_replay",
		Metadata: map[string]string{"order_id": uuid.New().String()},
	})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("replayed event must be swallowed, got %v", err)
	}
}

func TestHandleEventSurfacesOtherErrors(t *testing.T) {
	transitioner := &stubTransitioner{
		err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
	}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{
		ID:       "pi_err",
		Metadata: map[string]string{"order_id": uuid.New().String()},
	})
	if err := service.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected error to surface")
	}
}

func TestHandleEventRejectsMissingMetadata(t *testing.T) {
	transitioner := &stubTransitioner{}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_bare"})
	err = service.HandleEvent(context.Background(), event)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(transitioner.inputs) != 0 {
		t.Fatalf("no transition should run without an order id")
	}
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	transitioner := &stubTransitioner{}
	service, err := NewService(ServiceParams{Orders: transitioner})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	event := &stripe.Event{
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unrelated event must be a no-op, got %v", err)
	}
	if len(transitioner.inputs) != 0 {
		t.Fatalf("no transition expected")
	}
}
