package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
)

type fakeCarrierOrders struct {
	transitions   []orders.TransitionInput
	transitionErr error
}

func (f *fakeCarrierOrders) Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	return nil, nil
}

func (f *fakeCarrierOrders) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (f *fakeCarrierOrders) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error) {
	return nil, nil
}

func (f *fakeCarrierOrders) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	return nil, nil
}

func (f *fakeCarrierOrders) Options(ctx context.Context, orderID uuid.UUID) (*orders.TransitionOptions, error) {
	return nil, nil
}

func (f *fakeCarrierOrders) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	f.transitions = append(f.transitions, input)
	return &models.Order{ID: input.OrderID, State: input.Target}, nil
}

func (f *fakeCarrierOrders) CompleteFromSweep(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return nil
}

func postCarrierUpdate(handler http.HandlerFunc, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/carrier", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Carrier-Token", token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCarrierWebhookMapsStatuses(t *testing.T) {
	svc := &fakeCarrierOrders{}
	handler := CarrierWebhook(svc, "tok_test", nil)
	orderID := uuid.New()

	rec := postCarrierUpdate(handler, "tok_test", `{"order_id": "`+orderID.String()+`", "status": "in_transit"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = postCarrierUpdate(handler, "tok_test", `{"order_id": "`+orderID.String()+`", "status": "delivered"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(svc.transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(svc.transitions))
	}
	if svc.transitions[0].Target != enums.OrderStateShipped {
		t.Fatalf("in_transit should map to shipped, got %s", svc.transitions[0].Target)
	}
	if svc.transitions[1].Target != enums.OrderStateDelivered {
		t.Fatalf("delivered should map to delivered, got %s", svc.transitions[1].Target)
	}
	if svc.transitions[0].OrderID != orderID {
		t.Fatalf("order id not passed through")
	}
}

func TestCarrierWebhookRejectsBadToken(t *testing.T) {
	svc := &fakeCarrierOrders{}
	handler := CarrierWebhook(svc, "tok_test", nil)

	rec := postCarrierUpdate(handler, "wrong", `{"order_id": "`+uuid.NewString()+`", "status": "delivered"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.transitions) != 0 {
		t.Fatalf("transition should not run on bad token")
	}
}

func TestCarrierWebhookIgnoresUnknownStatus(t *testing.T) {
	svc := &fakeCarrierOrders{}
	handler := CarrierWebhook(svc, "tok_test", nil)

	rec := postCarrierUpdate(handler, "tok_test", `{"order_id": "`+uuid.NewString()+`", "status": "label_printed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.transitions) != 0 {
		t.Fatalf("unknown statuses must not transition")
	}
}

func TestCarrierWebhookSwallowsReplayedCallbacks(t *testing.T) {
	svc := &fakeCarrierOrders{
		transitionErr: pkgerrors.New(pkgerrors.CodeInvalidTransition, "delivered is not reachable from delivered"),
	}
	handler := CarrierWebhook(svc, "tok_test", nil)

	rec := postCarrierUpdate(handler, "tok_test", `{"order_id": "`+uuid.NewString()+`", "status": "delivered"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed callback should be acknowledged, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCarrierWebhookRequiresConfiguredToken(t *testing.T) {
	handler := CarrierWebhook(&fakeCarrierOrders{}, "", nil)

	rec := postCarrierUpdate(handler, "anything", `{"order_id": "`+uuid.NewString()+`", "status": "delivered"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when unconfigured, got %d", rec.Code)
	}
}
