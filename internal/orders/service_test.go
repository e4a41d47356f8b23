package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	order        *models.Order
	created      *models.Order
	updates      map[string]any
	updateRows   int64
	changes      []models.OrderStateChange
	itemsUpdated []models.OrderItem
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	s.created = order
	return order, nil
}

func (s *stubOrdersRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrdersRepo) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	if s.order == nil {
		return nil, nil
	}
	return s.order.Items, nil
}

func (s *stubOrdersRepo) FindStateChanges(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error) {
	return s.changes, nil
}

func (s *stubOrdersRepo) FindDueForEscrowRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func (s *stubOrdersRepo) UpdateOrderState(ctx context.Context, orderID uuid.UUID, expectedVersion int64, updates map[string]any) (int64, error) {
	s.updates = updates
	if s.updateRows == 0 {
		return 0, nil
	}
	if state, ok := updates["state"].(enums.OrderState); ok {
		s.order.State = state
	}
	s.order.Version++
	return s.updateRows, nil
}

func (s *stubOrdersRepo) UpdateOrderItems(ctx context.Context, items []models.OrderItem) error {
	s.itemsUpdated = items
	return nil
}

func (s *stubOrdersRepo) CreateStateChange(ctx context.Context, change *models.OrderStateChange) error {
	s.changes = append(s.changes, *change)
	return nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range s.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) eventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event.EventType)
	}
	return out
}

type stubStockLedger struct {
	movements []stock.MovementInput
	err       error
}

func (s *stubStockLedger) Apply(ctx context.Context, tx *gorm.DB, input stock.MovementInput) (*models.StockMovement, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.movements = append(s.movements, input)
	return &models.StockMovement{ID: uuid.New(), ProductID: input.ProductID, DeltaQty: input.DeltaQty}, nil
}

type stubRefunder struct {
	inputs []gateway.RefundInput
	err    error
}

func (s *stubRefunder) Refund(ctx context.Context, input gateway.RefundInput) (gateway.RefundResult, error) {
	if s.err != nil {
		return gateway.RefundResult{}, s.err
	}
	s.inputs = append(s.inputs, input)
	return gateway.RefundResult{RefundRef: "re_test"}, nil
}

type serviceFixture struct {
	repo    *stubOrdersRepo
	outbox  *stubOutbox
	stock   *stubStockLedger
	refunds *stubRefunder
	service Service
}

func newServiceFixture(t *testing.T, repo *stubOrdersRepo) *serviceFixture {
	t.Helper()
	ob := &stubOutbox{}
	ledger := &stubStockLedger{}
	refunds := &stubRefunder{}
	svc, err := NewService(repo, &stubTxRunner{}, ob, ledger, refunds, Config{
		EscrowWindow:      7 * 24 * time.Hour,
		CommissionRateBps: 1000,
	}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{repo: repo, outbox: ob, stock: ledger, refunds: refunds, service: svc}
}

func testOrder(state enums.OrderState) *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:              orderID,
		BuyerID:         uuid.New(),
		State:           state,
		Currency:        enums.CurrencyUSD,
		GrossTotalCents: 10000,
		Version:         3,
		Items: []models.OrderItem{
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				SellerID:       uuid.New(),
				ProductID:      uuid.New(),
				Name:           "ceramic planter",
				Qty:            2,
				UnitPriceCents: 5000,
				GrossCents:     10000,
				PayoutStatus:   enums.ItemPayoutStatusPending,
			},
		},
	}
}

func TestCreateOrderComputesTotalsAndReservesStock(t *testing.T) {
	fx := newServiceFixture(t, &stubOrdersRepo{updateRows: 1})

	buyerID := uuid.New()
	order, err := fx.service.Create(context.Background(), CreateOrderInput{
		BuyerID: buyerID,
		Items: []CreateOrderItemInput{
			{SellerID: uuid.New(), ProductID: uuid.New(), Name: "mug", Qty: 3, UnitPriceCents: 1200},
			{SellerID: uuid.New(), ProductID: uuid.New(), Name: "plate", Qty: 1, UnitPriceCents: 2500},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.GrossTotalCents != 3*1200+2500 {
		t.Fatalf("unexpected gross total: %d", order.GrossTotalCents)
	}
	if order.Currency != enums.CurrencyUSD {
		t.Fatalf("expected default currency, got %s", order.Currency)
	}
	if len(fx.stock.movements) != 2 {
		t.Fatalf("expected 2 stock movements, got %d", len(fx.stock.movements))
	}
	first := fx.stock.movements[0]
	if first.DeltaQty != -3 || first.Reason != enums.StockMovementReasonSale {
		t.Fatalf("unexpected first movement: %+v", first)
	}
	if first.OrderID == nil || *first.OrderID != order.ID {
		t.Fatalf("movement not linked to order")
	}
	if len(fx.outbox.events) != 1 || fx.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected events: %v", fx.outbox.eventTypes())
	}
	if fx.repo.created == nil {
		t.Fatalf("order was never persisted")
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	fx := newServiceFixture(t, &stubOrdersRepo{updateRows: 1})

	cases := []CreateOrderInput{
		{BuyerID: uuid.Nil, Items: []CreateOrderItemInput{{SellerID: uuid.New(), ProductID: uuid.New(), Qty: 1, UnitPriceCents: 100}}},
		{BuyerID: uuid.New()},
		{BuyerID: uuid.New(), Items: []CreateOrderItemInput{{SellerID: uuid.New(), ProductID: uuid.New(), Qty: 0, UnitPriceCents: 100}}},
		{BuyerID: uuid.New(), Items: []CreateOrderItemInput{{SellerID: uuid.Nil, ProductID: uuid.New(), Qty: 1, UnitPriceCents: 100}}},
	}
	for i, input := range cases {
		_, err := fx.service.Create(context.Background(), input)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(fx.stock.movements) != 0 {
		t.Fatalf("no stock should move on rejected input")
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateCreated), updateRows: 1}
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateDelivered,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if len(repo.changes) != 0 {
		t.Fatalf("illegal edge must not append history")
	}
	if len(fx.outbox.events) != 0 {
		t.Fatalf("illegal edge must not emit events")
	}
}

func TestTransitionToPaidSnapshotsCommission(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateCreated), updateRows: 1}
	fx := newServiceFixture(t, repo)

	order, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID:    repo.order.ID,
		Target:     enums.OrderStatePaid,
		PaymentRef: "pi_123",
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if order.State != enums.OrderStatePaid {
		t.Fatalf("unexpected state: %s", order.State)
	}
	if repo.updates["platform_fee_cents"] != int64(1000) {
		t.Fatalf("unexpected platform fee: %v", repo.updates["platform_fee_cents"])
	}
	if repo.updates["seller_payout_total_cents"] != int64(9000) {
		t.Fatalf("unexpected payout total: %v", repo.updates["seller_payout_total_cents"])
	}
	if repo.updates["payment_ref"] != "pi_123" {
		t.Fatalf("payment ref not recorded")
	}
	if len(repo.itemsUpdated) != 1 || repo.itemsUpdated[0].SellerPayoutCents != 9000 {
		t.Fatalf("item split not snapshotted: %+v", repo.itemsUpdated)
	}
	types := fx.outbox.eventTypes()
	if len(types) != 2 || types[0] != enums.EventOrderStateChanged || types[1] != enums.EventOrderPaid {
		t.Fatalf("unexpected events: %v", types)
	}
	if len(repo.changes) != 1 || repo.changes[0].ToState != enums.OrderStatePaid {
		t.Fatalf("history row missing")
	}
}

func TestTransitionToDeliveredSetsEscrowClockOnce(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateShipped), updateRows: 1}
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateDelivered,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, ok := repo.updates["escrow_release_at"]; !ok {
		t.Fatalf("first delivery must arm the escrow clock")
	}

	// A re-delivered order keeps its original release time.
	repo2 := &stubOrdersRepo{order: testOrder(enums.OrderStateShipped), updateRows: 1}
	existing := time.Now().Add(time.Hour)
	repo2.order.EscrowReleaseAt = &existing
	fx2 := newServiceFixture(t, repo2)
	if _, err := fx2.service.Transition(context.Background(), TransitionInput{
		OrderID: repo2.order.ID,
		Target:  enums.OrderStateDelivered,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, ok := repo2.updates["escrow_release_at"]; ok {
		t.Fatalf("escrow clock must not be rearmed")
	}
}

func TestTransitionBlocksDirectCompletion(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateDelivered), updateRows: 1}
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateCompleted,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if len(fx.outbox.events) != 0 {
		t.Fatalf("blocked edge must not emit events")
	}
}

func TestTransitionStaleVersionConflict(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStatePaid), updateRows: 0}
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateProcessing,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStaleState {
		t.Fatalf("expected stale state error, got %v", err)
	}
	if len(fx.outbox.events) != 0 {
		t.Fatalf("stale write must not emit events")
	}
}

func TestCancelAfterCaptureRefundsAndRestocks(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStatePaid), updateRows: 1}
	captured := time.Now().Add(-time.Hour)
	repo.order.PaymentCapturedAt = &captured
	paymentRef := "pi_456"
	repo.order.PaymentRef = &paymentRef
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateCancelled,
		Reason:  "buyer changed their mind",
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if len(fx.refunds.inputs) != 1 {
		t.Fatalf("expected one refund, got %d", len(fx.refunds.inputs))
	}
	refund := fx.refunds.inputs[0]
	if refund.AmountCents != repo.order.GrossTotalCents || refund.PaymentRef != paymentRef {
		t.Fatalf("unexpected refund input: %+v", refund)
	}
	if repo.updates["refund_ref"] != "re_test" {
		t.Fatalf("refund ref not recorded")
	}
	if len(fx.stock.movements) != 1 {
		t.Fatalf("expected restock movement")
	}
	movement := fx.stock.movements[0]
	if movement.DeltaQty != repo.order.Items[0].Qty || movement.Reason != enums.StockMovementReasonCancellation {
		t.Fatalf("unexpected movement: %+v", movement)
	}
	types := fx.outbox.eventTypes()
	if len(types) != 2 || types[1] != enums.EventOrderCancelled {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestCancelBeforeCaptureSkipsRefund(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateCreated), updateRows: 1}
	fx := newServiceFixture(t, repo)

	_, err := fx.service.Transition(context.Background(), TransitionInput{
		OrderID: repo.order.ID,
		Target:  enums.OrderStateCancelled,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if len(fx.refunds.inputs) != 0 {
		t.Fatalf("uncaptured order must not trigger a refund")
	}
}

func TestCompleteFromSweepEmitsReleaseEvents(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateDelivered), updateRows: 1}
	fx := newServiceFixture(t, repo)

	if err := fx.service.CompleteFromSweep(context.Background(), &gorm.DB{}, repo.order.ID); err != nil {
		t.Fatalf("CompleteFromSweep: %v", err)
	}
	if repo.order.State != enums.OrderStateCompleted {
		t.Fatalf("unexpected state: %s", repo.order.State)
	}
	types := fx.outbox.eventTypes()
	if len(types) != 2 || types[0] != enums.EventEscrowReleased || types[1] != enums.EventOrderCompleted {
		t.Fatalf("unexpected events: %v", types)
	}
	if len(repo.changes) != 1 || repo.changes[0].FromState != enums.OrderStateDelivered {
		t.Fatalf("history row missing")
	}
}

func TestCompleteFromSweepRejectsWrongState(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateShipped), updateRows: 1}
	fx := newServiceFixture(t, repo)

	err := fx.service.CompleteFromSweep(context.Background(), &gorm.DB{}, repo.order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOptionsReflectTransitionTable(t *testing.T) {
	repo := &stubOrdersRepo{order: testOrder(enums.OrderStateCancelled), updateRows: 1}
	fx := newServiceFixture(t, repo)

	options, err := fx.service.Options(context.Background(), repo.order.ID)
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if options.CurrentState != enums.OrderStateCancelled {
		t.Fatalf("unexpected current state: %s", options.CurrentState)
	}
	if len(options.NextStates) != 0 {
		t.Fatalf("cancelled is terminal, got next states %v", options.NextStates)
	}
}
