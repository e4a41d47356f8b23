package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/commission"
	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/payloads"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockLedger interface {
	Apply(ctx context.Context, tx *gorm.DB, input stock.MovementInput) (*models.StockMovement, error)
}

type paymentRefunder interface {
	Refund(ctx context.Context, input gateway.RefundInput) (gateway.RefundResult, error)
}

// Config carries the policy knobs applied during transitions.
type Config struct {
	EscrowWindow      time.Duration
	CommissionRateBps int64
}

// Service drives the order lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	Options(ctx context.Context, orderID uuid.UUID) (*TransitionOptions, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	CompleteFromSweep(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	stock   stockLedger
	refunds paymentRefunder
	cfg     Config
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, stockLedger stockLedger, refunds paymentRefunder, cfg Config, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stockLedger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("payment refunder required")
	}
	if cfg.EscrowWindow <= 0 {
		cfg.EscrowWindow = 7 * 24 * time.Hour
	}
	if cfg.CommissionRateBps < 0 || cfg.CommissionRateBps > 10000 {
		return nil, fmt.Errorf("commission rate out of range: %d", cfg.CommissionRateBps)
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  ob,
		stock:   stockLedger,
		refunds: refunds,
		cfg:     cfg,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	order := &models.Order{
		ID:       uuid.New(),
		BuyerID:  input.BuyerID,
		State:    enums.OrderStateCreated,
		Currency: currency,
	}
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must be non-negative")
		}
		if item.SellerID == uuid.Nil || item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item seller and product required")
		}
		gross := item.Qty * item.UnitPriceCents
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SellerID:       item.SellerID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			GrossCents:     gross,
			PayoutStatus:   enums.ItemPayoutStatusPending,
		})
		order.GrossTotalCents += gross
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range order.Items {
			orderID := order.ID
			if _, err := s.stock.Apply(ctx, tx, stock.MovementInput{
				ProductID: item.ProductID,
				OrderID:   &orderID,
				DeltaQty:  -item.Qty,
				Reason:    enums.StockMovementReasonSale,
				ActorID:   &input.BuyerID,
			}); err != nil {
				return err
			}
		}

		if _, err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: "buyer"},
			Data: payloads.OrderStateChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromState:  enums.OrderStateCreated,
				ToState:    enums.OrderStateCreated,
				OccurredAt: s.now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	changes, err := s.repo.FindStateChanges(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load state history")
	}
	return changes, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	list, err := s.repo.ListBuyerOrders(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}

func (s *service) Options(ctx context.Context, orderID uuid.UUID) (*TransitionOptions, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &TransitionOptions{
		CurrentState: order.State,
		NextStates:   NextStates(order.State),
	}, nil
}

// Transition moves the order along one lifecycle edge. The state write, the
// history row and every side effect share one transaction, so a failed side
// effect leaves the order untouched.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target state")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		from := order.State
		if !CanTransition(from, input.Target) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot transition from %s to %s", from, input.Target)).
				WithDetails(map[string]any{"from": from, "to": input.Target})
		}
		if isSweepOnly(from, input.Target) && !input.fromSweep {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				"completion is driven by the escrow sweep").
				WithDetails(map[string]any{"from": from, "to": input.Target})
		}

		updates := map[string]any{
			"state":          input.Target,
			"previous_state": from,
		}

		if err := s.applyEdgeEffects(ctx, tx, repo, order, input, updates); err != nil {
			return err
		}

		rows, err := repo.UpdateOrderState(ctx, order.ID, order.Version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order state")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStaleState, "order was modified concurrently").
				WithDetails(map[string]any{"order_id": order.ID.String()})
		}

		metadata, err := transitionMetadata(input)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode transition metadata")
		}
		change := &models.OrderStateChange{
			ID:         uuid.New(),
			OrderID:    order.ID,
			FromState:  from,
			ToState:    input.Target,
			Metadata:   metadata,
			OccurredAt: s.now(),
		}
		if err := repo.CreateStateChange(ctx, change); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append state history")
		}

		if err := s.emitTransitionEvents(ctx, tx, order, from, input); err != nil {
			return err
		}

		reloaded, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteFromSweep drives the internal delivered -> completed edge inside
// the sweep's transaction once every seller payout has settled.
func (s *service) CompleteFromSweep(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.State != enums.OrderStateDelivered {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot complete order in state %s", order.State))
	}

	rows, err := repo.UpdateOrderState(ctx, order.ID, order.Version, map[string]any{
		"state":          enums.OrderStateCompleted,
		"previous_state": enums.OrderStateDelivered,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order state")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStaleState, "order was modified concurrently")
	}

	change := &models.OrderStateChange{
		ID:         uuid.New(),
		OrderID:    order.ID,
		FromState:  enums.OrderStateDelivered,
		ToState:    enums.OrderStateCompleted,
		OccurredAt: s.now(),
	}
	if err := repo.CreateStateChange(ctx, change); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append state history")
	}

	if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEscrowReleased,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.EscrowReleasedEvent{
			OrderID:    order.ID,
			ReleasedAt: s.now(),
		},
	}); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderStateChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			FromState:  enums.OrderStateDelivered,
			ToState:    enums.OrderStateCompleted,
			OccurredAt: s.now(),
		},
	})
}

// applyEdgeEffects mutates updates and runs the side effects bound to the
// edge being taken. Effects run inside tx so they roll back with the state.
func (s *service) applyEdgeEffects(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, input TransitionInput, updates map[string]any) error {
	switch input.Target {
	case enums.OrderStatePaid:
		return s.capturePayment(ctx, repo, order, input, updates)
	case enums.OrderStateDelivered:
		if order.EscrowReleaseAt == nil {
			updates["escrow_release_at"] = s.now().Add(s.cfg.EscrowWindow)
		}
		return nil
	case enums.OrderStateCancelled:
		if err := s.restoreStock(ctx, tx, order, enums.StockMovementReasonCancellation, input.ActorUserID); err != nil {
			return err
		}
		return s.refundIfCaptured(ctx, order, input, updates)
	case enums.OrderStateRefunded:
		if err := s.restoreStock(ctx, tx, order, enums.StockMovementReasonReturn, input.ActorUserID); err != nil {
			return err
		}
		return s.refundIfCaptured(ctx, order, input, updates)
	default:
		return nil
	}
}

// capturePayment snapshots the commission rate and the money split at the
// moment payment lands, so later rate changes never touch this order.
func (s *service) capturePayment(ctx context.Context, repo Repository, order *models.Order, input TransitionInput, updates map[string]any) error {
	split, err := commission.SplitItems(order.Items, s.cfg.CommissionRateBps)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "split commission")
	}
	if err := repo.UpdateOrderItems(ctx, order.Items); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot item splits")
	}
	updates["platform_fee_cents"] = split.PlatformFeeCents
	updates["seller_payout_total_cents"] = split.SellerPayoutTotalCents
	updates["payment_captured_at"] = s.now()
	if input.PaymentRef != "" {
		updates["payment_ref"] = input.PaymentRef
	}
	return nil
}

func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, order *models.Order, reason enums.StockMovementReason, actorID uuid.UUID) error {
	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	for _, item := range order.Items {
		orderID := order.ID
		if _, err := s.stock.Apply(ctx, tx, stock.MovementInput{
			ProductID: item.ProductID,
			OrderID:   &orderID,
			DeltaQty:  item.Qty,
			Reason:    reason,
			ActorID:   actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) refundIfCaptured(ctx context.Context, order *models.Order, input TransitionInput, updates map[string]any) error {
	if order.PaymentCapturedAt == nil {
		return nil
	}
	paymentRef := ""
	if order.PaymentRef != nil {
		paymentRef = *order.PaymentRef
	}
	result, err := s.refunds.Refund(ctx, gateway.RefundInput{
		OrderID:        order.ID,
		PaymentRef:     paymentRef,
		AmountCents:    order.GrossTotalCents,
		Currency:       order.Currency,
		IdempotencyKey: gateway.RefundIdempotencyKey(order.ID),
		Reason:         input.Reason,
	})
	if err != nil {
		return err
	}
	if result.RefundRef != "" {
		updates["refund_ref"] = result.RefundRef
	}
	return nil
}

func (s *service) emitTransitionEvents(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderState, input TransitionInput) error {
	occurredAt := s.now()
	actor := transitionActor(input)

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         actor,
		Data: payloads.OrderStateChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			FromState:  from,
			ToState:    input.Target,
			OccurredAt: occurredAt,
			Reason:     input.Reason,
		},
	}); err != nil {
		return err
	}

	switch input.Target {
	case enums.OrderStatePaid:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderPaidEvent{
				OrderID:         order.ID,
				BuyerID:         order.BuyerID,
				GrossTotalCents: order.GrossTotalCents,
				PaymentRef:      input.PaymentRef,
				CapturedAt:      occurredAt,
			},
		})
	case enums.OrderStateCancelled:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderStateChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromState:  from,
				ToState:    input.Target,
				OccurredAt: occurredAt,
				Reason:     input.Reason,
			},
		})
	case enums.OrderStateRefunded:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderRefundedEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				AmountCents: order.GrossTotalCents,
				RefundedAt:  occurredAt,
			},
		})
	default:
		return nil
	}
}

func transitionActor(input TransitionInput) *outbox.ActorRef {
	if input.ActorUserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole}
}

func transitionMetadata(input TransitionInput) (json.RawMessage, error) {
	meta := map[string]any{}
	if input.Reason != "" {
		meta["reason"] = input.Reason
	}
	if input.PaymentRef != "" {
		meta["payment_ref"] = input.PaymentRef
	}
	if input.ActorUserID != uuid.Nil {
		meta["actor_user_id"] = input.ActorUserID.String()
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}
