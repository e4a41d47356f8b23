package payouts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubOrderSource struct {
	orders []models.Order
}

func (s *stubOrderSource) FindDueForEscrowRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.orders, nil
}

type stubCompleter struct {
	mu        sync.Mutex
	completed []uuid.UUID
	// strict rejects repeat completions the way the order state machine does.
	strict bool
}

func (s *stubCompleter) CompleteFromSweep(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strict {
		for _, id := range s.completed {
			if id == orderID {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order already completed")
			}
		}
	}
	s.completed = append(s.completed, orderID)
	return nil
}

type stubGateway struct {
	mu        sync.Mutex
	transfers []gateway.TransferInput
	failFor   map[uuid.UUID]error
}

func (s *stubGateway) Transfer(ctx context.Context, input gateway.TransferInput) (gateway.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[input.SellerID]; ok {
		return gateway.TransferResult{}, err
	}
	s.transfers = append(s.transfers, input)
	return gateway.TransferResult{TransferRef: "tr_" + input.SellerID.String()[:8]}, nil
}

func (s *stubGateway) Refund(ctx context.Context, input gateway.RefundInput) (gateway.RefundResult, error) {
	return gateway.RefundResult{}, errors.New("not implemented")
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) countByType(eventType enums.OutboxEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ledger := `
CREATE TABLE IF NOT EXISTS payout_ledger_entries (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  commission_cents INTEGER NOT NULL,
  net_amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL,
  transfer_ref TEXT,
  error_detail TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, seller_id)
);`
	balances := `
CREATE TABLE IF NOT EXISTS seller_balances (
  seller_id TEXT PRIMARY KEY,
  available_cents INTEGER NOT NULL DEFAULT 0,
  pending_cents INTEGER NOT NULL DEFAULT 0,
  total_withdrawn_cents INTEGER NOT NULL DEFAULT 0,
  payout_account_ref TEXT,
  updated_at DATETIME
);`
	items := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  gross_cents INTEGER NOT NULL,
  commission_rate_bps INTEGER NOT NULL DEFAULT 0,
  platform_commission_cents INTEGER NOT NULL DEFAULT 0,
  seller_payout_cents INTEGER NOT NULL DEFAULT 0,
  payout_status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, ddl := range []string{ledger, balances, items} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type sweepFixture struct {
	db        *gorm.DB
	repo      *Repository
	source    *stubOrderSource
	completer *stubCompleter
	gateway   *stubGateway
	outbox    *recordingOutbox
	service   Service
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	source := &stubOrderSource{}
	completer := &stubCompleter{}
	gw := &stubGateway{failFor: map[uuid.UUID]error{}}
	ob := &recordingOutbox{}
	svc, err := NewService(repo, source, completer, &gormTxRunner{db: db}, gw, ob, nil, Config{Workers: 2, BatchSize: 50}, nil)
	require.NoError(t, err)
	return &sweepFixture{db: db, repo: repo, source: source, completer: completer, gateway: gw, outbox: ob, service: svc}
}

func dueOrder(t *testing.T, fx *sweepFixture, sellers ...uuid.UUID) models.Order {
	t.Helper()
	orderID := uuid.New()
	order := models.Order{
		ID:       orderID,
		BuyerID:  uuid.New(),
		State:    enums.OrderStateDelivered,
		Currency: enums.CurrencyUSD,
	}
	for _, sellerID := range sellers {
		item := models.OrderItem{
			ID:                      uuid.New(),
			OrderID:                 orderID,
			SellerID:                sellerID,
			ProductID:               uuid.New(),
			Name:                    "handmade tile",
			Qty:                     1,
			UnitPriceCents:          5000,
			GrossCents:              5000,
			CommissionRateBps:       1000,
			PlatformCommissionCents: 500,
			SellerPayoutCents:       4500,
			PayoutStatus:            enums.ItemPayoutStatusPending,
		}
		require.NoError(t, fx.db.Create(&item).Error)
		order.Items = append(order.Items, item)
		order.GrossTotalCents += item.GrossCents
	}
	return order
}

func TestSweepSettlesSellersAndCompletesOrder(t *testing.T) {
	fx := newSweepFixture(t)
	sellerA := uuid.New()
	sellerB := uuid.New()
	order := dueOrder(t, fx, sellerA, sellerB)
	fx.source.orders = []models.Order{order}

	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Completed)
	assert.Empty(t, result.Errors)

	require.Len(t, fx.completer.completed, 1)
	assert.Equal(t, order.ID, fx.completer.completed[0])
	assert.Len(t, fx.gateway.transfers, 2)

	entries, err := fx.service.LedgerForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, enums.PayoutLedgerStatusCompleted, entry.Status)
		assert.Equal(t, int64(4500), entry.NetAmountCents)
		assert.Equal(t, int64(500), entry.CommissionCents)
		require.NotNil(t, entry.TransferRef)
		assert.Equal(t, 1, entry.AttemptCount)
	}

	balance, err := fx.service.Balance(context.Background(), sellerA)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance.AvailableCents)

	var items []models.OrderItem
	require.NoError(t, fx.db.Where("order_id = ?", order.ID).Find(&items).Error)
	for _, item := range items {
		assert.Equal(t, enums.ItemPayoutStatusPaid, item.PayoutStatus)
	}

	assert.Equal(t, 2, fx.outbox.countByType(enums.EventPayoutRecorded))
}

func TestSweepRecordsFailureAndHoldsOrderOpen(t *testing.T) {
	fx := newSweepFixture(t)
	goodSeller := uuid.New()
	badSeller := uuid.New()
	fx.gateway.failFor[badSeller] = errors.New("account unavailable")
	order := dueOrder(t, fx, goodSeller, badSeller)
	fx.source.orders = []models.Order{order}

	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Completed)
	assert.Empty(t, fx.completer.completed)

	entry, err := fx.repo.FindEntry(context.Background(), nil, order.ID, badSeller)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.PayoutLedgerStatusFailed, entry.Status)
	require.NotNil(t, entry.ErrorDetail)
	assert.Contains(t, *entry.ErrorDetail, "account unavailable")

	// The failed seller's funds never land.
	balance, err := fx.service.Balance(context.Background(), badSeller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.AvailableCents)

	assert.Equal(t, 1, fx.outbox.countByType(enums.EventPayoutFailed))
}

func TestSweepRetriesFailedEntry(t *testing.T) {
	fx := newSweepFixture(t)
	sellerID := uuid.New()
	fx.gateway.failFor[sellerID] = errors.New("temporarily down")
	order := dueOrder(t, fx, sellerID)
	fx.source.orders = []models.Order{order}

	_, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)

	// The gateway recovers before the next run.
	delete(fx.gateway.failFor, sellerID)
	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Completed)

	entry, err := fx.repo.FindEntry(context.Background(), nil, order.ID, sellerID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.PayoutLedgerStatusCompleted, entry.Status)
	assert.Equal(t, 2, entry.AttemptCount)

	balance, err := fx.service.Balance(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance.AvailableCents)
}

func TestSweepRerunSkipsSettledSellers(t *testing.T) {
	fx := newSweepFixture(t)
	sellerID := uuid.New()
	order := dueOrder(t, fx, sellerID)
	fx.source.orders = []models.Order{order}

	_, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, fx.gateway.transfers, 1)

	// The order stays in the due set until the completion commits, so a
	// rerun must not transfer twice or double-credit. The already-settled
	// pair counts as skipped, not as a fresh success.
	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, fx.gateway.transfers, 1)

	balance, err := fx.service.Balance(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance.AvailableCents)
}

// overlappingGateway runs a second full sweep from inside the first transfer,
// reproducing two sweep processes racing past the ledger check together.
type overlappingGateway struct {
	inner *stubGateway
	sweep func()
	once  sync.Once
}

func (g *overlappingGateway) Transfer(ctx context.Context, input gateway.TransferInput) (gateway.TransferResult, error) {
	g.once.Do(g.sweep)
	return g.inner.Transfer(ctx, input)
}

func (g *overlappingGateway) Refund(ctx context.Context, input gateway.RefundInput) (gateway.RefundResult, error) {
	return g.inner.Refund(ctx, input)
}

func TestSweepOverlappingRunsCreditSellerOnce(t *testing.T) {
	fx := newSweepFixture(t)
	fx.completer.strict = true
	sellerID := uuid.New()
	order := dueOrder(t, fx, sellerID)
	fx.source.orders = []models.Order{order}

	svc := fx.service.(*service)
	svc.gateway = &overlappingGateway{
		inner: fx.gateway,
		sweep: func() {
			// Both runs passed the pre-transfer ledger check; the inner one
			// records its payout before the outer one does.
			inner, err := NewService(fx.repo, fx.source, fx.completer, &gormTxRunner{db: fx.db}, fx.gateway, fx.outbox, nil, Config{Workers: 1, BatchSize: 50}, nil)
			require.NoError(t, err)
			_, err = inner.Sweep(context.Background())
			require.NoError(t, err)
		},
	}

	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)

	// The inner run settled and completed; the outer one must not add to it.
	balance, err := fx.service.Balance(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance.AvailableCents)

	entry, err := fx.repo.FindEntry(context.Background(), nil, order.ID, sellerID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.PayoutLedgerStatusCompleted, entry.Status)
	assert.Equal(t, 1, entry.AttemptCount)

	assert.Equal(t, 1, fx.outbox.countByType(enums.EventPayoutRecorded))
	assert.Len(t, fx.completer.completed, 1)
}

func TestSweepCompletesZeroNetPayoutWithoutTransfer(t *testing.T) {
	fx := newSweepFixture(t)
	sellerID := uuid.New()
	orderID := uuid.New()
	item := models.OrderItem{
		ID:                      uuid.New(),
		OrderID:                 orderID,
		SellerID:                sellerID,
		ProductID:               uuid.New(),
		Name:                    "promotional sample",
		Qty:                     1,
		UnitPriceCents:          5000,
		GrossCents:              5000,
		CommissionRateBps:       10000,
		PlatformCommissionCents: 5000,
		SellerPayoutCents:       0,
		PayoutStatus:            enums.ItemPayoutStatusPending,
	}
	require.NoError(t, fx.db.Create(&item).Error)
	fx.source.orders = []models.Order{{
		ID:              orderID,
		BuyerID:         uuid.New(),
		State:           enums.OrderStateDelivered,
		Currency:        enums.CurrencyUSD,
		GrossTotalCents: item.GrossCents,
		Items:           []models.OrderItem{item},
	}}

	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Completed)
	assert.Empty(t, result.Errors)
	assert.Empty(t, fx.gateway.transfers)

	entry, err := fx.repo.FindEntry(context.Background(), nil, orderID, sellerID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.PayoutLedgerStatusCompleted, entry.Status)
	assert.Equal(t, int64(0), entry.NetAmountCents)
	assert.Nil(t, entry.TransferRef)

	balance, err := fx.service.Balance(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.AvailableCents)

	var updated models.OrderItem
	require.NoError(t, fx.db.Where("id = ?", item.ID).First(&updated).Error)
	assert.Equal(t, enums.ItemPayoutStatusPaid, updated.PayoutStatus)
	assert.Equal(t, 1, fx.outbox.countByType(enums.EventPayoutRecorded))
}

func TestSweepWithNothingDue(t *testing.T) {
	fx := newSweepFixture(t)

	result, err := fx.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestBalanceDefaultsToZeroForUnknownSeller(t *testing.T) {
	fx := newSweepFixture(t)
	sellerID := uuid.New()

	balance, err := fx.service.Balance(context.Background(), sellerID)
	require.NoError(t, err)
	assert.Equal(t, sellerID, balance.SellerID)
	assert.Equal(t, int64(0), balance.AvailableCents)
}
