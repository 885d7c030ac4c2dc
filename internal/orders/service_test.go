package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/internal/shops"
	"github.com/koipond/koipond-backend/internal/testutil"
	"github.com/koipond/koipond-backend/internal/wallets"
	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/pagination"
	"github.com/koipond/koipond-backend/pkg/types"
)

type fakeEstimator struct {
	fee   decimal.Decimal
	err   error
	calls int
}

func (f *fakeEstimator) Quote(context.Context, shipping.QuoteRequest) (decimal.Decimal, error) {
	f.calls++
	return f.fee, f.err
}

type harness struct {
	db        *gorm.DB
	svc       Service
	wallets   wallets.Service
	estimator *fakeEstimator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testutil.OpenDB(t)
	runner := dbpkg.Wrap(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), ledger.NewRepository(conn), runner, events, nil)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), runner, walletSvc, events, nil, nil)
	require.NoError(t, err)

	estimator := &fakeEstimator{fee: testutil.Money("3.00")}
	svc, err := NewService(
		NewRepository(conn),
		runner,
		events,
		ledgerSvc,
		products.NewRepository(conn),
		shops.NewRepository(conn),
		estimator,
		nil,
	)
	require.NoError(t, err)
	return &harness{db: conn, svc: svc, wallets: walletSvc, estimator: estimator}
}

func (h *harness) transaction(t *testing.T, orderID uuid.UUID) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, h.db.Where("doc_no = ?", orderID).First(&txn).Error)
	return txn
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	bal, err := h.wallets.Balance(context.Background(), userID)
	require.NoError(t, err)
	return bal.Amount
}

func (h *harness) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, h.db.First(&p, "id = ?", productID).Error)
	return p.StockQuantity
}

var admin = Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestCompleteTwiceWritesOnePayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusDelivering)

	res, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.OrderStatusComplete, res.Order.Status)

	first := h.transaction(t, order.ID)
	require.NotNil(t, first.Payment)
	assert.Equal(t, types.MethodCOD, first.Payment.Method)
	assert.True(t, first.Payment.Amount.Equal(testutil.Money("20")))
	assert.Equal(t, enums.LedgerStateSuccess, first.State)

	res, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "Complete", Actor: admin})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	second := h.transaction(t, order.ID)
	assert.True(t, first.Payment.Date.Equal(second.Payment.Date))
	assert.True(t, h.balance(t, buyer).IsZero())
}

func TestCompleteThenFailRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusDelivering)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.NoError(t, err)

	res, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Refunded)

	txn := h.transaction(t, order.ID)
	require.NotNil(t, txn.Refund)
	assert.Equal(t, "order failed", txn.Refund.Description)
	assert.Equal(t, enums.LedgerStateCancel, txn.State)
	assert.True(t, h.balance(t, buyer).Equal(testutil.Money("20")))

	res, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.Refunded)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "return", Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.True(t, h.balance(t, buyer).Equal(testutil.Money("20")))
}

func TestClosedOrderRejectsStatusChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusPending)

	_, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: "changed my mind", Actor: admin})
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	txn := h.transaction(t, order.ID)
	assert.Nil(t, txn.Payment)
	assert.Nil(t, txn.Refund)
	assert.Equal(t, enums.LedgerStateCancel, txn.State)
	assert.True(t, h.balance(t, buyer).IsZero())

	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancel, stored.Status)

	res, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "cancel", Actor: admin})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestRefundedOrderCannotBeCompletedAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusDelivering)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	revenue, err := ledger.NewRevenueService(h.db, decimal.RequireFromString("0.03"))
	require.NoError(t, err)
	platform, err := revenue.Platform(ctx, ledger.Period{})
	require.NoError(t, err)
	assert.Zero(t, platform.OrderCount)
	assert.True(t, platform.OrderFees.IsZero())
}

func TestCompletedOrderOnlyMovesToRefundStatuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusDelivering)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "complete", Actor: admin})
	require.NoError(t, err)

	for _, status := range []string{"pending", "processing", "delivering", "cancel"} {
		_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: status, Actor: admin})
		require.Error(t, err, status)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), status)
	}

	res, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "return", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Refunded)
}

func TestReturnWithoutPaymentVoidsTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusDelivering)

	res, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "return", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Refunded)

	txn := h.transaction(t, order.ID)
	assert.Equal(t, enums.LedgerStateCancel, txn.State)
	assert.Nil(t, txn.Refund)
	assert.True(t, h.balance(t, buyer).IsZero())
}

func TestFailWithoutPaymentOnlyWritesStatus(t *testing.T) {
	h := newHarness(t)
	order, _ := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusDelivering)

	res, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.OrderStatusFail, res.Order.Status)
	assert.Equal(t, enums.LedgerStatePending, h.transaction(t, order.ID).State)
}

func TestUpdateStatusWritesThroughIntermediateStatuses(t *testing.T) {
	h := newHarness(t)
	order, _ := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusPending)

	res, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: "processing", Actor: admin})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)

	var events int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestUpdateStatusValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusPending)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "shipped"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: uuid.New(), Status: "complete"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateStatusRejectedWhileReported(t *testing.T) {
	h := newHarness(t)
	order, txn := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusComplete)
	require.NoError(t, h.db.Model(&txn).Update("state", enums.LedgerStateReport).Error)

	_, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: "fail", Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelPendingOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusPending)
	productID := order.Details[0].ProductID
	before := h.stock(t, productID)

	res, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: "changed my mind", Actor: Actor{UserID: buyer, Role: enums.UserRoleBuyer}})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Refunded)
	assert.Equal(t, enums.OrderStatusCancel, res.Order.Status)
	require.NotNil(t, res.Order.Note)
	assert.Equal(t, "changed my mind", *res.Order.Note)

	assert.Equal(t, before+1, h.stock(t, productID))
	assert.Equal(t, enums.LedgerStateCancel, h.transaction(t, order.ID).State)

	res, err = h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: admin})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, before+1, h.stock(t, productID))
}

func TestCancelRefundsOnlinePayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusPending)

	paid, err := h.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, GatewayRef: "gw-77", Actor: admin})
	require.NoError(t, err)
	assert.True(t, paid.Changed)

	again, err := h.svc.RecordPayment(ctx, RecordPaymentInput{OrderID: order.ID, GatewayRef: "gw-77", Actor: admin})
	require.NoError(t, err)
	assert.False(t, again.Changed)

	res, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: Actor{UserID: buyer}})
	require.NoError(t, err)
	assert.True(t, res.Refunded)

	txn := h.transaction(t, order.ID)
	require.NotNil(t, txn.Refund)
	assert.Equal(t, "order cancelled", txn.Refund.Description)
	assert.True(t, h.balance(t, buyer).Equal(testutil.Money("20")))
}

func TestCancelGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusDelivering)

	_, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: Actor{UserID: buyer}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	pending, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusPending)
	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: pending.ID, Actor: Actor{UserID: uuid.New()}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: pending.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRecordPaymentRejectsClosedOrders(t *testing.T) {
	h := newHarness(t)
	order, _ := testutil.SeedOrder(t, h.db, uuid.New(), "20.00", enums.OrderStatusCancel)

	_, err := h.svc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID, GatewayRef: "gw-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.RecordPayment(context.Background(), RecordPaymentInput{OrderID: order.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetAndListByBuyer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyer := uuid.New()
	first, _ := testutil.SeedOrder(t, h.db, buyer, "20.00", enums.OrderStatusPending)
	testutil.SeedOrder(t, h.db, buyer, "30.00", enums.OrderStatusPending)
	testutil.SeedOrder(t, h.db, uuid.New(), "40.00", enums.OrderStatusPending)

	got, err := h.svc.Get(ctx, first.ID, Actor{UserID: buyer})
	require.NoError(t, err)
	assert.Len(t, got.Details, 1)

	_, err = h.svc.Get(ctx, first.ID, Actor{UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var shop models.Shop
	require.NoError(t, h.db.First(&shop, "id = ?", first.ShopID).Error)
	_, err = h.svc.Get(ctx, first.ID, Actor{UserID: shop.OwnerID, Role: enums.UserRoleShop})
	require.NoError(t, err)

	page, err := h.svc.ListByBuyer(ctx, buyer, pagination.Params{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.NotEmpty(t, page.NextCursor)

	page, err = h.svc.ListByBuyer(ctx, buyer, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Empty(t, page.NextCursor)

	_, err = h.svc.ListByBuyer(ctx, buyer, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
