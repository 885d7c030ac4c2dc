package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/testutil"
	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/types"
)

type credit struct {
	userID uuid.UUID
	amount decimal.Decimal
}

type fakeCreditor struct {
	credits []credit
	err     error
}

func (f *fakeCreditor) Credit(_ context.Context, _ *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if f.err != nil {
		return f.err
	}
	f.credits = append(f.credits, credit{userID: userID, amount: amount})
	return nil
}

func newTestService(t *testing.T) (Service, *gorm.DB, *fakeCreditor) {
	t.Helper()
	conn := testutil.OpenDB(t)
	creditor := &fakeCreditor{}
	svc, err := NewService(
		NewRepository(conn),
		dbpkg.Wrap(conn),
		creditor,
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
		nil,
	)
	require.NoError(t, err)
	return svc, conn, creditor
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := testutil.OpenDB(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	_, err := NewService(nil, dbpkg.Wrap(conn), &fakeCreditor{}, emitter, nil, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), nil, &fakeCreditor{}, emitter, nil, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), dbpkg.Wrap(conn), nil, emitter, nil, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), dbpkg.Wrap(conn), &fakeCreditor{}, nil, nil, nil)
	require.Error(t, err)
}

func TestSettleWritesPaymentOnce(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusDelivering)

	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	require.NotNil(t, txn)

	changed, err := svc.Settle(ctx, conn, txn, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Settle(ctx, conn, txn, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Payment)
	assert.Equal(t, types.MethodCOD, stored.Payment.Method)
	assert.True(t, stored.Payment.Amount.Equal(testutil.Money("20")))
	assert.Equal(t, enums.LedgerStateSuccess, stored.State)
}

func TestSettleSkipsClosedTransaction(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusCancel)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	_, err = svc.Void(ctx, conn, txn)
	require.NoError(t, err)

	changed, err := svc.Settle(ctx, conn, txn, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Payment)
	assert.Equal(t, enums.LedgerStateCancel, stored.State)
}

func TestRefundIsWriteOnce(t *testing.T) {
	svc, conn, creditor := newTestService(t)
	ctx := context.Background()
	buyer := uuid.New()
	order, _ := testutil.SeedOrder(t, conn, buyer, "20.00", enums.OrderStatusDelivering)

	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	_, err = svc.Settle(ctx, conn, txn, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)

	in := RefundInput{Amount: order.Total, Description: "order failed", Source: "order_status"}
	refunded, err := svc.Refund(ctx, conn, txn, in)
	require.NoError(t, err)
	assert.True(t, refunded)

	refunded, err = svc.Refund(ctx, conn, txn, in)
	require.NoError(t, err)
	assert.False(t, refunded)

	require.Len(t, creditor.credits, 1)
	assert.Equal(t, buyer, creditor.credits[0].userID)
	assert.True(t, creditor.credits[0].amount.Equal(testutil.Money("20")))

	stored, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Refund)
	assert.Equal(t, "order failed", stored.Refund.Description)
	assert.Equal(t, enums.LedgerStateCancel, stored.State)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderRefunded).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRefundSkipsUnpaidTransaction(t *testing.T) {
	svc, conn, creditor := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusPending)

	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, conn, txn, RefundInput{Amount: order.Total, Source: "cancel"})
	require.NoError(t, err)
	assert.False(t, refunded)
	assert.Empty(t, creditor.credits)
	assert.Nil(t, txn.Refund)
}

func TestRefundFailsWhenWalletCreditFails(t *testing.T) {
	svc, conn, creditor := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusDelivering)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	_, err = svc.Settle(ctx, conn, txn, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)

	creditor.err = assert.AnError
	_, err = svc.Refund(ctx, conn, txn, RefundInput{Amount: order.Total, Source: "report"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))
}

func TestLockForOrderReturnsNilWithoutTransaction(t *testing.T) {
	svc, conn, _ := newTestService(t)
	txn, err := svc.LockForOrder(context.Background(), conn, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, txn)
}

func TestFlagAndUnflag(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusComplete)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Flag(ctx, conn, txn))
	stored, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerStateReport, stored.State)

	require.NoError(t, svc.Unflag(ctx, conn, stored))
	stored, err = svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerStatePending, stored.State)
}

func TestVoidClosesUnpaidTransaction(t *testing.T) {
	svc, conn, creditor := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusDelivering)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)

	changed, err := svc.Void(ctx, conn, txn)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = svc.Void(ctx, conn, txn)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, creditor.credits)
}

func TestRecordPackagePurchase(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	pkg := models.Package{Name: "gold", Price: testutil.Money("150.00"), DurationDays: 30}
	require.NoError(t, conn.Create(&pkg).Error)
	user := uuid.New()

	txn, err := svc.RecordPackagePurchase(ctx, user, pkg.ID, "gw-123")
	require.NoError(t, err)
	assert.Equal(t, enums.SourceKindPackage, txn.SourceKind)
	assert.Equal(t, enums.LedgerStateSuccess, txn.State)
	assert.True(t, txn.Amount.Equal(testutil.Money("150")))
	require.NotNil(t, txn.DocNo)
	assert.Equal(t, pkg.ID, *txn.DocNo)

	_, err = svc.RecordPackagePurchase(ctx, user, uuid.New(), "gw-124")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.RecordPackagePurchase(ctx, user, pkg.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRepriceAndDiscardRefusePaidTransactions(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusPending)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Reprice(ctx, conn, txn, testutil.Money("33")))
	stored, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(testutil.Money("33")))

	_, err = svc.Settle(ctx, conn, stored, order.Total, types.MethodCOD, nil)
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCode(svc.Reprice(ctx, conn, stored, testutil.Money("1")), pkgerrors.CodeStateConflict))
	assert.True(t, pkgerrors.IsCode(svc.Discard(ctx, conn, stored), pkgerrors.CodeStateConflict))
}

func TestDiscardDeletesUnpaidTransaction(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	order, _ := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusPending)
	txn, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Discard(ctx, conn, txn))
	gone, err := svc.LockForOrder(ctx, conn, order.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
