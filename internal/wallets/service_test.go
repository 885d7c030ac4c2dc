package wallets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/testutil"
	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := testutil.OpenDB(t)
	svc, err := NewService(
		NewRepository(conn),
		ledger.NewRepository(conn),
		dbpkg.Wrap(conn),
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
	)
	require.NoError(t, err)
	return svc, conn
}

func TestCreditCreatesWalletAndAccumulates(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, svc.Credit(ctx, conn, user, testutil.Money("20.00")))
	require.NoError(t, svc.Credit(ctx, conn, user, testutil.Money("5.50")))

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(testutil.Money("25.50")), bal.Amount.String())

	var count int64
	require.NoError(t, conn.Model(&models.Wallet{}).Where("user_id = ?", user).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBalanceOfUnknownUserIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	bal, err := svc.Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, bal.Amount.IsZero())
	assert.True(t, bal.Available.IsZero())
}

func TestDepositCreditsWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	txn, err := svc.Deposit(ctx, user, testutil.Money("100"), "gw-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SourceKindDeposit, txn.SourceKind)
	assert.Equal(t, enums.LedgerStateSuccess, txn.State)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(testutil.Money("100")))

	_, err = svc.Deposit(ctx, user, testutil.Money("-1"), "gw-2")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestWithdrawalLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Deposit(ctx, user, testutil.Money("100"), "gw-1")
	require.NoError(t, err)

	txn, err := svc.RequestWithdrawal(ctx, user, testutil.Money("60"))
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerStatePending, txn.State)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(testutil.Money("100")))
	assert.True(t, bal.Available.Equal(testutil.Money("40")))

	_, err = svc.RequestWithdrawal(ctx, user, testutil.Money("50"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	res, err := svc.ApproveWithdrawal(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.LedgerStateSuccess, res.Transaction.State)
	require.NotNil(t, res.Transaction.Payment)

	res, err = svc.ApproveWithdrawal(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	bal, err = svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(testutil.Money("40")), bal.Amount.String())
	assert.True(t, bal.Available.Equal(testutil.Money("40")))
}

type lockRecordingRepo struct {
	Repository
	locked *[]uuid.UUID
}

func (r lockRecordingRepo) WithTx(tx *gorm.DB) Repository {
	return lockRecordingRepo{Repository: r.Repository.WithTx(tx), locked: r.locked}
}

func (r lockRecordingRepo) LockByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	*r.locked = append(*r.locked, userID)
	return r.Repository.LockByUser(ctx, userID)
}

func TestRequestWithdrawalLocksWallet(t *testing.T) {
	conn := testutil.OpenDB(t)
	var locked []uuid.UUID
	svc, err := NewService(
		lockRecordingRepo{Repository: NewRepository(conn), locked: &locked},
		ledger.NewRepository(conn),
		dbpkg.Wrap(conn),
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
	)
	require.NoError(t, err)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, svc.Credit(ctx, conn, user, testutil.Money("30")))

	_, err = svc.RequestWithdrawal(ctx, user, testutil.Money("20"))
	require.NoError(t, err)
	_, err = svc.RequestWithdrawal(ctx, user, testutil.Money("20"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, []uuid.UUID{user, user}, locked)

	var pending int64
	require.NoError(t, conn.Model(&models.Transaction{}).
		Where("user_id = ? AND source_kind = ? AND state = ?", user, enums.SourceKindWithdrawal, enums.LedgerStatePending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestRequestWithdrawalWithoutWallet(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RequestWithdrawal(context.Background(), uuid.New(), testutil.Money("1"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRejectWithdrawalKeepsBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Deposit(ctx, user, testutil.Money("30"), "gw-1")
	require.NoError(t, err)

	txn, err := svc.RequestWithdrawal(ctx, user, testutil.Money("30"))
	require.NoError(t, err)

	res, err := svc.RejectWithdrawal(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, enums.LedgerStateCancel, res.Transaction.State)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(testutil.Money("30")))
}

func TestResolveWithdrawalRejectsOtherKinds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	txn, err := svc.Deposit(ctx, uuid.New(), testutil.Money("30"), "gw-1")
	require.NoError(t, err)

	_, err = svc.ApproveWithdrawal(ctx, txn.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.ApproveWithdrawal(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDebitRefusesOverdraft(t *testing.T) {
	conn := testutil.OpenDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, repo.Credit(ctx, user, testutil.Money("10")))

	err := repo.Debit(ctx, user, testutil.Money("10.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, repo.Debit(ctx, user, testutil.Money("10")))

	wallet, err := repo.FindByUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, wallet.Amount.IsZero())
}
