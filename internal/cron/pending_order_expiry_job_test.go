package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/internal/shops"
	"github.com/koipond/koipond-backend/internal/testutil"
	"github.com/koipond/koipond-backend/internal/wallets"
	dbpkg "github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/outbox"
)

type noQuote struct{}

func (noQuote) Quote(context.Context, shipping.QuoteRequest) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

var systemActor = uuid.MustParse("00000000-0000-0000-0000-00000000a11c")

func newOrderService(t *testing.T, conn *gorm.DB) (orders.Service, orders.Repository) {
	t.Helper()
	runner := dbpkg.Wrap(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), ledger.NewRepository(conn), runner, events, nil)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), runner, walletSvc, events, nil, nil)
	require.NoError(t, err)
	repo := orders.NewRepository(conn)
	svc, err := orders.NewService(repo, runner, events, ledgerSvc, products.NewRepository(conn), shops.NewRepository(conn), noQuote{}, nil)
	require.NoError(t, err)
	return svc, repo
}

func ageOrder(t *testing.T, conn *gorm.DB, id uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", id).
		UpdateColumn("created_at", time.Now().UTC().Add(-age)).Error)
}

func TestPendingOrderExpiryCancelsStaleOrders(t *testing.T) {
	conn := testutil.OpenDB(t)
	svc, repo := newOrderService(t, conn)

	stale, staleTxn := testutil.SeedOrder(t, conn, uuid.New(), "20.00", enums.OrderStatusPending)
	ageOrder(t, conn, stale.ID, 11*24*time.Hour)
	fresh, _ := testutil.SeedOrder(t, conn, uuid.New(), "15.00", enums.OrderStatusPending)
	ageOrder(t, conn, fresh.ID, 24*time.Hour)
	processing, _ := testutil.SeedOrder(t, conn, uuid.New(), "30.00", enums.OrderStatusProcessing)
	ageOrder(t, conn, processing.ID, 30*24*time.Hour)

	job, err := NewPendingOrderExpiryJob(PendingOrderExpiryJobParams{
		Logger:    logger.Nop(),
		Orders:    repo,
		Canceller: svc,
		SystemID:  systemActor,
	})
	require.NoError(t, err)

	expired, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	statusOf := func(id uuid.UUID) enums.OrderStatus {
		var o models.Order
		require.NoError(t, conn.First(&o, "id = ?", id).Error)
		return o.Status
	}
	assert.Equal(t, enums.OrderStatusCancel, statusOf(stale.ID))
	assert.Equal(t, enums.OrderStatusPending, statusOf(fresh.ID))
	assert.Equal(t, enums.OrderStatusProcessing, statusOf(processing.ID))

	var txn models.Transaction
	require.NoError(t, conn.First(&txn, "id = ?", staleTxn.ID).Error)
	assert.Equal(t, enums.LedgerStateCancel, txn.State)

	expired, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
}

type stubReader struct {
	ids []uuid.UUID
}

func (s stubReader) ListPendingBefore(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return s.ids, nil
}

type scriptedCanceller struct {
	results map[uuid.UUID]error
	actors  []orders.Actor
}

func (s *scriptedCanceller) Cancel(_ context.Context, input orders.CancelInput) (*orders.TransitionResult, error) {
	s.actors = append(s.actors, input.Actor)
	if err := s.results[input.OrderID]; err != nil {
		return nil, err
	}
	return &orders.TransitionResult{Changed: true}, nil
}

func TestPendingOrderExpirySkipsConflictsAndCollectsErrors(t *testing.T) {
	ok, conflict, broken := uuid.New(), uuid.New(), uuid.New()
	canceller := &scriptedCanceller{results: map[uuid.UUID]error{
		conflict: pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled"),
		broken:   errors.New("db down"),
	}}
	job, err := NewPendingOrderExpiryJob(PendingOrderExpiryJobParams{
		Logger:    logger.Nop(),
		Orders:    stubReader{ids: []uuid.UUID{conflict, broken, ok}},
		Canceller: canceller,
		SystemID:  systemActor,
	})
	require.NoError(t, err)

	expired, err := job.Run(context.Background())
	assert.Equal(t, int64(1), expired)
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.String())
	require.Len(t, canceller.actors, 3)
	for _, actor := range canceller.actors {
		assert.Equal(t, systemActor, actor.UserID)
		assert.True(t, actor.IsAdmin())
	}
}

func TestNewPendingOrderExpiryJobValidation(t *testing.T) {
	_, err := NewPendingOrderExpiryJob(PendingOrderExpiryJobParams{Logger: logger.Nop(), Orders: stubReader{}, Canceller: &scriptedCanceller{}})
	assert.Error(t, err)
}
