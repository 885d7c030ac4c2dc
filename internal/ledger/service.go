package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/metrics"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/types"
)

// WalletCreditor adds money to a user's wallet inside tx.
type WalletCreditor interface {
	Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RefundInput describes a refund triggered by an order transition or a
// dispute.
type RefundInput struct {
	Amount      decimal.Decimal
	Description string
	Source      string
}

// Service holds the settlement primitives shared by every money-moving
// path. Methods taking tx run inside the caller's transaction on rows the
// caller already locked.
type Service interface {
	OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Transaction, error)
	LockForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Transaction, error)
	Settle(ctx context.Context, tx *gorm.DB, txn *models.Transaction, amount decimal.Decimal, method string, gatewayRef *string) (bool, error)
	Refund(ctx context.Context, tx *gorm.DB, txn *models.Transaction, in RefundInput) (bool, error)
	Void(ctx context.Context, tx *gorm.DB, txn *models.Transaction) (bool, error)
	Reprice(ctx context.Context, tx *gorm.DB, txn *models.Transaction, amount decimal.Decimal) error
	Discard(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	Flag(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	Unflag(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	RecordPackagePurchase(ctx context.Context, userID, packageID uuid.UUID, gatewayRef string) (*models.Transaction, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	creditor WalletCreditor
	outbox   outboxEmitter
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the ledger service.
func NewService(repo Repository, tx txRunner, creditor WalletCreditor, emitter outboxEmitter, m *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if creditor == nil {
		return nil, fmt.Errorf("wallet creditor required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     repo,
		tx:       tx,
		creditor: creditor,
		outbox:   emitter,
		metrics:  m,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// OpenForOrder appends the seed row of a new order: pending, unpaid.
func (s *service) OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Transaction, error) {
	docNo := order.ID
	txn := &models.Transaction{
		DocNo:      &docNo,
		SourceKind: enums.SourceKindOrder,
		State:      enums.LedgerStatePending,
		UserID:     order.BuyerID,
		Amount:     order.GrandTotal(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order transaction")
	}
	return txn, nil
}

// LockForOrder returns the order's ledger row locked for update, or nil when
// the order has none.
func (s *service) LockForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Transaction, error) {
	txn, err := s.repo.WithTx(tx).FindForOrder(ctx, orderID, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order transaction")
	}
	return txn, nil
}

// Settle writes the payment receipt once. It reports false when the row was
// already paid or has been closed.
func (s *service) Settle(ctx context.Context, tx *gorm.DB, txn *models.Transaction, amount decimal.Decimal, method string, gatewayRef *string) (bool, error) {
	if txn == nil || txn.Payment != nil || txn.State == enums.LedgerStateCancel {
		return false, nil
	}
	txn.Payment = types.NewPaymentReceipt(amount, method, s.now())
	txn.State = enums.LedgerStateSuccess
	if gatewayRef != nil {
		txn.GatewayRef = gatewayRef
	}
	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save payment receipt")
	}
	return true, nil
}

// Refund writes the refund receipt and credits the payer's wallet. A row
// that was never paid or is already refunded is left untouched, which makes
// every refund path safe to call more than once.
func (s *service) Refund(ctx context.Context, tx *gorm.DB, txn *models.Transaction, in RefundInput) (bool, error) {
	if txn == nil || txn.Refund != nil || txn.Payment == nil {
		return false, nil
	}
	if in.Amount.IsNegative() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}

	txn.Refund = types.NewRefundReceipt(in.Amount, in.Description, s.now())
	txn.State = enums.LedgerStateCancel
	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save refund receipt")
	}
	if err := s.creditor.Credit(ctx, tx, txn.UserID, in.Amount); err != nil {
		return false, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "credit wallet")
	}

	aggregateID := txn.ID
	if txn.DocNo != nil {
		aggregateID = *txn.DocNo
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Data: map[string]any{
			"transaction_id": txn.ID,
			"user_id":        txn.UserID,
			"amount":         in.Amount.String(),
			"source":         in.Source,
		},
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit refund event")
	}

	s.metrics.Refund(in.Source)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"amount":         in.Amount.String(),
		"source":         in.Source,
	}), "refund applied")
	return true, nil
}

// Void closes an unpaid row without moving money.
func (s *service) Void(ctx context.Context, tx *gorm.DB, txn *models.Transaction) (bool, error) {
	if txn == nil || txn.State == enums.LedgerStateCancel {
		return false, nil
	}
	txn.State = enums.LedgerStateCancel
	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "void transaction")
	}
	return true, nil
}

// Reprice updates the amount of an unpaid row after its order was edited.
func (s *service) Reprice(ctx context.Context, tx *gorm.DB, txn *models.Transaction, amount decimal.Decimal) error {
	if txn == nil {
		return nil
	}
	if txn.Payment != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid transaction cannot be repriced")
	}
	txn.Amount = amount
	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reprice transaction")
	}
	return nil
}

// Discard deletes an unpaid row together with the order it belongs to.
func (s *service) Discard(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	if txn == nil {
		return nil
	}
	if txn.Payment != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid transaction cannot be discarded")
	}
	if err := s.repo.WithTx(tx).Delete(ctx, txn.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete transaction")
	}
	return nil
}

// Flag freezes the row while a dispute is open.
func (s *service) Flag(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	return s.setState(ctx, tx, txn, enums.LedgerStateReport)
}

// Unflag returns a disputed row to pending.
func (s *service) Unflag(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	return s.setState(ctx, tx, txn, enums.LedgerStatePending)
}

func (s *service) setState(ctx context.Context, tx *gorm.DB, txn *models.Transaction, state enums.LedgerState) error {
	if txn == nil || txn.State == state {
		return nil
	}
	txn.State = state
	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update transaction state")
	}
	return nil
}

// RecordPackagePurchase appends a settled package purchase reported by the
// payment gateway.
func (s *service) RecordPackagePurchase(ctx context.Context, userID, packageID uuid.UUID, gatewayRef string) (*models.Transaction, error) {
	if userID == uuid.Nil || packageID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and package id are required")
	}
	if gatewayRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	var created *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pkg, err := repo.FindPackage(ctx, packageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load package")
		}

		docNo := pkg.ID
		ref := gatewayRef
		txn := &models.Transaction{
			DocNo:      &docNo,
			SourceKind: enums.SourceKindPackage,
			State:      enums.LedgerStateSuccess,
			GatewayRef: &ref,
			UserID:     userID,
			Amount:     pkg.Price,
			Payment:    types.NewPaymentReceipt(pkg.Price, "GATEWAY", s.now()),
		}
		if err := repo.Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create package transaction")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPackagePurchased,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data:          map[string]any{"package_id": pkg.ID, "user_id": userID, "amount": pkg.Price.String()},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit package event")
		}
		created = txn
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "record package purchase")
	}
	return created, nil
}
