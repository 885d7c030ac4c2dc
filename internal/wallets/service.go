package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/types"
)

const payoutMethod = "BANK_TRANSFER"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Balance is a wallet summary. Available excludes pending withdrawals.
type Balance struct {
	UserID             uuid.UUID       `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	PendingWithdrawals decimal.Decimal `json:"pending_withdrawals"`
	Available          decimal.Decimal `json:"available"`
}

// WithdrawalResult reports an approval or rejection.
type WithdrawalResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Changed     bool                `json:"changed"`
}

// Service exposes wallet balances and the deposit and withdrawal flows.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error
	Balance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gatewayRef string) (*models.Transaction, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	ApproveWithdrawal(ctx context.Context, transactionID uuid.UUID) (*WithdrawalResult, error)
	RejectWithdrawal(ctx context.Context, transactionID uuid.UUID) (*WithdrawalResult, error)
}

type service struct {
	repo   Repository
	ledger ledger.Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the wallet service. The ledger repository records
// deposits and withdrawals alongside order transactions.
func NewService(repo Repository, ledgerRepo ledger.Repository, tx txRunner, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		ledger: ledgerRepo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Credit implements ledger.WalletCreditor.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !amount.IsPositive() {
		return nil
	}
	if err := s.repo.WithTx(tx).Credit(ctx, userID, amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "credit wallet")
	}
	return nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.balance(ctx, nil, userID)
}

func (s *service) balance(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Balance, error) {
	out := &Balance{UserID: userID, Amount: decimal.Zero, PendingWithdrawals: decimal.Zero}
	wallet, err := s.repo.WithTx(tx).FindByUser(ctx, userID)
	switch {
	case err == nil:
		out.Amount = wallet.Amount
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load wallet")
	}

	withdrawals, err := s.ledger.WithTx(tx).ListByUser(ctx, userID, enums.SourceKindWithdrawal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load withdrawals")
	}
	for _, w := range withdrawals {
		if w.State == enums.LedgerStatePending {
			out.PendingWithdrawals = out.PendingWithdrawals.Add(w.Amount)
		}
	}
	out.Available = out.Amount.Sub(out.PendingWithdrawals)
	return out, nil
}

// Deposit records a gateway top-up and credits the wallet.
func (s *service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gatewayRef string) (*models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if gatewayRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	var created *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ref := gatewayRef
		txn := &models.Transaction{
			SourceKind: enums.SourceKindDeposit,
			State:      enums.LedgerStateSuccess,
			GatewayRef: &ref,
			UserID:     userID,
			Amount:     amount,
			Payment:    types.NewPaymentReceipt(amount, "GATEWAY", s.now()),
		}
		if err := s.ledger.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create deposit transaction")
		}
		if err := s.Credit(ctx, tx, userID, amount); err != nil {
			return err
		}
		created = txn
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "deposit")
	}
	return created, nil
}

// RequestWithdrawal queues a payout for admin approval. The balance is only
// debited on approval.
func (s *service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var created *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// the wallet lock serializes requests so pending payouts never exceed the balance
		if _, err := s.repo.WithTx(tx).LockByUser(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient available balance").
					WithDetails(map[string]any{"available": decimal.Zero.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "lock wallet")
		}
		bal, err := s.balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if bal.Available.LessThan(amount) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient available balance").
				WithDetails(map[string]any{"available": bal.Available.String()})
		}
		txn := &models.Transaction{
			SourceKind: enums.SourceKindWithdrawal,
			State:      enums.LedgerStatePending,
			UserID:     userID,
			Amount:     amount,
		}
		if err := s.ledger.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create withdrawal transaction")
		}
		created = txn
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "request withdrawal")
	}
	return created, nil
}

// ApproveWithdrawal debits the wallet and marks the payout sent. Approving
// a settled withdrawal is a no-op.
func (s *service) ApproveWithdrawal(ctx context.Context, transactionID uuid.UUID) (*WithdrawalResult, error) {
	return s.resolveWithdrawal(ctx, transactionID, true)
}

// RejectWithdrawal cancels a pending payout without touching the balance.
func (s *service) RejectWithdrawal(ctx context.Context, transactionID uuid.UUID) (*WithdrawalResult, error) {
	return s.resolveWithdrawal(ctx, transactionID, false)
}

func (s *service) resolveWithdrawal(ctx context.Context, transactionID uuid.UUID, approve bool) (*WithdrawalResult, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	var result *WithdrawalResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		txn, err := repo.FindByID(ctx, transactionID, true)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load withdrawal")
		}
		if txn.SourceKind != enums.SourceKindWithdrawal {
			return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		result = &WithdrawalResult{Transaction: txn}
		if txn.State != enums.LedgerStatePending {
			return nil
		}

		if !approve {
			txn.State = enums.LedgerStateCancel
			if err := repo.Save(ctx, txn); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reject withdrawal")
			}
			result.Changed = true
			return nil
		}

		if err := s.repo.WithTx(tx).Debit(ctx, txn.UserID, txn.Amount); err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet balance no longer covers the withdrawal")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "debit wallet")
		}
		txn.State = enums.LedgerStateSuccess
		txn.Payment = types.NewPaymentReceipt(txn.Amount, payoutMethod, s.now())
		if err := repo.Save(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "approve withdrawal")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletWithdrawalApproved,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data:          map[string]any{"user_id": txn.UserID, "amount": txn.Amount.String()},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit withdrawal event")
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, pkgerrors.WrapUntyped(pkgerrors.CodePersistence, err, "resolve withdrawal")
	}
	if result.Changed {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": transactionID.String(),
			"approved":       approve,
		}), "withdrawal resolved")
	}
	return result, nil
}
