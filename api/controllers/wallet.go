package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koipond/koipond-backend/api/responses"
	"github.com/koipond/koipond-backend/api/validators"
	"github.com/koipond/koipond-backend/internal/wallets"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/logger"
)

type walletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (*wallets.Balance, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gatewayRef string) (*models.Transaction, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	ApproveWithdrawal(ctx context.Context, transactionID uuid.UUID) (*wallets.WithdrawalResult, error)
	RejectWithdrawal(ctx context.Context, transactionID uuid.UUID) (*wallets.WithdrawalResult, error)
}

func WalletBalance(svc walletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), id.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

type withdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_amount"`
}

// RequestWithdrawal books a pending withdrawal against the caller's wallet.
// The wallet is debited only when an admin approves it.
func RequestWithdrawal(svc walletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req withdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.RequestWithdrawal(r.Context(), id.UserID, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

func AdminApproveWithdrawal(svc walletService, logg *logger.Logger) http.HandlerFunc {
	return resolveWithdrawal(logg, svc.ApproveWithdrawal)
}

func AdminRejectWithdrawal(svc walletService, logg *logger.Logger) http.HandlerFunc {
	return resolveWithdrawal(logg, svc.RejectWithdrawal)
}

func resolveWithdrawal(logg *logger.Logger, resolve func(context.Context, uuid.UUID) (*wallets.WithdrawalResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txnID, err := validators.URLUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := resolve(r.Context(), txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type depositRequest struct {
	UserID     uuid.UUID       `json:"user_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"positive_amount"`
	GatewayRef string          `json:"gateway_ref" validate:"required,max=128"`
}

// AdminDeposit records a top-up confirmed by the payment gateway.
func AdminDeposit(svc walletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Deposit(r.Context(), req.UserID, req.Amount, req.GatewayRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}
