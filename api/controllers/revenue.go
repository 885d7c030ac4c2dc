package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/api/responses"
	"github.com/koipond/koipond-backend/api/validators"
	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
)

type revenueService interface {
	Platform(ctx context.Context, period ledger.Period) (*ledger.PlatformRevenue, error)
	ForShop(ctx context.Context, shopID uuid.UUID, period ledger.Period) (*ledger.ShopRevenue, error)
	ByShop(ctx context.Context, period ledger.Period) ([]ledger.ShopRevenue, error)
}

type packagePurchaser interface {
	RecordPackagePurchase(ctx context.Context, userID, packageID uuid.UUID, gatewayRef string) (*models.Transaction, error)
}

func parsePeriod(r *http.Request) (ledger.Period, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return ledger.Period{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return ledger.Period{}, err
	}
	var period ledger.Period
	if from != nil {
		period.From = *from
	}
	if to != nil {
		period.To = *to
	}
	return period, nil
}

// ShopRevenue is visible to the shop's own account and to admins.
func ShopRevenue(svc revenueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shopID, err := validators.URLUUID(r, "shopId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if id.Role != enums.UserRoleAdmin && (id.ShopID == nil || *id.ShopID != shopID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "revenue belongs to another shop"))
			return
		}
		period, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		revenue, err := svc.ForShop(r.Context(), shopID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, revenue)
	}
}

func AdminPlatformRevenue(svc revenueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		revenue, err := svc.Platform(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, revenue)
	}
}

func AdminRevenueByShop(svc revenueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period, err := parsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ByShop(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

type packagePurchaseRequest struct {
	UserID     uuid.UUID `json:"user_id" validate:"required"`
	PackageID  uuid.UUID `json:"package_id" validate:"required"`
	GatewayRef string    `json:"gateway_ref" validate:"required,max=128"`
}

// AdminRecordPackagePurchase books a settled subscription package sale.
func AdminRecordPackagePurchase(svc packagePurchaser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req packagePurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.RecordPackagePurchase(r.Context(), req.UserID, req.PackageID, req.GatewayRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}
