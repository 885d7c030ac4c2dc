package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/api/responses"
	"github.com/koipond/koipond-backend/api/validators"
	"github.com/koipond/koipond-backend/internal/checkout"
	internalorders "github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/pkg/db/models"
	pkgerrors "github.com/koipond/koipond-backend/pkg/errors"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/types"
)

type checkoutService interface {
	CreateOrder(ctx context.Context, input checkout.CreateOrderInput) ([]checkout.VendorResult, error)
}

type checkoutRequest struct {
	BuyerName     string                     `json:"buyer_name" validate:"required,max=128"`
	BuyerPhone    string                     `json:"buyer_phone" validate:"required,max=32"`
	Address       types.ShippingAddress      `json:"address"`
	ShipType      string                     `json:"ship_type" validate:"required,ship_type"`
	InitialStatus string                     `json:"initial_status,omitempty"`
	Note          *string                    `json:"note,omitempty" validate:"omitempty,max=1000"`
	Items         []internalorders.LineInput `json:"items" validate:"required,min=1,dive"`
}

type vendorResultResponse struct {
	ShopID uuid.UUID       `json:"shop_id"`
	Order  *models.Order   `json:"order,omitempty"`
	Error  *types.APIError `json:"error,omitempty"`
}

type checkoutResponse struct {
	Results []vendorResultResponse `json:"results"`
	Placed  int                    `json:"placed"`
	Failed  int                    `json:"failed"`
}

// Checkout places one order per shop in the cart. Shops fail independently
// and every shop's outcome is returned: 201 when at least one order was
// placed, otherwise the first failure's status with the per-shop results in
// the error details.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.CreateOrder(r.Context(), checkout.CreateOrderInput{
			BuyerID:       id.UserID,
			BuyerName:     validators.SanitizeString(req.BuyerName, 128),
			BuyerPhone:    validators.SanitizeString(req.BuyerPhone, 32),
			Address:       req.Address,
			ShipType:      req.ShipType,
			InitialStatus: req.InitialStatus,
			Note:          req.Note,
			Items:         req.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := checkoutResponse{Results: make([]vendorResultResponse, 0, len(results))}
		var firstErr error
		retryable := false
		for _, result := range results {
			entry := vendorResultResponse{ShopID: result.ShopID, Order: result.Order}
			if result.Err != nil {
				apiErr := responses.PublicError(result.Err)
				entry.Error = &apiErr
				resp.Failed++
				retryable = retryable || apiErr.Retryable
				if firstErr == nil {
					firstErr = result.Err
				}
				if logg != nil {
					logg.Warn(logg.WithShopID(r.Context(), result.ShopID.String()), "checkout.vendor_failed")
				}
			} else {
				resp.Placed++
			}
			resp.Results = append(resp.Results, entry)
		}

		if resp.Placed == 0 && firstErr != nil {
			apiErr := responses.PublicError(firstErr)
			apiErr.Message = "no order could be placed"
			apiErr.Retryable = retryable
			apiErr.Details = resp
			responses.WriteAPIError(w, pkgerrors.MetadataFor(pkgerrors.Code(apiErr.Code)).HTTPStatus, apiErr)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
