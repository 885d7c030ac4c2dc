package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/api/responses"
	"github.com/koipond/koipond-backend/api/validators"
	internalorders "github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/pagination"
	"github.com/koipond/koipond-backend/pkg/types"
)

type ordersService interface {
	Get(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*internalorders.TransitionResult, error)
	Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.TransitionResult, error)
	RecordPayment(ctx context.Context, input internalorders.RecordPaymentInput) (*internalorders.TransitionResult, error)
	Update(ctx context.Context, input internalorders.UpdateOrderInput) (*internalorders.UpdateResult, error)
}

func BuyerOrders(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListByBuyer(r.Context(), id.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// OrderDetail returns one order with its lines. Buyers only see their own.
func OrderDetail(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID, actorFrom(id))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type updateOrderRequest struct {
	Items      []internalorders.LineInput `json:"items" validate:"dive"`
	Address    types.ShippingAddress      `json:"address"`
	ShipType   string                     `json:"ship_type" validate:"required,ship_type"`
	BuyerName  string                     `json:"buyer_name" validate:"required,max=128"`
	BuyerPhone string                     `json:"buyer_phone" validate:"required,max=32"`
	Note       *string                    `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// UpdateOrder replaces the lines of a pending order. Sending no items
// deletes the order.
func UpdateOrder(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Update(r.Context(), internalorders.UpdateOrderInput{
			OrderID:    orderID,
			Actor:      actorFrom(id),
			Items:      req.Items,
			Address:    req.Address,
			ShipType:   req.ShipType,
			BuyerName:  validators.SanitizeString(req.BuyerName, 128),
			BuyerPhone: validators.SanitizeString(req.BuyerPhone, 32),
			Note:       req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func CancelOrder(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: orderID,
			Reason:  validators.SanitizeString(req.Reason, 500),
			Actor:   actorFrom(id),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}

func AdminUpdateOrderStatus(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req orderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Status:  req.Status,
			Actor:   actorFrom(id),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type orderPaymentRequest struct {
	GatewayRef string `json:"gateway_ref" validate:"required,max=128"`
	Method     string `json:"method" validate:"max=32"`
}

func AdminRecordOrderPayment(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req orderPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RecordPayment(r.Context(), internalorders.RecordPaymentInput{
			OrderID:    orderID,
			GatewayRef: req.GatewayRef,
			Method:     req.Method,
			Actor:      actorFrom(id),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
