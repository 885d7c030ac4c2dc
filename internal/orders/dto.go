package orders

import (
	"github.com/google/uuid"

	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/types"
)

// Actor identifies the caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor may act on any order.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// UpdateStatusInput drives an admin status change.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  string
	Actor   Actor
}

// CancelInput carries a cancellation request.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

// RecordPaymentInput records an online payment reported by the gateway.
type RecordPaymentInput struct {
	OrderID    uuid.UUID
	GatewayRef string
	Method     string
	Actor      Actor
}

// LineInput is one desired product line of an edited order.
type LineInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=1"`
}

// UpdateOrderInput replaces the lines and delivery details of a pending
// order. An empty Items list deletes the order.
type UpdateOrderInput struct {
	OrderID    uuid.UUID
	Actor      Actor
	Items      []LineInput
	Address    types.ShippingAddress
	ShipType   string
	BuyerName  string
	BuyerPhone string
	Note       *string
}

// TransitionResult reports what a status change did. Changed is false for a
// repeated request that found nothing to do.
type TransitionResult struct {
	Order       *models.Order       `json:"order"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
	Changed     bool                `json:"changed"`
	Refunded    bool                `json:"refunded"`
}

// UpdateResult reports an order edit. Order is nil when the edit emptied
// and deleted it.
type UpdateResult struct {
	Order   *models.Order `json:"order,omitempty"`
	Deleted bool          `json:"deleted"`
}

// StatusChangedEvent is emitted on every effective status change.
type StatusChangedEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	ShopID   uuid.UUID         `json:"shop_id"`
	BuyerID  uuid.UUID         `json:"buyer_id"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
	Refunded bool              `json:"refunded"`
}
