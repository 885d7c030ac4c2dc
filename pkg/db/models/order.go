package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/types"
)

// Order is one shop's share of a buyer checkout.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShopID           uuid.UUID             `gorm:"column:shop_id;type:uuid;not null;index" json:"shop_id"`
	BuyerID          uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	CarrierOrderCode *string               `gorm:"column:carrier_order_code" json:"carrier_order_code,omitempty"`
	Status           enums.OrderStatus     `gorm:"column:status;type:text;not null" json:"status"`
	ShipType         enums.ShipType        `gorm:"column:ship_type;type:text;not null" json:"ship_type"`
	ShippingFee      decimal.Decimal       `gorm:"column:shipping_fee;type:numeric(18,2);not null" json:"shipping_fee"`
	Total            decimal.Decimal       `gorm:"column:total;type:numeric(18,2);not null" json:"total"`
	Address          types.ShippingAddress `gorm:"column:address;type:jsonb" json:"address"`
	BuyerName        string                `gorm:"column:buyer_name" json:"buyer_name"`
	BuyerPhone       string                `gorm:"column:buyer_phone" json:"buyer_phone"`
	Note             *string               `gorm:"column:note" json:"note,omitempty"`
	Details          []OrderDetail         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"details,omitempty"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// GrandTotal is the amount the buyer pays: goods plus shipping.
func (o Order) GrandTotal() decimal.Decimal {
	return o.Total.Add(o.ShippingFee)
}
