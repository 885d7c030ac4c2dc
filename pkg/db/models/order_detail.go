package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderDetail is a single product line within an Order. Price and weight are
// snapshots taken when the line was written.
type OrderDetail struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity        int             `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(18,2);not null" json:"unit_price"`
	UnitWeightGrams int             `gorm:"column:unit_weight_grams;not null" json:"unit_weight_grams"`
}

func (d *OrderDetail) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// LineTotal returns unit price times quantity.
func (d OrderDetail) LineTotal() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}
