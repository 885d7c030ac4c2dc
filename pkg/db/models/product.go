package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a shop listing. StockQuantity is decremented by checkout.
type Product struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ShopID        uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;index" json:"shop_id"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(18,2);not null" json:"price"`
	WeightGrams   int             `gorm:"column:weight_grams;not null" json:"weight_grams"`
	LengthCm      int             `gorm:"column:length_cm;not null;default:0" json:"length_cm"`
	WidthCm       int             `gorm:"column:width_cm;not null;default:0" json:"width_cm"`
	HeightCm      int             `gorm:"column:height_cm;not null;default:0" json:"height_cm"`
	StockQuantity int             `gorm:"column:stock_quantity;not null" json:"stock_quantity"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
