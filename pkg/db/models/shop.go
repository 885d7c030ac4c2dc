package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shop is a vendor. CarrierShopID is the shop's account at the carrier.
type Shop struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	CarrierShopID string    `gorm:"column:carrier_shop_id;not null" json:"carrier_shop_id"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (s *Shop) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
