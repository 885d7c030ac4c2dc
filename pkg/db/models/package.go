package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Package is a listing subscription plan shops can buy.
type Package struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name         string          `gorm:"column:name;not null" json:"name"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(18,2);not null" json:"price"`
	DurationDays int             `gorm:"column:duration_days;not null" json:"duration_days"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (p *Package) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
