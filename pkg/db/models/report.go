package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/pkg/enums"
)

// Report is a buyer dispute filed against one order.
type Report struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:reports_one_pending_per_order,where:status = 'pending'" json:"order_id"`
	ReporterID uuid.UUID          `gorm:"column:reporter_id;type:uuid;not null" json:"reporter_id"`
	Reason     string             `gorm:"column:reason;not null" json:"reason"`
	ImageURL   *string            `gorm:"column:image_url" json:"image_url,omitempty"`
	Status     enums.ReportStatus `gorm:"column:status;type:text;not null" json:"status"`
	ResolvedAt *time.Time         `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (r *Report) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
