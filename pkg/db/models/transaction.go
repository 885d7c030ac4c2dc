package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/types"
)

// Transaction is a ledger row. DocNo points at the order or package named by
// SourceKind; deposits and withdrawals carry no DocNo.
type Transaction struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DocNo      *uuid.UUID        `gorm:"column:doc_no;type:uuid;index" json:"doc_no,omitempty"`
	SourceKind enums.SourceKind  `gorm:"column:source_kind;type:text;not null;index" json:"source_kind"`
	State      enums.LedgerState `gorm:"column:state;type:text;not null" json:"state"`
	GatewayRef *string           `gorm:"column:gateway_ref" json:"gateway_ref,omitempty"`
	UserID     uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Amount     decimal.Decimal   `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Payment    *types.Receipt    `gorm:"column:payment;type:jsonb;serializer:json" json:"payment,omitempty"`
	Refund     *types.Receipt    `gorm:"column:refund;type:jsonb;serializer:json" json:"refund,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// IsPaid reports whether a payment receipt has been written.
func (t Transaction) IsPaid() bool {
	return t.Payment != nil
}

// IsRefunded reports whether a refund receipt has been written.
func (t Transaction) IsRefunded() bool {
	return t.Refund != nil
}
