package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptSchemaV1 is the first explicit receipt layout. Rows written before
// versioning carry no schema field and decode as v1.
const (
	ReceiptSchemaV1      = 1
	CurrentReceiptSchema = ReceiptSchemaV1
)

// MethodCOD marks a payment collected on delivery.
const MethodCOD = "COD"

// Receipt is the write-once payment or refund marker stored on a transaction.
type Receipt struct {
	Schema      int             `json:"schema"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Method      string          `json:"method,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NewPaymentReceipt builds a payment marker.
func NewPaymentReceipt(amount decimal.Decimal, method string, at time.Time) *Receipt {
	return &Receipt{
		Schema: CurrentReceiptSchema,
		Amount: amount,
		Date:   at.UTC(),
		Method: method,
	}
}

// NewRefundReceipt builds a refund marker.
func NewRefundReceipt(amount decimal.Decimal, description string, at time.Time) *Receipt {
	return &Receipt{
		Schema:      CurrentReceiptSchema,
		Amount:      amount,
		Date:        at.UTC(),
		Description: description,
	}
}

func (r *Receipt) UnmarshalJSON(data []byte) error {
	type plain Receipt
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("receipt: %w", err)
	}
	if decoded.Schema == 0 {
		decoded.Schema = ReceiptSchemaV1
	}
	if decoded.Schema > CurrentReceiptSchema {
		return fmt.Errorf("receipt: unsupported schema version %d", decoded.Schema)
	}
	*r = Receipt(decoded)
	return nil
}
