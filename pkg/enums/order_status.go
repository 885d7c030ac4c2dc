package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the fulfilment lifecycle of a shop order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusComplete   OrderStatus = "complete"
	OrderStatusFail       OrderStatus = "fail"
	OrderStatusReturn     OrderStatus = "return"
	OrderStatusCancel     OrderStatus = "cancel"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusDelivering,
	OrderStatusComplete,
	OrderStatusFail,
	OrderStatusReturn,
	OrderStatusCancel,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsClosed reports whether the order has left fulfilment for good. A closed
// order accepts no further status change.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusCancel || s == OrderStatusFail || s == OrderStatusReturn
}

// ParseOrderStatus converts raw input into an OrderStatus. Matching ignores
// case so "Complete" and "complete" are equivalent.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
