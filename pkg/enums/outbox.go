package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateReport      OutboxAggregateType = "report"
	AggregateTransaction OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateReport,
	AggregateTransaction,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType is the routing key published with each event.
type OutboxEventType string

const (
	EventOrderCreated             OutboxEventType = "order.created"
	EventOrderUpdated             OutboxEventType = "order.updated"
	EventOrderStatusChanged       OutboxEventType = "order.status_changed"
	EventOrderCancelled           OutboxEventType = "order.cancelled"
	EventOrderRefunded            OutboxEventType = "order.refunded"
	EventOrderPaid                OutboxEventType = "order.paid"
	EventReportCreated            OutboxEventType = "report.created"
	EventReportResolved           OutboxEventType = "report.resolved"
	EventWalletWithdrawalApproved OutboxEventType = "wallet.withdrawal_approved"
	EventPackagePurchased         OutboxEventType = "package.purchased"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventOrderRefunded,
	EventOrderPaid,
	EventReportCreated,
	EventReportResolved,
	EventWalletWithdrawalApproved,
	EventPackagePurchased,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
