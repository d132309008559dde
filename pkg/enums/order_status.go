package enums

import "slices"

// OrderStatus is the lifecycle state of a commerce order as reported to the
// rewards engine.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

func (s OrderStatus) IsValid() bool { return slices.Contains(validOrderStatuses, s) }

// IsReversal reports whether the order no longer counts as a sale.
func (s OrderStatus) IsReversal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(validOrderStatuses, "order status", value)
}
