package enums

import "fmt"

// OrderStatus tracks the physical lifecycle of a laundry order.
type OrderStatus string

const (
	OrderStatusPlaced              OrderStatus = "ORDER_PLACED"
	OrderStatusPickupAssigned      OrderStatus = "PICKUP_ASSIGNED"
	OrderStatusPickupCompleted     OrderStatus = "PICKUP_COMPLETED"
	OrderStatusPickupFailed        OrderStatus = "PICKUP_FAILED"
	OrderStatusReceivedAtFacility  OrderStatus = "RECEIVED_AT_FACILITY"
	OrderStatusProcessingStarted   OrderStatus = "PROCESSING_STARTED"
	OrderStatusProcessingCompleted OrderStatus = "PROCESSING_COMPLETED"
	OrderStatusQualityCheck        OrderStatus = "QUALITY_CHECK"
	OrderStatusReadyForDelivery    OrderStatus = "READY_FOR_DELIVERY"
	OrderStatusDeliveryAssigned    OrderStatus = "DELIVERY_ASSIGNED"
	OrderStatusDeliveryInProgress  OrderStatus = "DELIVERY_IN_PROGRESS"
	OrderStatusDeliveryFailed      OrderStatus = "DELIVERY_FAILED"
	OrderStatusDelivered           OrderStatus = "DELIVERED"
	OrderStatusCancelled           OrderStatus = "CANCELLED"
	OrderStatusCancelledByCustomer OrderStatus = "CANCELLED_BY_CUSTOMER"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusPickupAssigned,
	OrderStatusPickupCompleted,
	OrderStatusPickupFailed,
	OrderStatusReceivedAtFacility,
	OrderStatusProcessingStarted,
	OrderStatusProcessingCompleted,
	OrderStatusQualityCheck,
	OrderStatusReadyForDelivery,
	OrderStatusDeliveryAssigned,
	OrderStatusDeliveryInProgress,
	OrderStatusDeliveryFailed,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusCancelledByCustomer,
}

// OrderStatuses returns every known OrderStatus in lifecycle order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
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

// IsTerminal reports whether no further lifecycle movement is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusCancelledByCustomer:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
