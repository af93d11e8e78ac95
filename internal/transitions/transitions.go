// Package transitions holds the lifecycle tables for orders, order payment
// status, and individual payment records. Everything here is pure: callers
// fetch state, ask whether a move is legal, and only then write.
package transitions

import (
	"fmt"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

// Kind names which table rejected a transition.
type Kind string

const (
	KindOrderStatus   Kind = "order_status"
	KindPaymentStatus Kind = "payment_status"
	KindPaymentRecord Kind = "payment_record"
)

// InvalidTransition is attached as details to INVALID_TRANSITION errors.
type InvalidTransition struct {
	Kind Kind   `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Order lifecycle:
//
//	ORDER_PLACED -> PICKUP_ASSIGNED -> PICKUP_COMPLETED -> RECEIVED_AT_FACILITY
//	  -> PROCESSING_STARTED -> PROCESSING_COMPLETED -> QUALITY_CHECK
//	  -> READY_FOR_DELIVERY -> DELIVERY_ASSIGNED -> DELIVERY_IN_PROGRESS -> DELIVERED
//
// PICKUP_FAILED and DELIVERY_FAILED branch off the driver legs and return to
// reassignment. QUALITY_CHECK may send an order back to PROCESSING_STARTED.
// CANCELLED is reachable from every non-terminal status except an active
// delivery; CANCELLED_BY_CUSTOMER only before the laundry is collected.
var orderEdges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPlaced: {
		enums.OrderStatusPickupAssigned,
		enums.OrderStatusCancelled,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusPickupAssigned: {
		enums.OrderStatusPickupCompleted,
		enums.OrderStatusPickupFailed,
		enums.OrderStatusCancelled,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusPickupFailed: {
		enums.OrderStatusPickupAssigned,
		enums.OrderStatusCancelled,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusPickupCompleted: {
		enums.OrderStatusReceivedAtFacility,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReceivedAtFacility: {
		enums.OrderStatusProcessingStarted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessingStarted: {
		enums.OrderStatusProcessingCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessingCompleted: {
		enums.OrderStatusQualityCheck,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusQualityCheck: {
		enums.OrderStatusReadyForDelivery,
		enums.OrderStatusProcessingStarted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReadyForDelivery: {
		enums.OrderStatusDeliveryAssigned,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDeliveryAssigned: {
		enums.OrderStatusDeliveryInProgress,
		enums.OrderStatusDeliveryFailed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDeliveryInProgress: {
		enums.OrderStatusDelivered,
		enums.OrderStatusDeliveryFailed,
	},
	enums.OrderStatusDeliveryFailed: {
		enums.OrderStatusDeliveryAssigned,
		enums.OrderStatusReadyForDelivery,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered:           {},
	enums.OrderStatusCancelled:           {},
	enums.OrderStatusCancelledByCustomer: {},
}

// Order payment status is derived by the ledger; this table bounds what a
// recalculation or an admin override may move to.
var paymentEdges = map[enums.OrderPaymentStatus][]enums.OrderPaymentStatus{
	enums.OrderPaymentStatusPending: {
		enums.OrderPaymentStatusPartial,
		enums.OrderPaymentStatusPaid,
		enums.OrderPaymentStatusFailed,
	},
	enums.OrderPaymentStatusPartial: {
		enums.OrderPaymentStatusPaid,
		enums.OrderPaymentStatusRefunded,
	},
	enums.OrderPaymentStatusPaid: {
		enums.OrderPaymentStatusPartial,
		enums.OrderPaymentStatusRefunded,
	},
	enums.OrderPaymentStatusFailed: {
		enums.OrderPaymentStatusPending,
		enums.OrderPaymentStatusPartial,
		enums.OrderPaymentStatusPaid,
	},
	enums.OrderPaymentStatusRefunded: {
		enums.OrderPaymentStatusPartial,
		enums.OrderPaymentStatusPaid,
	},
}

var recordEdges = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:  {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
	enums.PaymentStatusPaid:     {enums.PaymentStatusRefunded},
	enums.PaymentStatusFailed:   {},
	enums.PaymentStatusRefunded: {},
}

// ValidateOrder checks an order status move. A no-op move is always legal.
func ValidateOrder(current, proposed enums.OrderStatus) error {
	if !current.IsValid() || !proposed.IsValid() {
		return invalid(KindOrderStatus, string(current), string(proposed))
	}
	if current == proposed {
		return nil
	}
	if !contains(orderEdges[current], proposed) {
		return invalid(KindOrderStatus, string(current), string(proposed))
	}
	return nil
}

// ValidatePayment checks an order-level payment status move.
func ValidatePayment(current, proposed enums.OrderPaymentStatus) error {
	if !current.IsValid() || !proposed.IsValid() {
		return invalid(KindPaymentStatus, string(current), string(proposed))
	}
	if current == proposed {
		return nil
	}
	if !contains(paymentEdges[current], proposed) {
		return invalid(KindPaymentStatus, string(current), string(proposed))
	}
	return nil
}

// ValidateRecord checks a single payment record move: PENDING settles to
// PAID or FAILED, PAID may later be REFUNDED, nothing moves backward.
func ValidateRecord(current, proposed enums.PaymentStatus) error {
	if !current.IsValid() || !proposed.IsValid() {
		return invalid(KindPaymentRecord, string(current), string(proposed))
	}
	if current == proposed {
		return nil
	}
	if !contains(recordEdges[current], proposed) {
		return invalid(KindPaymentRecord, string(current), string(proposed))
	}
	return nil
}

// Next lists the statuses reachable from current in one step.
func Next(current enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, len(orderEdges[current]))
	copy(out, orderEdges[current])
	return out
}

// IsInvalidTransition reports whether err was produced by this package.
func IsInvalidTransition(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition)
}

func invalid(kind Kind, from, to string) error {
	return pkgerrors.New(
		pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("%s cannot move from %q to %q", kind, from, to),
	).WithDetails(InvalidTransition{Kind: kind, From: from, To: to})
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}
