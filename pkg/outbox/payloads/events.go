package payloads

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// OrderStatusChangedEvent is emitted after an order moves along the workflow.
type OrderStatusChangedEvent struct {
	OrderID      uuid.UUID         `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	CustomerID   uuid.UUID         `json:"customer_id"`
	OldStatus    enums.OrderStatus `json:"old_status"`
	NewStatus    enums.OrderStatus `json:"new_status"`
	ActorID      *uuid.UUID        `json:"actor_id,omitempty"`
	Source       string            `json:"source"`
	AutoAdvanced bool              `json:"auto_advanced"`
	Rule         string            `json:"rule,omitempty"`
	ChangedAt    time.Time         `json:"changed_at"`
}

// OrderPaymentStatusChangedEvent is emitted when the derived payment status
// of an order changes.
type OrderPaymentStatusChangedEvent struct {
	OrderID          uuid.UUID                `json:"order_id"`
	OrderNumber      string                   `json:"order_number"`
	CustomerID       uuid.UUID                `json:"customer_id"`
	OldPaymentStatus enums.OrderPaymentStatus `json:"old_payment_status"`
	NewPaymentStatus enums.OrderPaymentStatus `json:"new_payment_status"`
	ActorID          *uuid.UUID               `json:"actor_id,omitempty"`
	Source           string                   `json:"source"`
	TotalPaid        string                   `json:"total_paid,omitempty"`
	Outstanding      *string                  `json:"outstanding_amount,omitempty"`
	ChangedAt        time.Time                `json:"changed_at"`
}

func (e *OrderStatusChangedEvent) Validate() error {
	if e.OrderID == uuid.Nil {
		return errors.New("order_id required")
	}
	if !e.NewStatus.IsValid() {
		return fmt.Errorf("new_status %q is not an order status", e.NewStatus)
	}
	return nil
}

func (e *OrderPaymentStatusChangedEvent) Validate() error {
	if e.OrderID == uuid.Nil {
		return errors.New("order_id required")
	}
	if !e.NewPaymentStatus.IsValid() {
		return fmt.Errorf("new_payment_status %q is not a payment status", e.NewPaymentStatus)
	}
	return nil
}
