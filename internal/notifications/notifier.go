// Package notifications hands committed order changes to downstream
// consumers. Delivery is best effort and never affects the change itself.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Change describes one committed order update.
type Change struct {
	OrderID              uuid.UUID
	OrderNumber          string
	CustomerID           uuid.UUID
	OldStatus            enums.OrderStatus
	NewStatus            enums.OrderStatus
	OldPaymentStatus     enums.OrderPaymentStatus
	NewPaymentStatus     enums.OrderPaymentStatus
	StatusChanged        bool
	PaymentStatusChanged bool
	AutoAdvanced         bool
	ActorID              *uuid.UUID
	Source               string
	TotalPaid            string
	Outstanding          *string
	OccurredAt           time.Time
}

// Notifier receives changes after their transaction committed.
type Notifier interface {
	OrderChanged(ctx context.Context, change Change) error
}

// FromResult converts a coordinator result into a Change. It returns false
// when nothing was written.
func FromResult(result *orders.ChangeResult, actorID *uuid.UUID, source string) (Change, bool) {
	if !result.Changed() || result.Order == nil {
		return Change{}, false
	}
	return Change{
		OrderID:              result.Order.ID,
		OrderNumber:          result.Order.OrderNumber,
		CustomerID:           result.Order.CustomerID,
		OldStatus:            result.OldStatus,
		NewStatus:            result.NewStatus,
		OldPaymentStatus:     result.OldPaymentStatus,
		NewPaymentStatus:     result.NewPaymentStatus,
		StatusChanged:        result.StatusChanged,
		PaymentStatusChanged: result.PaymentStatusChanged,
		AutoAdvanced:         result.AutoAdvanced,
		ActorID:              actorID,
		Source:               source,
		OccurredAt:           time.Now().UTC(),
	}, true
}

// Nop discards every change.
type Nop struct{}

func (Nop) OrderChanged(context.Context, Change) error { return nil }
