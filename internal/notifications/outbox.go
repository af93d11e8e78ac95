package notifications

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier queues one outbox row per changed field. It runs its own
// transaction, so it must only be called once the change has committed.
type OutboxNotifier struct {
	tx      txRunner
	emitter emitter
	logg    *logger.Logger
}

// NewOutboxNotifier wires the outbox-backed notifier.
func NewOutboxNotifier(tx txRunner, emitter emitter, logg *logger.Logger) (*OutboxNotifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &OutboxNotifier{tx: tx, emitter: emitter, logg: logg}, nil
}

func (n *OutboxNotifier) OrderChanged(ctx context.Context, change Change) error {
	events := buildEvents(change)
	if len(events) == 0 {
		return nil
	}
	err := n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, event := range events {
			if err := n.emitter.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order notifications")
	}
	logCtx := n.logg.WithOrderID(ctx, change.OrderID.String())
	logCtx = n.logg.WithField(logCtx, "event_count", len(events))
	n.logg.Debug(logCtx, "order notifications queued")
	return nil
}

func buildEvents(change Change) []outbox.DomainEvent {
	occurred := change.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	actor := &outbox.ActorRef{ActorID: change.ActorID, Source: change.Source}

	events := make([]outbox.DomainEvent, 0, 2)
	if change.StatusChanged {
		data := payloads.OrderStatusChangedEvent{
			OrderID:      change.OrderID,
			OrderNumber:  change.OrderNumber,
			CustomerID:   change.CustomerID,
			OldStatus:    change.OldStatus,
			NewStatus:    change.NewStatus,
			ActorID:      change.ActorID,
			Source:       change.Source,
			AutoAdvanced: change.AutoAdvanced,
			ChangedAt:    occurred,
		}
		if change.AutoAdvanced {
			data.Rule = orders.RulePaymentSettledRelease
		}
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   change.OrderID,
			Actor:         actor,
			Data:          data,
			OccurredAt:    occurred,
		})
	}
	if change.PaymentStatusChanged {
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   change.OrderID,
			Actor:         actor,
			Data: payloads.OrderPaymentStatusChangedEvent{
				OrderID:          change.OrderID,
				OrderNumber:      change.OrderNumber,
				CustomerID:       change.CustomerID,
				OldPaymentStatus: change.OldPaymentStatus,
				NewPaymentStatus: change.NewPaymentStatus,
				ActorID:          change.ActorID,
				Source:           change.Source,
				TotalPaid:        change.TotalPaid,
				Outstanding:      change.Outstanding,
				ChangedAt:        occurred,
			},
			OccurredAt: occurred,
		})
	}
	return events
}
