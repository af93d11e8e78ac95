package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/payloads"
)

func TestOutboxNotifierQueuesOneRowPerChangedField(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	notifier, err := NewOutboxNotifier(client, outbox.NewService(repo, logger.Nop()), logger.Nop())
	require.NoError(t, err)

	orderID := uuid.New()
	outstanding := "0.000"
	err = notifier.OrderChanged(context.Background(), Change{
		OrderID:              orderID,
		OrderNumber:          "LT-1001",
		OldStatus:            enums.OrderStatusProcessingCompleted,
		NewStatus:            enums.OrderStatusQualityCheck,
		OldPaymentStatus:     enums.OrderPaymentStatusPartial,
		NewPaymentStatus:     enums.OrderPaymentStatusPaid,
		StatusChanged:        true,
		PaymentStatusChanged: true,
		AutoAdvanced:         true,
		Source:               orders.SourceLedger,
		TotalPaid:            "10.000",
		Outstanding:          &outstanding,
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byType := map[enums.OutboxEventType]models.OutboxEvent{}
	for _, row := range rows {
		byType[row.EventType] = row
	}

	var statusEvent payloads.OrderStatusChangedEvent
	decodeData(t, byType[enums.EventOrderStatusChanged], &statusEvent)
	assert.Equal(t, enums.OrderStatusQualityCheck, statusEvent.NewStatus)
	assert.True(t, statusEvent.AutoAdvanced)
	assert.Equal(t, orders.RulePaymentSettledRelease, statusEvent.Rule)

	var paymentEvent payloads.OrderPaymentStatusChangedEvent
	decodeData(t, byType[enums.EventOrderPaymentStatusChanged], &paymentEvent)
	assert.Equal(t, enums.OrderPaymentStatusPaid, paymentEvent.NewPaymentStatus)
	assert.Equal(t, "10.000", paymentEvent.TotalPaid)
	require.NotNil(t, paymentEvent.Outstanding)
	assert.Equal(t, "0.000", *paymentEvent.Outstanding)
}

func TestOutboxNotifierSkipsUnchanged(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	notifier, err := NewOutboxNotifier(client, outbox.NewService(repo, nil), logger.Nop())
	require.NoError(t, err)

	orderID := uuid.New()
	require.NoError(t, notifier.OrderChanged(context.Background(), Change{OrderID: orderID}))

	rows, err := repo.ListByAggregate(orderID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox table missing")
}

func TestOutboxNotifierWrapsFailures(t *testing.T) {
	client := dbtest.Open(t)
	notifier, err := NewOutboxNotifier(client, failingEmitter{}, logger.Nop())
	require.NoError(t, err)

	err = notifier.OrderChanged(context.Background(), Change{OrderID: uuid.New(), StatusChanged: true})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestNewOutboxNotifierRequiresDependencies(t *testing.T) {
	client := dbtest.Open(t)
	_, err := NewOutboxNotifier(nil, failingEmitter{}, logger.Nop())
	assert.Error(t, err)
	_, err = NewOutboxNotifier(client, nil, logger.Nop())
	assert.Error(t, err)
	_, err = NewOutboxNotifier(client, failingEmitter{}, nil)
	assert.Error(t, err)
}

func TestFromResult(t *testing.T) {
	_, ok := FromResult(nil, nil, "")
	assert.False(t, ok)
	_, ok = FromResult(&orders.ChangeResult{Order: &models.Order{ID: uuid.New()}}, nil, "")
	assert.False(t, ok)

	actor := uuid.New()
	order := &models.Order{ID: uuid.New(), OrderNumber: "LT-7", CustomerID: uuid.New()}
	change, ok := FromResult(&orders.ChangeResult{
		Order:         order,
		OldStatus:     enums.OrderStatusPlaced,
		NewStatus:     enums.OrderStatusPickupAssigned,
		StatusChanged: true,
	}, &actor, orders.SourceAdmin)
	require.True(t, ok)
	assert.Equal(t, order.ID, change.OrderID)
	assert.Equal(t, "LT-7", change.OrderNumber)
	assert.Equal(t, enums.OrderStatusPickupAssigned, change.NewStatus)
	assert.Equal(t, &actor, change.ActorID)
	assert.False(t, change.OccurredAt.IsZero())
}

func decodeData(t *testing.T, row models.OutboxEvent, target any) {
	t.Helper()
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}
