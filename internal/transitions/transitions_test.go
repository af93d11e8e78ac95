package transitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

func TestValidateOrderMainLine(t *testing.T) {
	line := []enums.OrderStatus{
		enums.OrderStatusPlaced,
		enums.OrderStatusPickupAssigned,
		enums.OrderStatusPickupCompleted,
		enums.OrderStatusReceivedAtFacility,
		enums.OrderStatusProcessingStarted,
		enums.OrderStatusProcessingCompleted,
		enums.OrderStatusQualityCheck,
		enums.OrderStatusReadyForDelivery,
		enums.OrderStatusDeliveryAssigned,
		enums.OrderStatusDeliveryInProgress,
		enums.OrderStatusDelivered,
	}
	for i := 0; i+1 < len(line); i++ {
		require.NoError(t, ValidateOrder(line[i], line[i+1]), "%s -> %s", line[i], line[i+1])
	}
}

func TestValidateOrderRejections(t *testing.T) {
	tests := []struct {
		name     string
		from, to enums.OrderStatus
	}{
		{"skip to delivered", enums.OrderStatusProcessingCompleted, enums.OrderStatusDelivered},
		{"backwards", enums.OrderStatusReadyForDelivery, enums.OrderStatusPickupAssigned},
		{"cancel during delivery", enums.OrderStatusDeliveryInProgress, enums.OrderStatusCancelled},
		{"customer cancel after pickup", enums.OrderStatusPickupCompleted, enums.OrderStatusCancelledByCustomer},
		{"leave terminal", enums.OrderStatusDelivered, enums.OrderStatusDeliveryFailed},
		{"reopen cancelled", enums.OrderStatusCancelled, enums.OrderStatusPlaced},
		{"unknown target", enums.OrderStatusPlaced, enums.OrderStatus("LOST")},
		{"unknown source", enums.OrderStatus(""), enums.OrderStatusPlaced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrder(tt.from, tt.to)
			require.Error(t, err)
			assert.True(t, IsInvalidTransition(err))

			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			details, ok := typed.Details().(InvalidTransition)
			require.True(t, ok)
			assert.Equal(t, KindOrderStatus, details.Kind)
			assert.Equal(t, string(tt.from), details.From)
			assert.Equal(t, string(tt.to), details.To)
		})
	}
}

func TestValidateOrderBranches(t *testing.T) {
	allowed := [][2]enums.OrderStatus{
		{enums.OrderStatusPickupAssigned, enums.OrderStatusPickupFailed},
		{enums.OrderStatusPickupFailed, enums.OrderStatusPickupAssigned},
		{enums.OrderStatusQualityCheck, enums.OrderStatusProcessingStarted},
		{enums.OrderStatusDeliveryInProgress, enums.OrderStatusDeliveryFailed},
		{enums.OrderStatusDeliveryFailed, enums.OrderStatusDeliveryAssigned},
		{enums.OrderStatusPlaced, enums.OrderStatusCancelledByCustomer},
		{enums.OrderStatusReadyForDelivery, enums.OrderStatusCancelled},
	}
	for _, pair := range allowed {
		assert.NoError(t, ValidateOrder(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestValidateOrderNoopIsAccepted(t *testing.T) {
	for _, status := range enums.OrderStatuses() {
		assert.NoError(t, ValidateOrder(status, status), "no-op %s", status)
	}
}

func TestOrderTableCompleteness(t *testing.T) {
	for _, status := range enums.OrderStatuses() {
		_, ok := orderEdges[status]
		assert.True(t, ok, "status %s missing from table", status)
	}

	for from, targets := range orderEdges {
		for _, to := range targets {
			assert.True(t, to.IsValid(), "edge %s -> %s targets unknown status", from, to)
			assert.NotEqual(t, enums.OrderStatusPlaced, to, "edge %s re-enters ORDER_PLACED", from)
		}
		if from.IsTerminal() {
			assert.Empty(t, targets, "terminal status %s has outgoing edges", from)
		} else {
			assert.NotEmpty(t, targets, "non-terminal status %s is a dead end", from)
		}
	}

	seen := map[enums.OrderStatus]bool{enums.OrderStatusPlaced: true}
	queue := []enums.OrderStatus{enums.OrderStatusPlaced}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range Next(current) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, status := range enums.OrderStatuses() {
		assert.True(t, seen[status], "status %s unreachable from ORDER_PLACED", status)
	}
}

func TestNextReturnsCopy(t *testing.T) {
	next := Next(enums.OrderStatusPlaced)
	require.NotEmpty(t, next)
	next[0] = enums.OrderStatusDelivered
	assert.Equal(t, enums.OrderStatusPickupAssigned, Next(enums.OrderStatusPlaced)[0])
}

func TestValidatePayment(t *testing.T) {
	assert.NoError(t, ValidatePayment(enums.OrderPaymentStatusPending, enums.OrderPaymentStatusPartial))
	assert.NoError(t, ValidatePayment(enums.OrderPaymentStatusPaid, enums.OrderPaymentStatusPartial))
	assert.NoError(t, ValidatePayment(enums.OrderPaymentStatusFailed, enums.OrderPaymentStatusPending))
	assert.NoError(t, ValidatePayment(enums.OrderPaymentStatusPaid, enums.OrderPaymentStatusPaid))

	err := ValidatePayment(enums.OrderPaymentStatusPaid, enums.OrderPaymentStatusPending)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	details := pkgerrors.As(err).Details().(InvalidTransition)
	assert.Equal(t, KindPaymentStatus, details.Kind)

	assert.Error(t, ValidatePayment(enums.OrderPaymentStatusPending, enums.OrderPaymentStatusRefunded))
	assert.Error(t, ValidatePayment(enums.OrderPaymentStatusPending, enums.OrderPaymentStatus("SETTLED")))
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		from, to enums.PaymentStatus
		ok       bool
	}{
		{enums.PaymentStatusPending, enums.PaymentStatusPaid, true},
		{enums.PaymentStatusPending, enums.PaymentStatusFailed, true},
		{enums.PaymentStatusPaid, enums.PaymentStatusRefunded, true},
		{enums.PaymentStatusPaid, enums.PaymentStatusPaid, true},
		{enums.PaymentStatusPaid, enums.PaymentStatusPending, false},
		{enums.PaymentStatusFailed, enums.PaymentStatusPaid, false},
		{enums.PaymentStatusRefunded, enums.PaymentStatusPaid, false},
		{enums.PaymentStatusPending, enums.PaymentStatusRefunded, false},
	}
	for _, tt := range tests {
		err := ValidateRecord(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.True(t, IsInvalidTransition(err), "%s -> %s", tt.from, tt.to)
		}
	}
}
