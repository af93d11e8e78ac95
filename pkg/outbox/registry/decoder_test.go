package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/payloads"
)

func newStatusDecoders(t *testing.T) *DecoderRegistry {
	t.Helper()
	reg := NewDecoderRegistry()
	require.NoError(t, reg.Register(enums.EventOrderStatusChanged, 1, func() any { return &payloads.OrderStatusChangedEvent{} }))
	return reg
}

func TestDecoderRegistryDecodesRegisteredVersion(t *testing.T) {
	reg := newStatusDecoders(t)
	orderID := uuid.New()
	input := json.RawMessage(`{"order_id":"` + orderID.String() + `","old_status":"PROCESSING_COMPLETED","new_status":"QUALITY_CHECK"}`)

	output, err := reg.Decode(enums.EventOrderStatusChanged, 1, input)
	require.NoError(t, err)
	event, ok := output.(*payloads.OrderStatusChangedEvent)
	require.True(t, ok, "unexpected type %T", output)
	assert.Equal(t, orderID, event.OrderID)
	assert.Equal(t, enums.OrderStatusQualityCheck, event.NewStatus)

	_, err = reg.Decode(enums.EventOrderStatusChanged, 2, input)
	assert.Error(t, err, "unregistered version")
}

func TestDecoderRegistryValidatesPayload(t *testing.T) {
	reg := newStatusDecoders(t)

	_, err := reg.Decode(enums.EventOrderStatusChanged, 1, json.RawMessage(`{"new_status":"QUALITY_CHECK"}`))
	assert.ErrorContains(t, err, "order_id")

	_, err = reg.Decode(enums.EventOrderStatusChanged, 1, json.RawMessage(`{"order_id":"`+uuid.NewString()+`","new_status":"FOLDED"}`))
	assert.ErrorContains(t, err, "new_status")
}

func TestDecoderRegistryRejectsDuplicates(t *testing.T) {
	reg := newStatusDecoders(t)
	err := reg.Register(enums.EventOrderStatusChanged, 1, func() any { return &payloads.OrderStatusChangedEvent{} })
	assert.Error(t, err)
	assert.Error(t, reg.Register(enums.EventOrderPaymentStatusChanged, 0, func() any { return nil }))

	require.NoError(t, reg.Register(enums.EventOrderStatusChanged, 3, func() any { return &payloads.OrderStatusChangedEvent{} }))
	assert.Equal(t, []int{1, 3}, reg.Versions(enums.EventOrderStatusChanged))
	assert.Empty(t, reg.Versions(enums.EventOrderPaymentStatusChanged))
}
