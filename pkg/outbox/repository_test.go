package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

func TestDeletePublishedBeforeKeepsPendingAndRecentRows(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	orderID := uuid.New()
	now := time.Now().UTC()

	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	insert := func(publishedAt *time.Time, createdAt time.Time) uuid.UUID {
		event := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
			CreatedAt:     createdAt,
		}
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return repo.Insert(tx, event)
		}))
		return event.ID
	}
	insert(&old, old)
	insert(&old, old)
	keptRecent := insert(&recent, recent)
	keptPending := insert(nil, old)

	cutoff := now.Add(-24 * time.Hour)
	var deleted int64
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(tx, cutoff, 1)
		return err
	}))
	assert.EqualValues(t, 1, deleted)

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(tx, cutoff, 10)
		return err
	}))
	assert.EqualValues(t, 1, deleted)

	rows, err := repo.ListByAggregate(orderID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{keptRecent, keptPending}, ids)
}
