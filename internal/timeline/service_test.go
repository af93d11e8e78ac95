package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/operations"
	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/pagination"
)

type fakeHistory struct {
	order *models.Order
	rows  []models.OrderHistoryEntry
	err   error
}

func (f *fakeHistory) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.order, nil
}

func (f *fakeHistory) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistoryEntry, error) {
	return f.rows, f.err
}

type fakeOps struct {
	assignments []models.DriverAssignment
	processing  []models.OrderProcessing
	issues      []models.IssueReport
	err         error
}

func (f *fakeOps) ListAssignments(ctx context.Context, orderID uuid.UUID) ([]models.DriverAssignment, error) {
	return f.assignments, f.err
}

func (f *fakeOps) ListProcessing(ctx context.Context, orderID uuid.UUID) ([]models.OrderProcessing, error) {
	return f.processing, nil
}

func (f *fakeOps) ListIssues(ctx context.Context, orderID uuid.UUID) ([]models.IssueReport, error) {
	return f.issues, nil
}

func TestBuildTimelineNormalizesEverySource(t *testing.T) {
	orderID := uuid.New()
	staff := uuid.New()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	history := &fakeHistory{
		order: &models.Order{ID: orderID},
		rows: []models.OrderHistoryEntry{
			{
				ID:          2,
				OrderID:     orderID,
				Action:      enums.HistoryActionPaymentRecorded,
				NewValue:    datatypes.NewJSONType(models.HistoryValue{Payment: &models.PaymentSnapshot{Amount: decimal.RequireFromString("4.5"), Method: enums.PaymentMethodCash, Status: enums.PaymentStatusPaid}}),
				Description: "Recorded charge",
				CreatedAt:   at.Add(2 * time.Minute),
			},
			{
				ID:          1,
				OrderID:     orderID,
				StaffID:     &staff,
				Action:      enums.HistoryActionStatusChange,
				OldValue:    datatypes.NewJSONType(models.HistoryValue{Status: enums.OrderStatusPlaced}),
				NewValue:    datatypes.NewJSONType(models.HistoryValue{Status: enums.OrderStatusPickupAssigned}),
				Metadata:    datatypes.NewJSONType(models.HistoryMetadata{Source: "admin"}),
				Description: "Status changed",
				CreatedAt:   at,
			},
		},
	}
	note := "gate code 4411"
	ops := &fakeOps{
		assignments: []models.DriverAssignment{{ID: 1, OrderID: orderID, DriverID: uuid.New(), Kind: enums.DriverAssignmentPickup, Notes: &note, CreatedAt: at}},
		processing:  []models.OrderProcessing{{ID: 1, OrderID: orderID, Stage: enums.ProcessingStageWashing, ItemCount: 6, CreatedAt: at.Add(time.Minute)}},
		issues:      []models.IssueReport{{ID: 1, OrderID: orderID, Type: enums.IssueTypeMissingItem, Severity: enums.IssueSeverityHigh, Description: "one sock", CreatedAt: at.Add(3 * time.Minute)}},
	}

	svc, err := NewService(history, ops, logger.Nop(), nil)
	require.NoError(t, err)

	events, err := svc.BuildTimeline(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, events, 5)

	types := make([]enums.TimelineEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []enums.TimelineEventType{
		enums.TimelineIssue,
		enums.TimelinePaymentRecorded,
		enums.TimelineProcessing,
		enums.TimelineStatusChange,
		enums.TimelineDriverAssignment,
	}, types)

	status := events[3]
	assert.Equal(t, &staff, status.ActorID)
	statusDetails, ok := status.Details.(StatusChangeDetails)
	require.True(t, ok, "status change details %T", status.Details)
	assert.Equal(t, enums.OrderStatusPickupAssigned, statusDetails.To)
	assert.Equal(t, "admin", statusDetails.Source)
	payment, ok := events[1].Details.(PaymentDetails)
	require.True(t, ok, "payment details %T", events[1].Details)
	assert.Equal(t, "4.500", payment.Amount)
	assert.Equal(t, ProcessingDetails{Stage: enums.ProcessingStageWashing, ItemCount: 6}, events[2].Details)
	assert.Equal(t, IssueDetails{IssueType: enums.IssueTypeMissingItem, Severity: enums.IssueSeverityHigh}, events[0].Details)
	assert.Equal(t, note, events[4].Description)

	raw, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source":"issue"`)
	assert.Contains(t, string(raw), `"details":{"issue_type":"`)

	raw, err = json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source":"admin"`)
}

func TestHistoryDetailsFollowAction(t *testing.T) {
	paymentID := uuid.New()
	meta := datatypes.NewJSONType(models.HistoryMetadata{Source: "ledger", Rule: "payment_settled_release"})

	tests := []struct {
		name    string
		row     models.OrderHistoryEntry
		want    enums.TimelineEventType
		details Details
	}{
		{
			name: "payment status",
			row: models.OrderHistoryEntry{
				Action:   enums.HistoryActionPaymentStatusChange,
				OldValue: datatypes.NewJSONType(models.HistoryValue{PaymentStatus: enums.OrderPaymentStatusPaid}),
				NewValue: datatypes.NewJSONType(models.HistoryValue{PaymentStatus: enums.OrderPaymentStatusPending}),
				Metadata: meta,
			},
			want: enums.TimelinePaymentStatusChange,
			details: PaymentStatusDetails{
				From:   enums.OrderPaymentStatusPaid,
				To:     enums.OrderPaymentStatusPending,
				Origin: Origin{Source: "ledger", Rule: "payment_settled_release"},
			},
		},
		{
			name: "payment updated",
			row: models.OrderHistoryEntry{
				Action: enums.HistoryActionPaymentUpdated,
				NewValue: datatypes.NewJSONType(models.HistoryValue{Payment: &models.PaymentSnapshot{
					PaymentID:    paymentID,
					Kind:         enums.PaymentKindCharge,
					Amount:       decimal.RequireFromString("2"),
					Method:       enums.PaymentMethodCard,
					Status:       enums.PaymentStatusPaid,
					Confirmation: "gw-9",
				}}),
			},
			want: enums.TimelinePaymentUpdated,
			details: PaymentDetails{
				PaymentID:      paymentID,
				Kind:           enums.PaymentKindCharge,
				Amount:         "2.000",
				Method:         enums.PaymentMethodCard,
				Status:         enums.PaymentStatusPaid,
				ConfirmationID: "gw-9",
				Updated:        true,
			},
		},
		{
			name:    "note",
			row:     models.OrderHistoryEntry{Action: enums.HistoryActionNoteAdded, Metadata: datatypes.NewJSONType(models.HistoryMetadata{Notes: "left at door"})},
			want:    enums.TimelineNote,
			details: NoteDetails{Origin: Origin{Notes: "left at door"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := fromHistory(tc.row)
			assert.Equal(t, tc.want, ev.Type)
			assert.Equal(t, tc.details, ev.Details)
		})
	}
}

func TestBuildTimelineErrors(t *testing.T) {
	svc, err := NewService(&fakeHistory{}, &fakeOps{}, logger.Nop(), nil)
	require.NoError(t, err)

	_, err = svc.BuildTimeline(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.BuildTimeline(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	broken, err := NewService(&fakeHistory{order: &models.Order{}}, &fakeOps{err: errors.New("connection reset")}, logger.Nop(), nil)
	require.NoError(t, err)
	_, err = broken.BuildTimeline(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestBuildTimelineFromStore(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	ordersRepo := orders.NewRepository(client.DB())
	opsRepo := operations.NewRepository(client.DB())
	coordinator, err := orders.NewService(ordersRepo, client, orders.Config{}, logger.Nop(), nil)
	require.NoError(t, err)
	svc, err := NewService(ordersRepo, opsRepo, logger.Nop(), nil)
	require.NoError(t, err)

	order := dbtest.SeedOrder(t, client)
	assigned := enums.OrderStatusPickupAssigned
	_, err = coordinator.ApplyStatusChange(ctx, orders.StatusChangeInput{OrderID: order.ID, NewStatus: &assigned})
	require.NoError(t, err)
	require.NoError(t, opsRepo.CreateAssignment(ctx, &models.DriverAssignment{
		OrderID:   order.ID,
		DriverID:  uuid.New(),
		Kind:      enums.DriverAssignmentPickup,
		CreatedAt: time.Now().UTC().Add(time.Minute),
	}))

	first, err := svc.BuildTimeline(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, enums.TimelineDriverAssignment, first[0].Type)
	assert.Equal(t, enums.TimelineStatusChange, first[1].Type)

	second, err := svc.BuildTimeline(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, keys(first), keys(second))
}

func TestPageTimelineWalksEveryEventOnce(t *testing.T) {
	orderID := uuid.New()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	history := &fakeHistory{order: &models.Order{ID: orderID}}
	for id := int64(1); id <= 4; id++ {
		history.rows = append(history.rows, models.OrderHistoryEntry{
			ID:          id,
			OrderID:     orderID,
			Action:      enums.HistoryActionNoteAdded,
			Description: "note",
			CreatedAt:   at.Add(time.Duration(id%2) * time.Minute),
		})
	}
	ops := &fakeOps{
		assignments: []models.DriverAssignment{
			{ID: 1, OrderID: orderID, DriverID: uuid.New(), Kind: enums.DriverAssignmentPickup, CreatedAt: at},
			{ID: 2, OrderID: orderID, DriverID: uuid.New(), Kind: enums.DriverAssignmentDelivery, CreatedAt: at.Add(time.Minute)},
		},
		issues: []models.IssueReport{{ID: 1, OrderID: orderID, Type: enums.IssueTypeOther, Severity: enums.IssueSeverityLow, Description: "late", CreatedAt: at}},
	}
	svc, err := NewService(history, ops, logger.Nop(), nil)
	require.NoError(t, err)

	all, err := svc.BuildTimeline(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, all, 7)

	var walked []Event
	params := pagination.Params{Limit: 3}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "pagination did not terminate")
		page, err := svc.PageTimeline(context.Background(), orderID, params)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Events), 3)
		walked = append(walked, page.Events...)
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	assert.Equal(t, keys(all), keys(walked))
}

func TestPageTimelineCursorPastEnd(t *testing.T) {
	orderID := uuid.New()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	history := &fakeHistory{
		order: &models.Order{ID: orderID},
		rows:  []models.OrderHistoryEntry{{ID: 1, OrderID: orderID, Action: enums.HistoryActionNoteAdded, CreatedAt: at}},
	}
	svc, err := NewService(history, &fakeOps{}, logger.Nop(), nil)
	require.NoError(t, err)

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: at.Add(-time.Hour), Rank: int(SourceIssue), ID: 1})
	page, err := svc.PageTimeline(context.Background(), orderID, pagination.Params{Cursor: cursor})
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Empty(t, page.NextCursor)

	_, err = svc.PageTimeline(context.Background(), orderID, pagination.Params{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
