package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/ledger"
	"github.com/angelmondragon/laundrytrack-backend/internal/notifications"
	"github.com/angelmondragon/laundrytrack-backend/internal/operations"
	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/internal/timeline"
	"github.com/angelmondragon/laundrytrack-backend/internal/wallet"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/idempotency"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []notifications.Change
	err     error
}

func (n *recordingNotifier) OrderChanged(_ context.Context, change notifications.Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *recordingNotifier) all() []notifications.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Change(nil), n.changes...)
}

// memoryStore is an in-process stand-in for the redis idempotency store.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "lt:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

type harness struct {
	client   *db.Client
	svc      Service
	notifier *recordingNotifier
	store    *memoryStore
	ops      operations.Repository
}

type harnessOption func(*ServiceParams)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.Nop()

	ordersRepo := orders.NewRepository(client.DB())
	coordinator, err := orders.NewService(ordersRepo, client, orders.Config{AutoAdvanceOnPaid: true}, logg, nil)
	require.NoError(t, err)
	wallets, err := wallet.NewService(wallet.NewRepository(client.DB()))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(client.DB()), ordersRepo, coordinator, wallets, client, ledger.Config{Currency: "BHD", AmountScale: 3}, logg, nil)
	require.NoError(t, err)
	opsRepo := operations.NewRepository(client.DB())
	timelineSvc, err := timeline.NewService(ordersRepo, opsRepo, logg, nil)
	require.NoError(t, err)

	store := newMemoryStore()
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	params := ServiceParams{
		Config:      Config{MaxConflictRetries: 3, ConflictBackoffBase: time.Millisecond, ConflictBackoffCap: 2 * time.Millisecond},
		Coordinator: coordinator,
		Orders:      ordersRepo,
		Ledger:      ledgerSvc,
		Timeline:    timelineSvc,
		Operations:  opsRepo,
		Tx:          client,
		Notifier:    notifier,
		Settlements: manager,
		Logger:      logg,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &harness{client: client, svc: svc, notifier: notifier, store: store, ops: opsRepo}
}

func statusPtr(status enums.OrderStatus) *enums.OrderStatus {
	return &status
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "error: %v", err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestApplyStatusChangeNotifiesAfterCommit(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client)
	actor := uuid.New()

	result, err := h.svc.ApplyStatusChange(context.Background(), StatusChangeRequest{
		OrderID:   order.ID,
		ActorID:   &actor,
		NewStatus: statusPtr(enums.OrderStatusPickupAssigned),
		Notes:     "driver on the way",
	})
	require.NoError(t, err)
	assert.True(t, result.StatusChanged)

	changes := h.notifier.all()
	require.Len(t, changes, 1)
	assert.Equal(t, order.ID, changes[0].OrderID)
	assert.Equal(t, enums.OrderStatusPlaced, changes[0].OldStatus)
	assert.Equal(t, enums.OrderStatusPickupAssigned, changes[0].NewStatus)
	assert.Equal(t, orders.SourceAdmin, changes[0].Source)
	assert.Equal(t, &actor, changes[0].ActorID)
}

func TestApplyStatusChangeIgnoresNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("outbox down")
	order := dbtest.SeedOrder(t, h.client)

	result, err := h.svc.ApplyStatusChange(context.Background(), StatusChangeRequest{
		OrderID:   order.ID,
		NewStatus: statusPtr(enums.OrderStatusPickupAssigned),
	})
	require.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.Equal(t, enums.OrderStatusPickupAssigned, dbtest.ReloadOrder(t, h.client, order.ID).Status)
}

func TestApplyStatusChangeRejectedTransitionSendsNothing(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client)

	_, err := h.svc.ApplyStatusChange(context.Background(), StatusChangeRequest{
		OrderID:   order.ID,
		NewStatus: statusPtr(enums.OrderStatusDelivered),
	})
	requireCode(t, err, pkgerrors.CodeInvalidTransition)
	assert.Empty(t, h.notifier.all())
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bogus := enums.OrderStatus("FOLDED")

	_, err := h.svc.ApplyStatusChange(ctx, StatusChangeRequest{})
	requireCode(t, err, pkgerrors.CodeValidation)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["order_id"])

	_, err = h.svc.ApplyStatusChange(ctx, StatusChangeRequest{OrderID: uuid.New(), NewStatus: &bogus})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.RecordPayment(ctx, RecordPaymentRequest{
		OrderID: uuid.New(),
		Amount:  decimal.Zero,
		Method:  enums.PaymentMethodCard,
		Status:  enums.PaymentStatusPaid,
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.RecordGatewaySettlement(ctx, GatewaySettlement{
		OrderID:        uuid.New(),
		Amount:         decimal.RequireFromString("1"),
		Method:         enums.PaymentMethodBenefitPay,
		Status:         enums.PaymentStatusRefunded,
		ConfirmationID: "TXN-1",
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.ReportIssue(ctx, ReportIssueRequest{OrderID: uuid.New(), Type: enums.IssueTypeStain, Severity: "urgent", Description: "x"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.GetPaymentSummary(ctx, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeValidation)
}

type flakyCoordinator struct {
	orders.Service
	mu        sync.Mutex
	calls     int
	conflicts int
}

func (f *flakyCoordinator) ApplyStatusChange(ctx context.Context, input orders.StatusChangeInput) (*orders.ChangeResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.conflicts
	f.mu.Unlock()
	if fail {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "serialization failure")
	}
	return f.Service.ApplyStatusChange(ctx, input)
}

func TestApplyStatusChangeRetriesConflicts(t *testing.T) {
	var flaky *flakyCoordinator
	h := newHarness(t, func(p *ServiceParams) {
		flaky = &flakyCoordinator{Service: p.Coordinator, conflicts: 2}
		p.Coordinator = flaky
	})
	order := dbtest.SeedOrder(t, h.client)

	result, err := h.svc.ApplyStatusChange(context.Background(), StatusChangeRequest{
		OrderID:   order.ID,
		NewStatus: statusPtr(enums.OrderStatusPickupAssigned),
	})
	require.NoError(t, err)
	assert.True(t, result.StatusChanged)
	assert.Equal(t, 3, flaky.calls)
}

func TestApplyStatusChangeSurfacesExhaustedConflict(t *testing.T) {
	var flaky *flakyCoordinator
	h := newHarness(t, func(p *ServiceParams) {
		flaky = &flakyCoordinator{Service: p.Coordinator, conflicts: 100}
		p.Coordinator = flaky
	})
	order := dbtest.SeedOrder(t, h.client)

	_, err := h.svc.ApplyStatusChange(context.Background(), StatusChangeRequest{
		OrderID:   order.ID,
		NewStatus: statusPtr(enums.OrderStatusPickupAssigned),
	})
	requireCode(t, err, pkgerrors.CodeConcurrency)
	assert.True(t, pkgerrors.As(err).Retryable())
	assert.Equal(t, 4, flaky.calls)
	assert.Equal(t, enums.OrderStatusPlaced, dbtest.ReloadOrder(t, h.client, order.ID).Status)
	assert.Empty(t, h.notifier.all())
}

func TestRecordPaymentNotifiesPaymentStatus(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client, dbtest.WithInvoiceTotal("10.000"))

	result, err := h.svc.RecordPayment(context.Background(), RecordPaymentRequest{
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("4"),
		Method:  enums.PaymentMethodCash,
		Status:  enums.PaymentStatusPaid,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPaymentStatusPartial, result.Summary.PaymentStatus)

	changes := h.notifier.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].PaymentStatusChanged)
	assert.Equal(t, enums.OrderPaymentStatusPartial, changes[0].NewPaymentStatus)
	assert.Equal(t, "4.000", changes[0].TotalPaid)
	require.NotNil(t, changes[0].Outstanding)
	assert.Equal(t, "6.000", *changes[0].Outstanding)
}

func TestUpdatePaymentStatusAutoAdvances(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client,
		dbtest.WithInvoiceTotal("10.000"),
		dbtest.WithStatus(enums.OrderStatusProcessingCompleted),
	)
	ctx := context.Background()

	pending, err := h.svc.RecordPayment(ctx, RecordPaymentRequest{
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("10"),
		Method:  enums.PaymentMethodCard,
		Status:  enums.PaymentStatusPending,
	})
	require.NoError(t, err)
	assert.Empty(t, h.notifier.all())

	settled, err := h.svc.UpdatePaymentStatus(ctx, UpdatePaymentStatusRequest{
		PaymentID: pending.Payment.ID,
		Status:    enums.PaymentStatusPaid,
	})
	require.NoError(t, err)
	require.NotNil(t, settled.Change)
	assert.True(t, settled.Change.AutoAdvanced)

	changes := h.notifier.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].AutoAdvanced)
	assert.Equal(t, enums.OrderStatusQualityCheck, changes[0].NewStatus)
	assert.Equal(t, enums.OrderPaymentStatusPaid, changes[0].NewPaymentStatus)
}

func TestAssignDriver(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client)
	ctx := context.Background()
	admin := uuid.New()

	first, err := h.svc.AssignDriver(ctx, AssignDriverRequest{
		OrderID:    order.ID,
		DriverID:   uuid.New(),
		Kind:       enums.DriverAssignmentPickup,
		AssignedBy: &admin,
	})
	require.NoError(t, err)
	assert.NotZero(t, first.Assignment.ID)
	assert.True(t, first.Change.StatusChanged)
	assert.Equal(t, enums.OrderStatusPickupAssigned, first.Change.NewStatus)

	second, err := h.svc.AssignDriver(ctx, AssignDriverRequest{
		OrderID:  order.ID,
		DriverID: uuid.New(),
		Kind:     enums.DriverAssignmentPickup,
		Notes:    "first driver called in sick",
	})
	require.NoError(t, err)
	assert.False(t, second.Change.Changed())

	rows, err := h.ops.ListAssignments(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Len(t, h.notifier.all(), 1)
}

func TestAssignDriverRejectedTransitionWritesNothing(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client)
	ctx := context.Background()

	_, err := h.svc.AssignDriver(ctx, AssignDriverRequest{
		OrderID:  order.ID,
		DriverID: uuid.New(),
		Kind:     enums.DriverAssignmentDelivery,
	})
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	rows, err := h.ops.ListAssignments(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordProcessingUpdate(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client, dbtest.WithStatus(enums.OrderStatusReceivedAtFacility))
	ctx := context.Background()
	staff := uuid.New()

	sorted, err := h.svc.RecordProcessingUpdate(ctx, ProcessingUpdateRequest{
		OrderID:   order.ID,
		StaffID:   &staff,
		Stage:     enums.ProcessingStageSorting,
		ItemCount: 12,
	})
	require.NoError(t, err)
	assert.Nil(t, sorted.Change)

	washing, err := h.svc.RecordProcessingUpdate(ctx, ProcessingUpdateRequest{
		OrderID:   order.ID,
		StaffID:   &staff,
		Stage:     enums.ProcessingStageWashing,
		ItemCount: 12,
		NewStatus: statusPtr(enums.OrderStatusProcessingStarted),
	})
	require.NoError(t, err)
	require.NotNil(t, washing.Change)
	assert.True(t, washing.Change.StatusChanged)

	changes := h.notifier.all()
	require.Len(t, changes, 1)
	assert.Equal(t, orders.SourceFacility, changes[0].Source)

	_, err = h.svc.RecordProcessingUpdate(ctx, ProcessingUpdateRequest{
		OrderID: uuid.New(),
		Stage:   enums.ProcessingStageDrying,
	})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestReportIssueShowsOnTimeline(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client)
	ctx := context.Background()
	reporter := uuid.New()

	_, err := h.svc.ApplyStatusChange(ctx, StatusChangeRequest{
		OrderID:   order.ID,
		ActorID:   &reporter,
		NewStatus: statusPtr(enums.OrderStatusPickupAssigned),
	})
	require.NoError(t, err)

	issue, err := h.svc.ReportIssue(ctx, ReportIssueRequest{
		OrderID:     order.ID,
		ReportedBy:  &reporter,
		Type:        enums.IssueTypeMissingItem,
		Severity:    enums.IssueSeverityHigh,
		Description: "  one shirt missing  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "one shirt missing", issue.Description)

	events, err := h.svc.BuildTimeline(ctx, order.ID)
	require.NoError(t, err)
	types := map[enums.TimelineEventType]bool{}
	for _, event := range events {
		types[event.Type] = true
	}
	assert.True(t, types[enums.TimelineIssue])
	assert.True(t, types[enums.TimelineStatusChange])

	_, err = h.svc.ReportIssue(ctx, ReportIssueRequest{
		OrderID:     uuid.New(),
		Type:        enums.IssueTypeOther,
		Severity:    enums.IssueSeverityLow,
		Description: "lost",
	})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func countRecords(t *testing.T, gdb *gorm.DB, orderID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, gdb.Model(&models.PaymentRecord{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func TestReconcilePaymentStatusRepairsStaleOrder(t *testing.T) {
	h := newHarness(t)
	order := dbtest.SeedOrder(t, h.client, dbtest.WithInvoiceTotal("10.000"))
	dbtest.SeedPaymentRecord(t, h.client, order.ID, "10.000", enums.PaymentStatusPaid)

	change, err := h.svc.ReconcilePaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, change.PaymentStatusChanged)
	assert.Equal(t, enums.OrderPaymentStatusPaid, change.NewPaymentStatus)

	changes := h.notifier.all()
	require.Len(t, changes, 1)
	assert.Equal(t, orders.SourceSystem, changes[0].Source)

	again, err := h.svc.ReconcilePaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed())
	assert.Len(t, h.notifier.all(), 1)
}

func TestReconcilePaymentStatusUnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ReconcilePaymentStatus(context.Background(), uuid.Nil)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.ReconcilePaymentStatus(context.Background(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}
