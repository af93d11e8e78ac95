package cron

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
)

func TestPaymentReconcileJobPagesThroughActiveOrders(t *testing.T) {
	ids := sortedIDs(5)
	lister := &fakeActivityLister{ids: ids}
	reconciler := &fakeReconciler{
		changes: map[uuid.UUID]*orders.ChangeResult{
			ids[1]: {
				OldPaymentStatus:     enums.OrderPaymentStatusPending,
				NewPaymentStatus:     enums.OrderPaymentStatusPaid,
				PaymentStatusChanged: true,
			},
		},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := newPaymentReconcileJob(t, lister, reconciler, 2)
	job.now = func() time.Time { return now }

	repaired, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repaired order, got %d", repaired)
	}
	if !slices.Equal(reconciler.seen, ids) {
		t.Fatalf("expected every order reconciled once in order")
	}
	if lister.calls != 3 {
		t.Fatalf("expected 3 pages, got %d", lister.calls)
	}
	if !lister.since.Equal(now.Add(-defaultReconcileLookback)) {
		t.Fatalf("unexpected lookback start %s", lister.since)
	}
}

func TestPaymentReconcileJobSkipsVanishedOrders(t *testing.T) {
	ids := sortedIDs(2)
	reconciler := &fakeReconciler{
		errs: map[uuid.UUID]error{ids[0]: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")},
	}
	job := newPaymentReconcileJob(t, &fakeActivityLister{ids: ids}, reconciler, 10)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("not found orders must not fail the run: %v", err)
	}
	if len(reconciler.seen) != 2 {
		t.Fatalf("expected both orders visited, got %d", len(reconciler.seen))
	}
}

func TestPaymentReconcileJobAggregatesFailures(t *testing.T) {
	ids := sortedIDs(4)
	reconciler := &fakeReconciler{
		errs: map[uuid.UUID]error{
			ids[0]: pkgerrors.New(pkgerrors.CodeConcurrency, "serialization failure"),
			ids[2]: pkgerrors.New(pkgerrors.CodeDependency, "db down"),
		},
		changes: map[uuid.UUID]*orders.ChangeResult{
			ids[3]: {PaymentStatusChanged: true, NewPaymentStatus: enums.OrderPaymentStatusPartial},
		},
	}
	job := newPaymentReconcileJob(t, &fakeActivityLister{ids: ids}, reconciler, 10)

	repaired, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "2 of 4 orders failed") {
		t.Fatalf("unexpected error %q", err)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
		t.Fatalf("expected the first failure to stay reachable, got %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected healthy orders to still be repaired, got %d", repaired)
	}
	if len(reconciler.seen) != 4 {
		t.Fatalf("expected all orders visited, got %d", len(reconciler.seen))
	}
}

func TestPaymentReconcileJobPropagatesListError(t *testing.T) {
	job := newPaymentReconcileJob(t, &fakeActivityLister{err: errors.New("boom")}, &fakeReconciler{}, 10)

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestPaymentReconcileJobIgnoresStatusOnlyChanges(t *testing.T) {
	ids := sortedIDs(1)
	reconciler := &fakeReconciler{
		changes: map[uuid.UUID]*orders.ChangeResult{
			ids[0]: {StatusChanged: true},
		},
	}
	job := newPaymentReconcileJob(t, &fakeActivityLister{ids: ids}, reconciler, 10)

	repaired, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("expected no payment repairs, got %d", repaired)
	}
}

func newPaymentReconcileJob(t *testing.T, lister activityLister, reconciler paymentReconciler, batch int) *paymentReconcileJob {
	t.Helper()
	jobIface, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:     logger.Nop(),
		Payments:   lister,
		Reconciler: reconciler,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewPaymentReconcileJob: %v", err)
	}
	return jobIface.(*paymentReconcileJob)
}

func sortedIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return ids
}

type fakeActivityLister struct {
	ids   []uuid.UUID
	since time.Time
	calls int
	err   error
}

func (f *fakeActivityLister) ListOrdersActiveSince(_ context.Context, since time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if after != uuid.Nil {
		start = slices.Index(f.ids, after) + 1
	}
	end := min(start+limit, len(f.ids))
	return slices.Clone(f.ids[start:end]), nil
}

type fakeReconciler struct {
	changes map[uuid.UUID]*orders.ChangeResult
	errs    map[uuid.UUID]error
	seen    []uuid.UUID
}

func (f *fakeReconciler) ReconcilePaymentStatus(_ context.Context, orderID uuid.UUID) (*orders.ChangeResult, error) {
	f.seen = append(f.seen, orderID)
	if err := f.errs[orderID]; err != nil {
		return nil, err
	}
	if change, ok := f.changes[orderID]; ok {
		return change, nil
	}
	return &orders.ChangeResult{}, nil
}
