package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
)

const (
	defaultReconcileLookback = 24 * time.Hour
	defaultReconcileBatch    = 200
)

type activityLister interface {
	ListOrdersActiveSince(ctx context.Context, since time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type paymentReconciler interface {
	ReconcilePaymentStatus(ctx context.Context, orderID uuid.UUID) (*orders.ChangeResult, error)
}

type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Payments   activityLister
	Reconciler paymentReconciler
	Lookback   time.Duration
	BatchSize  int
}

// NewPaymentReconcileJob re-derives the payment status of every order whose
// ledger moved inside the lookback window. A healthy system finds nothing to
// repair; any change it makes is logged as drift.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		payments:   params.Payments,
		reconciler: params.Reconciler,
		lookback:   lookback,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	payments   activityLister
	reconciler paymentReconciler
	lookback   time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) (int64, error) {
	since := j.now().UTC().Add(-j.lookback)
	var (
		after    uuid.UUID
		checked  int
		repaired int64
		failures error
	)
	for {
		ids, err := j.payments.ListOrdersActiveSince(ctx, since, after, j.batch)
		if err != nil {
			return repaired, fmt.Errorf("list active orders: %w", err)
		}
		for _, orderID := range ids {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			checked++
			change, err := j.reconciler.ReconcilePaymentStatus(ctx, orderID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					continue
				}
				failures = multierr.Append(failures, fmt.Errorf("order %s: %w", orderID, err))
				continue
			}
			if change.Changed() && change.PaymentStatusChanged {
				repaired++
				logCtx := j.logg.WithOrderID(ctx, orderID.String())
				logCtx = j.logg.WithFields(logCtx, map[string]any{
					"old_payment_status": change.OldPaymentStatus,
					"new_payment_status": change.NewPaymentStatus,
					"auto_advanced":      change.AutoAdvanced,
				})
				j.logg.Warn(logCtx, "payment status drift repaired")
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"since":    since,
		"checked":  checked,
		"repaired": repaired,
	})
	if failures != nil {
		failed := len(multierr.Errors(failures))
		return repaired, fmt.Errorf("payment reconcile: %d of %d orders failed: %w", failed, checked, failures)
	}
	j.logg.Info(logCtx, "payment reconciliation complete")
	return repaired, nil
}
