// Package tracking is the single entry point callers use to move orders and
// money. It validates requests, retries serialization conflicts and tells
// the notifier about committed changes.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/ledger"
	"github.com/angelmondragon/laundrytrack-backend/internal/notifications"
	"github.com/angelmondragon/laundrytrack-backend/internal/operations"
	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/internal/timeline"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/laundrytrack-backend/pkg/pagination"
)

const (
	defaultMaxConflictRetries = 4
	defaultBackoffBase        = 25 * time.Millisecond
	defaultBackoffCap         = 500 * time.Millisecond
	backoffJitterPercent      = 20
)

type txRunner interface {
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order tracking facade.
type Service interface {
	ApplyStatusChange(ctx context.Context, req StatusChangeRequest) (*orders.ChangeResult, error)
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*ledger.Result, error)
	UpdatePaymentStatus(ctx context.Context, req UpdatePaymentStatusRequest) (*ledger.Result, error)
	RecordGatewaySettlement(ctx context.Context, settlement GatewaySettlement) (*SettlementResult, error)
	AssignDriver(ctx context.Context, req AssignDriverRequest) (*AssignmentResult, error)
	RecordProcessingUpdate(ctx context.Context, req ProcessingUpdateRequest) (*ProcessingResult, error)
	ReportIssue(ctx context.Context, req ReportIssueRequest) (*models.IssueReport, error)
	BuildTimeline(ctx context.Context, orderID uuid.UUID) ([]timeline.Event, error)
	PageTimeline(ctx context.Context, orderID uuid.UUID, params pagination.Params) (*timeline.Page, error)
	GetPaymentSummary(ctx context.Context, orderID uuid.UUID) (*ledger.Summary, error)
	ReconcilePaymentStatus(ctx context.Context, orderID uuid.UUID) (*orders.ChangeResult, error)
}

// Config bounds the conflict retry loop.
type Config struct {
	MaxConflictRetries  uint64
	ConflictBackoffBase time.Duration
	ConflictBackoffCap  time.Duration
}

// ServiceParams lists the facade collaborators. Notifier and Settlements
// are optional.
type ServiceParams struct {
	Config      Config
	Coordinator orders.Service
	Orders      orders.Repository
	Ledger      ledger.Service
	Timeline    timeline.Service
	Operations  operations.Repository
	Tx          txRunner
	Notifier    notifications.Notifier
	Settlements *idempotency.Manager
	Logger      *logger.Logger
	Metrics     *metrics.OperationMetrics
}

// AssignmentResult is returned by AssignDriver.
type AssignmentResult struct {
	Assignment *models.DriverAssignment
	Change     *orders.ChangeResult
}

// ProcessingResult is returned by RecordProcessingUpdate. Change is nil when
// no status move was requested.
type ProcessingResult struct {
	Processing *models.OrderProcessing
	Change     *orders.ChangeResult
}

type service struct {
	cfg         Config
	coordinator orders.Service
	orders      orders.Repository
	ledger      ledger.Service
	timeline    timeline.Service
	ops         operations.Repository
	tx          txRunner
	notifier    notifications.Notifier
	settlements *idempotency.Manager
	logg        *logger.Logger
	metrics     *metrics.OperationMetrics
}

// NewService wires the tracking facade.
func NewService(params ServiceParams) (Service, error) {
	if params.Coordinator == nil {
		return nil, fmt.Errorf("order coordinator required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if params.Timeline == nil {
		return nil, fmt.Errorf("timeline service required")
	}
	if params.Operations == nil {
		return nil, fmt.Errorf("operations repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.ConflictBackoffBase <= 0 {
		cfg.ConflictBackoffBase = defaultBackoffBase
	}
	if cfg.ConflictBackoffCap < cfg.ConflictBackoffBase {
		cfg.ConflictBackoffCap = max(defaultBackoffCap, cfg.ConflictBackoffBase)
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = defaultMaxConflictRetries
	}

	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}

	return &service{
		cfg:         cfg,
		coordinator: params.Coordinator,
		orders:      params.Orders,
		ledger:      params.Ledger,
		timeline:    params.Timeline,
		ops:         params.Operations,
		tx:          params.Tx,
		notifier:    notifier,
		settlements: params.Settlements,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

func (s *service) ApplyStatusChange(ctx context.Context, req StatusChangeRequest) (*orders.ChangeResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	source := sourceFor(req.ActorID, orders.SourceAdmin)
	var result *orders.ChangeResult
	err := s.retry(ctx, "tracking_status_change", func(ctx context.Context) error {
		res, err := s.coordinator.ApplyStatusChange(ctx, orders.StatusChangeInput{
			OrderID:          req.OrderID,
			ActorID:          req.ActorID,
			NewStatus:        req.NewStatus,
			NewPaymentStatus: req.NewPaymentStatus,
			Notes:            req.Notes,
			Source:           source,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result, req.ActorID, source, nil)
	return result, nil
}

func (s *service) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*ledger.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var result *ledger.Result
	err := s.retry(ctx, "tracking_record_payment", func(ctx context.Context) error {
		res, err := s.ledger.RecordPayment(ctx, ledger.RecordPaymentInput{
			OrderID:        req.OrderID,
			Kind:           req.Kind,
			Amount:         req.Amount,
			Currency:       req.Currency,
			Method:         req.Method,
			Status:         req.Status,
			ConfirmationID: req.ConfirmationID,
			Metadata:       models.PaymentMetadata{Source: orders.SourceAdmin},
			Notes:          req.Notes,
			ActorID:        req.ActorID,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result.Change, req.ActorID, orders.SourceLedger, &result.Summary)
	return result, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, req UpdatePaymentStatusRequest) (*ledger.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var result *ledger.Result
	err := s.retry(ctx, "tracking_update_payment", func(ctx context.Context) error {
		res, err := s.ledger.UpdatePaymentStatus(ctx, ledger.UpdatePaymentStatusInput{
			PaymentID:     req.PaymentID,
			Status:        req.Status,
			FailureReason: req.FailureReason,
			GatewayRef:    req.GatewayRef,
			ActorID:       req.ActorID,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result.Change, req.ActorID, orders.SourceLedger, &result.Summary)
	return result, nil
}

func (s *service) BuildTimeline(ctx context.Context, orderID uuid.UUID) ([]timeline.Event, error) {
	return s.timeline.BuildTimeline(ctx, orderID)
}

func (s *service) PageTimeline(ctx context.Context, orderID uuid.UUID, params pagination.Params) (*timeline.Page, error) {
	return s.timeline.PageTimeline(ctx, orderID, params)
}

func (s *service) GetPaymentSummary(ctx context.Context, orderID uuid.UUID) (*ledger.Summary, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.ledger.GetPaymentSummary(ctx, orderID)
}

// ReconcilePaymentStatus re-derives the order's payment status from its
// ledger and notifies when it moved.
func (s *service) ReconcilePaymentStatus(ctx context.Context, orderID uuid.UUID) (*orders.ChangeResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var result *orders.ChangeResult
	err := s.retry(ctx, "tracking_reconcile_payment", func(ctx context.Context) error {
		res, err := s.ledger.RecalculateOrderPaymentStatus(ctx, orderID)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result, nil, orders.SourceSystem, nil)
	return result, nil
}

// retry runs fn until it succeeds, fails with anything other than a
// concurrency conflict, or the retry budget runs out. The last conflict is
// returned as is.
func (s *service) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(s.cfg.ConflictBackoffBase)
	backoff = retry.WithCappedDuration(s.cfg.ConflictBackoffCap, backoff)
	backoff = retry.WithJitterPercent(backoffJitterPercent, backoff)
	backoff = retry.WithMaxRetries(s.cfg.MaxConflictRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeConcurrency) {
			if attempt > 1 {
				s.metrics.IncRetry(op)
			}
			logCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt})
			s.logg.Debug(logCtx, "concurrency conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// notify reports a committed change. Failures are logged and swallowed.
func (s *service) notify(ctx context.Context, result *orders.ChangeResult, actorID *uuid.UUID, source string, summary *ledger.Summary) {
	change, ok := notifications.FromResult(result, actorID, source)
	if !ok {
		return
	}
	if summary != nil {
		change.TotalPaid = summary.TotalPaid.StringFixed(3)
		if summary.Outstanding.Valid {
			outstanding := summary.Outstanding.Decimal.StringFixed(3)
			change.Outstanding = &outstanding
		}
	}
	if err := s.notifier.OrderChanged(ctx, change); err != nil {
		logCtx := s.logg.WithOrderID(ctx, change.OrderID.String())
		logCtx = s.logg.WithField(logCtx, "error", err.Error())
		s.logg.Warn(logCtx, "order change notification failed")
	}
}

func sourceFor(actorID *uuid.UUID, withActor string) string {
	if actorID == nil {
		return orders.SourceSystem
	}
	return withActor
}
