package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/transitions"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
)

// RulePaymentSettledRelease is the automatic move applied when a processed
// order becomes fully paid.
const RulePaymentSettledRelease = "payment_settled_release"

// SourceLedger marks payment status derived from the record set. Edge checks
// are not applied to it.
const (
	SourceAdmin    = "admin"
	SourceLedger   = "ledger"
	SourceSystem   = "system"
	SourceDriver   = "driver"
	SourceFacility = "facility"
)

type txRunner interface {
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service applies validated status changes to orders. It is the only writer
// of Order.Status and Order.PaymentStatus.
type Service interface {
	// ApplyStatusChange opens its own serializable transaction.
	ApplyStatusChange(ctx context.Context, input StatusChangeInput) (*ChangeResult, error)
	// ApplyInTx runs inside a transaction owned by the caller, such as the
	// payment ledger. The caller commits or rolls back.
	ApplyInTx(ctx context.Context, tx *gorm.DB, input StatusChangeInput) (*ChangeResult, error)
}

// Config toggles coordinator behaviour.
type Config struct {
	AutoAdvanceOnPaid bool
}

// StatusChangeInput describes one requested change. Nil fields are left alone.
type StatusChangeInput struct {
	OrderID          uuid.UUID
	ActorID          *uuid.UUID
	NewStatus        *enums.OrderStatus
	NewPaymentStatus *enums.OrderPaymentStatus
	Notes            string
	Source           string
}

// ChangeResult reports what the coordinator persisted.
type ChangeResult struct {
	Order                *models.Order
	OldStatus            enums.OrderStatus
	NewStatus            enums.OrderStatus
	OldPaymentStatus     enums.OrderPaymentStatus
	NewPaymentStatus     enums.OrderPaymentStatus
	StatusChanged        bool
	PaymentStatusChanged bool
	AutoAdvanced         bool
}

// Changed reports whether anything was written.
func (r *ChangeResult) Changed() bool {
	return r != nil && (r.StatusChanged || r.PaymentStatusChanged)
}

type service struct {
	repo    Repository
	tx      txRunner
	cfg     Config
	logg    *logger.Logger
	metrics *metrics.OperationMetrics
}

// NewService builds the order status coordinator.
func NewService(repo Repository, tx txRunner, cfg Config, logg *logger.Logger, m *metrics.OperationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		cfg:     cfg,
		logg:    logg,
		metrics: m,
	}, nil
}

func (s *service) ApplyStatusChange(ctx context.Context, input StatusChangeInput) (result *ChangeResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("apply_status_change", started, err) }()

	if err := validateInput(input); err != nil {
		return nil, err
	}

	err = s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		res, err := s.ApplyInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "apply status change")
	}

	if result.Changed() {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithActorID(logCtx, actorString(input.ActorID))
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"old_status":         result.OldStatus,
			"new_status":         result.NewStatus,
			"old_payment_status": result.OldPaymentStatus,
			"new_payment_status": result.NewPaymentStatus,
			"auto_advanced":      result.AutoAdvanced,
		})
		s.logg.Info(logCtx, "order status change applied")
	}
	return result, nil
}

func (s *service) ApplyInTx(ctx context.Context, tx *gorm.DB, input StatusChangeInput) (*ChangeResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.LockOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}

	result := &ChangeResult{
		OldStatus:        order.Status,
		NewStatus:        order.Status,
		OldPaymentStatus: order.PaymentStatus,
		NewPaymentStatus: order.PaymentStatus,
	}

	// Both fields are validated before anything is written.
	if input.NewStatus != nil {
		if err := transitions.ValidateOrder(order.Status, *input.NewStatus); err != nil {
			return nil, err
		}
		result.NewStatus = *input.NewStatus
	}
	// A status derived from the payment records always wins, so a drifted or
	// overridden value can be repaired from any state.
	if input.NewPaymentStatus != nil {
		if input.Source != SourceLedger {
			if err := transitions.ValidatePayment(order.PaymentStatus, *input.NewPaymentStatus); err != nil {
				return nil, err
			}
		}
		result.NewPaymentStatus = *input.NewPaymentStatus
	}

	meta := models.HistoryMetadata{Source: sourceOrDefault(input.Source, input.ActorID), Notes: input.Notes}

	if result.NewStatus != result.OldStatus {
		if err := s.writeStatus(ctx, repo, order.ID, result.OldStatus, result.NewStatus, input.ActorID, meta); err != nil {
			return nil, err
		}
		order.Status = result.NewStatus
		result.StatusChanged = true
	}

	if result.NewPaymentStatus != result.OldPaymentStatus {
		if err := repo.UpdatePaymentStatus(ctx, order.ID, result.NewPaymentStatus); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
		}
		entry := &models.OrderHistoryEntry{
			OrderID:     order.ID,
			StaffID:     input.ActorID,
			Action:      enums.HistoryActionPaymentStatusChange,
			OldValue:    datatypes.NewJSONType(models.HistoryValue{PaymentStatus: result.OldPaymentStatus}),
			NewValue:    datatypes.NewJSONType(models.HistoryValue{PaymentStatus: result.NewPaymentStatus}),
			Description: fmt.Sprintf("Payment status changed from %s to %s", result.OldPaymentStatus, result.NewPaymentStatus),
			Metadata:    datatypes.NewJSONType(meta),
		}
		if err := repo.InsertHistory(ctx, entry); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment status history")
		}
		order.PaymentStatus = result.NewPaymentStatus
		result.PaymentStatusChanged = true
	}

	if s.shouldAutoAdvance(result, order) {
		next := enums.OrderStatusQualityCheck
		if err := transitions.ValidateOrder(order.Status, next); err != nil {
			return nil, err
		}
		autoMeta := models.HistoryMetadata{Source: SourceSystem, Rule: RulePaymentSettledRelease}
		if err := s.writeStatus(ctx, repo, order.ID, order.Status, next, nil, autoMeta); err != nil {
			return nil, err
		}
		order.Status = next
		result.NewStatus = next
		result.StatusChanged = true
		result.AutoAdvanced = true
	}

	result.Order = order
	return result, nil
}

// shouldAutoAdvance fires when this change made a PROCESSING_COMPLETED order
// fully paid.
func (s *service) shouldAutoAdvance(result *ChangeResult, order *models.Order) bool {
	if !s.cfg.AutoAdvanceOnPaid || !result.PaymentStatusChanged {
		return false
	}
	return order.PaymentStatus == enums.OrderPaymentStatusPaid &&
		order.Status == enums.OrderStatusProcessingCompleted
}

func (s *service) writeStatus(
	ctx context.Context,
	repo Repository,
	orderID uuid.UUID,
	from, to enums.OrderStatus,
	actorID *uuid.UUID,
	meta models.HistoryMetadata,
) error {
	if err := repo.UpdateStatus(ctx, orderID, to); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	description := fmt.Sprintf("Status changed from %s to %s", from, to)
	if meta.Rule != "" {
		description = fmt.Sprintf("%s (%s)", description, meta.Rule)
	}
	entry := &models.OrderHistoryEntry{
		OrderID:     orderID,
		StaffID:     actorID,
		Action:      enums.HistoryActionStatusChange,
		OldValue:    datatypes.NewJSONType(models.HistoryValue{Status: from}),
		NewValue:    datatypes.NewJSONType(models.HistoryValue{Status: to}),
		Description: description,
		Metadata:    datatypes.NewJSONType(meta),
	}
	if err := repo.InsertHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert status history")
	}

	message := description
	if meta.Notes != "" {
		message = meta.Notes
	}
	update := &models.OrderUpdate{
		OrderID: orderID,
		Status:  to,
		Message: message,
		ActorID: actorID,
	}
	if err := repo.InsertOrderUpdate(ctx, update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order update")
	}
	return nil
}

func validateInput(input StatusChangeInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.NewStatus == nil && input.NewPaymentStatus == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "status or payment status required")
	}
	if input.NewStatus != nil && !input.NewStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", *input.NewStatus))
	}
	if input.NewPaymentStatus != nil && !input.NewPaymentStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", *input.NewPaymentStatus))
	}
	return nil
}

func sourceOrDefault(source string, actorID *uuid.UUID) string {
	if source != "" {
		return source
	}
	if actorID == nil {
		return SourceSystem
	}
	return SourceAdmin
}

func actorString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
