package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/internal/transitions"
	"github.com/angelmondragon/laundrytrack-backend/internal/wallet"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records payments against orders and keeps the order payment
// status in step with the ledger.
type Service interface {
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*Result, error)
	UpdatePaymentStatus(ctx context.Context, input UpdatePaymentStatusInput) (*Result, error)
	RecalculateOrderPaymentStatus(ctx context.Context, orderID uuid.UUID) (*orders.ChangeResult, error)
	GetPaymentSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error)
	FindByConfirmation(ctx context.Context, confirmationID string) (*models.PaymentRecord, error)
}

// Config holds ledger settings.
type Config struct {
	Currency    string
	AmountScale int32
}

// RecordPaymentInput describes a new ledger row. Kind defaults to charge.
type RecordPaymentInput struct {
	OrderID        uuid.UUID
	Kind           enums.PaymentKind
	Amount         decimal.Decimal
	Currency       string
	Method         enums.PaymentMethod
	Status         enums.PaymentStatus
	ConfirmationID string
	Metadata       models.PaymentMetadata
	Notes          string
	ActorID        *uuid.UUID
}

// UpdatePaymentStatusInput moves an existing record along its lifecycle.
type UpdatePaymentStatusInput struct {
	PaymentID     uuid.UUID
	Status        enums.PaymentStatus
	FailureReason string
	GatewayRef    string
	ActorID       *uuid.UUID
}

// Result is returned by every ledger mutation.
type Result struct {
	Payment           *models.PaymentRecord
	Summary           Summary
	Change            *orders.ChangeResult
	WalletTransaction *models.WalletTransaction
}

// OverpaymentDetails is attached to OVERPAYMENT_REJECTED errors.
type OverpaymentDetails struct {
	Requested  string `json:"requested"`
	MaxAllowed string `json:"max_allowed"`
}

type service struct {
	repo        Repository
	ordersRepo  orders.Repository
	coordinator orders.Service
	wallets     wallet.Service
	tx          txRunner
	cfg         Config
	logg        *logger.Logger
	metrics     *metrics.OperationMetrics
}

// NewService wires the payment ledger. wallets may be nil when wallet
// payments are not offered; such payments are then rejected.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	coordinator orders.Service,
	wallets wallet.Service,
	tx txRunner,
	cfg Config,
	logg *logger.Logger,
	m *metrics.OperationMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("order coordinator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "BHD"
	}
	if cfg.AmountScale <= 0 {
		cfg.AmountScale = 3
	}
	return &service{
		repo:        repo,
		ordersRepo:  ordersRepo,
		coordinator: coordinator,
		wallets:     wallets,
		tx:          tx,
		cfg:         cfg,
		logg:        logg,
		metrics:     m,
	}, nil
}

func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (result *Result, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("record_payment", started, err) }()

	if input.Kind == "" {
		input.Kind = enums.PaymentKindCharge
	}
	if err := s.validateRecord(input); err != nil {
		return nil, err
	}
	input.Amount = input.Amount.Round(s.cfg.AmountScale)

	err = s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		res, err := s.recordInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "record payment")
	}

	logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
	logCtx = s.logg.WithPaymentID(logCtx, result.Payment.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"kind":           result.Payment.Kind,
		"amount":         result.Payment.Amount.StringFixed(s.cfg.AmountScale),
		"method":         result.Payment.PaymentMethod,
		"status":         result.Payment.PaymentStatus,
		"payment_status": result.Summary.PaymentStatus,
	})
	s.logg.Info(logCtx, "payment recorded")
	return result, nil
}

func (s *service) recordInTx(ctx context.Context, tx *gorm.DB, input RecordPaymentInput) (*Result, error) {
	repo := s.repo.WithTx(tx)

	order, err := s.lockOrder(ctx, tx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Currency != "" && !strings.EqualFold(input.Currency, order.Currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order is billed in %s", order.Currency))
	}

	records, err := repo.ListByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment records")
	}
	before := Summarize(order, records)
	if err := s.guard(before, input.Kind, input.Status, input.Amount); err != nil {
		return nil, err
	}

	record := &models.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Kind:          input.Kind,
		Amount:        input.Amount,
		Currency:      order.Currency,
		PaymentMethod: input.Method,
		PaymentStatus: input.Status,
		Metadata:      datatypes.NewJSONType(input.Metadata),
		CreatedBy:     input.ActorID,
	}
	if input.ConfirmationID != "" {
		confirmation := input.ConfirmationID
		record.ConfirmationID = &confirmation
	}
	if input.Notes != "" {
		notes := input.Notes
		record.Notes = &notes
	}
	if input.Status != enums.PaymentStatusPending {
		now := time.Now().UTC()
		record.ProcessedAt = &now
	}

	result := &Result{Payment: record}
	if input.Method == enums.PaymentMethodWallet {
		txn, err := s.moveWallet(ctx, tx, order, record, input.Kind, input.Status)
		if err != nil {
			return nil, err
		}
		result.WalletTransaction = txn
	}

	if err := repo.Create(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "confirmation_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment confirmation already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment record")
	}

	entry := paymentHistory(order.ID, input.ActorID, enums.HistoryActionPaymentRecorded, nil, record,
		fmt.Sprintf("Recorded %s of %s %s via %s (%s)", record.Kind, record.Amount.StringFixed(s.cfg.AmountScale), record.Currency, record.PaymentMethod, record.PaymentStatus))
	if err := s.ordersRepo.WithTx(tx).InsertHistory(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment history")
	}

	summary, change, err := s.recalculateInTx(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	result.Summary = summary
	result.Change = change
	return result, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, input UpdatePaymentStatusInput) (result *Result, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("update_payment_status", started, err) }()

	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", input.Status))
	}

	err = s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		res, err := s.updateInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "update payment status")
	}

	logCtx := s.logg.WithPaymentID(ctx, input.PaymentID.String())
	logCtx = s.logg.WithOrderID(logCtx, result.Payment.OrderID.String())
	logCtx = s.logg.WithField(logCtx, "status", result.Payment.PaymentStatus)
	s.logg.Info(logCtx, "payment status updated")
	return result, nil
}

func (s *service) updateInTx(ctx context.Context, tx *gorm.DB, input UpdatePaymentStatusInput) (*Result, error) {
	repo := s.repo.WithTx(tx)

	current, err := repo.FindByID(ctx, input.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment")
	}

	// Order first, then the record, matching RecordPayment's lock order.
	order, err := s.lockOrder(ctx, tx, current.OrderID)
	if err != nil {
		return nil, err
	}
	record, err := repo.LockByID(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
	}

	if record.PaymentStatus == input.Status {
		summary, err := s.summaryInTx(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		return &Result{Payment: record, Summary: summary}, nil
	}
	if err := transitions.ValidateRecord(record.PaymentStatus, input.Status); err != nil {
		return nil, err
	}
	if record.IsRefund() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund records cannot change status")
	}

	records, err := repo.ListByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment records")
	}
	before := Summarize(order, records)
	switch input.Status {
	case enums.PaymentStatusPaid:
		// Settling a pending charge re-checks the ceiling without the slack.
		if err := s.guard(before, enums.PaymentKindCharge, enums.PaymentStatusPaid, record.Amount); err != nil {
			return nil, err
		}
	case enums.PaymentStatusRefunded:
		if err := s.guard(before, enums.PaymentKindRefund, enums.PaymentStatusRefunded, record.Amount); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	if record.PaymentMethod == enums.PaymentMethodWallet {
		kind := enums.PaymentKindCharge
		if input.Status == enums.PaymentStatusRefunded {
			kind = enums.PaymentKindRefund
		}
		txn, err := s.moveWallet(ctx, tx, order, record, kind, input.Status)
		if err != nil {
			return nil, err
		}
		result.WalletTransaction = txn
	}

	old := *record
	meta := record.Metadata.Data()
	if input.FailureReason != "" {
		meta.FailureReason = input.FailureReason
	}
	if input.GatewayRef != "" {
		meta.GatewayRef = input.GatewayRef
	}
	now := time.Now().UTC()
	update := StatusUpdate{Status: input.Status, ProcessedAt: &now, Metadata: meta}
	if err := repo.UpdateStatus(ctx, record.ID, update); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	record.PaymentStatus = input.Status
	record.ProcessedAt = &now
	record.Metadata = datatypes.NewJSONType(meta)

	entry := paymentHistory(order.ID, input.ActorID, enums.HistoryActionPaymentUpdated, &old, record,
		fmt.Sprintf("Payment %s moved from %s to %s", record.ID, old.PaymentStatus, record.PaymentStatus))
	if err := s.ordersRepo.WithTx(tx).InsertHistory(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment history")
	}

	summary, change, err := s.recalculateInTx(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	result.Payment = record
	result.Summary = summary
	result.Change = change
	return result, nil
}

func (s *service) RecalculateOrderPaymentStatus(ctx context.Context, orderID uuid.UUID) (change *orders.ChangeResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("recalculate_payment_status", started, err) }()

	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	err = s.tx.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		_, res, err := s.recalculateInTx(ctx, tx, order)
		if err != nil {
			return err
		}
		change = res
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "recalculate payment status")
	}
	return change, nil
}

func (s *service) GetPaymentSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var summary Summary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.ordersRepo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
		}
		summary, err = s.summaryInTx(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, db.Classify(err, "get payment summary")
	}
	return &summary, nil
}

func (s *service) FindByConfirmation(ctx context.Context, confirmationID string) (*models.PaymentRecord, error) {
	if strings.TrimSpace(confirmationID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation id required")
	}
	record, err := s.repo.FindByConfirmation(ctx, confirmationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment by confirmation")
	}
	return record, nil
}

// recalculateInTx re-reads the record set inside tx and hands the derived
// status to the coordinator, which owns the write and its history entry.
func (s *service) recalculateInTx(ctx context.Context, tx *gorm.DB, order *models.Order) (Summary, *orders.ChangeResult, error) {
	summary, err := s.summaryInTx(ctx, tx, order)
	if err != nil {
		return Summary{}, nil, err
	}
	derived := summary.PaymentStatus
	change, err := s.coordinator.ApplyInTx(ctx, tx, orders.StatusChangeInput{
		OrderID:          order.ID,
		NewPaymentStatus: &derived,
		Source:           orders.SourceLedger,
	})
	if err != nil {
		return Summary{}, nil, err
	}
	return summary, change, nil
}

func (s *service) summaryInTx(ctx context.Context, tx *gorm.DB, order *models.Order) (Summary, error) {
	records, err := s.repo.WithTx(tx).ListByOrderID(ctx, order.ID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment records")
	}
	return Summarize(order, records), nil
}

func (s *service) lockOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ordersRepo.WithTx(tx).LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return order, nil
}

// guard enforces the overpayment ceiling against the summary read inside the
// current transaction. Failed charges move no money and are not checked.
func (s *service) guard(summary Summary, kind enums.PaymentKind, status enums.PaymentStatus, amount decimal.Decimal) error {
	if kind == enums.PaymentKindRefund {
		if limit := summary.maxRefund(); amount.GreaterThan(limit) {
			return s.overpayment(amount, limit, "refund exceeds amount paid")
		}
		return nil
	}
	if status == enums.PaymentStatusFailed {
		return nil
	}
	limit, ok := summary.maxCharge(status)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no invoice total yet")
	}
	if amount.GreaterThan(limit) {
		return s.overpayment(amount, limit, "payment exceeds outstanding amount")
	}
	return nil
}

func (s *service) overpayment(requested, limit decimal.Decimal, msg string) error {
	return pkgerrors.New(pkgerrors.CodeOverpayment, msg).WithDetails(OverpaymentDetails{
		Requested:  requested.StringFixed(s.cfg.AmountScale),
		MaxAllowed: limit.StringFixed(s.cfg.AmountScale),
	})
}

// moveWallet debits the customer wallet when a wallet charge is paid and
// credits it when money goes back.
func (s *service) moveWallet(
	ctx context.Context,
	tx *gorm.DB,
	order *models.Order,
	record *models.PaymentRecord,
	kind enums.PaymentKind,
	status enums.PaymentStatus,
) (*models.WalletTransaction, error) {
	if s.wallets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet payments are not available")
	}
	movement := wallet.MovementInput{
		CustomerID: order.CustomerID,
		OrderID:    order.ID,
		PaymentID:  record.ID,
		Amount:     record.Amount,
		Currency:   order.Currency,
	}
	switch {
	case kind == enums.PaymentKindRefund || status == enums.PaymentStatusRefunded:
		return s.wallets.Credit(ctx, tx, movement)
	case status == enums.PaymentStatusPaid:
		return s.wallets.Debit(ctx, tx, movement)
	case status == enums.PaymentStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet payments settle immediately")
	default:
		return nil, nil
	}
}

func (s *service) validateRecord(input RecordPaymentInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Round(s.cfg.AmountScale)) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount supports at most %d decimal places", s.cfg.AmountScale))
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment kind %q", input.Kind))
	}
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.Method))
	}
	if !input.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", input.Status))
	}
	if input.Kind == enums.PaymentKindRefund && input.Status != enums.PaymentStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeValidation, "refunds are recorded with status REFUNDED")
	}
	if input.Kind == enums.PaymentKindCharge && input.Status == enums.PaymentStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeValidation, "record a refund instead of a REFUNDED charge")
	}
	if input.Currency != "" && !strings.EqualFold(input.Currency, s.cfg.Currency) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("only %s payments are accepted", s.cfg.Currency))
	}
	return nil
}

func paymentHistory(
	orderID uuid.UUID,
	actorID *uuid.UUID,
	action enums.HistoryAction,
	old, current *models.PaymentRecord,
	description string,
) *models.OrderHistoryEntry {
	entry := &models.OrderHistoryEntry{
		OrderID:     orderID,
		StaffID:     actorID,
		Action:      action,
		NewValue:    datatypes.NewJSONType(models.HistoryValue{Payment: snapshot(current)}),
		Description: description,
		Metadata:    datatypes.NewJSONType(models.HistoryMetadata{Source: orders.SourceLedger}),
	}
	if old != nil {
		entry.OldValue = datatypes.NewJSONType(models.HistoryValue{Payment: snapshot(old)})
	}
	return entry
}

func snapshot(record *models.PaymentRecord) *models.PaymentSnapshot {
	snap := &models.PaymentSnapshot{
		PaymentID: record.ID,
		Kind:      record.Kind,
		Amount:    record.Amount,
		Method:    record.PaymentMethod,
		Status:    record.PaymentStatus,
	}
	if record.ConfirmationID != nil {
		snap.Confirmation = *record.ConfirmationID
	}
	return snap
}
