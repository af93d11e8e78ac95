package tracking

import (
	"context"
	"strings"

	"github.com/angelmondragon/laundrytrack-backend/internal/ledger"
	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

const (
	settlementScope  = "settlement"
	settlementSource = "gateway"
)

// SettlementResult reports how a gateway delivery was applied. Duplicate is
// true when the delivery changed nothing because it was already recorded.
type SettlementResult struct {
	Payment   *models.PaymentRecord
	Summary   ledger.Summary
	Change    *orders.ChangeResult
	Duplicate bool
}

// SettlementMismatch is attached to a rejected redelivery whose amount
// differs from the recorded payment.
type SettlementMismatch struct {
	Recorded string `json:"recorded"`
	Received string `json:"received"`
}

// RecordGatewaySettlement applies one gateway delivery exactly once per
// confirmation id and status. Redis screens repeats cheaply; the unique
// confirmation index on payment records is what actually guarantees it.
func (s *service) RecordGatewaySettlement(ctx context.Context, in GatewaySettlement) (*SettlementResult, error) {
	if err := validateRequest(in); err != nil {
		return nil, err
	}
	in.ConfirmationID = strings.TrimSpace(in.ConfirmationID)
	key := in.ConfirmationID + ":" + string(in.Status)

	claimed := false
	if s.settlements != nil {
		already, err := s.settlements.CheckAndMark(ctx, settlementScope, key)
		switch {
		case err != nil:
			logCtx := s.logg.WithField(ctx, "confirmation_id", in.ConfirmationID)
			logCtx = s.logg.WithField(logCtx, "error", err.Error())
			s.logg.Warn(logCtx, "settlement dedupe unavailable, relying on database")
		case already:
			if result, ok := s.knownSettlement(ctx, in); ok {
				return result, nil
			}
		default:
			claimed = true
		}
	}

	result, err := s.applySettlement(ctx, in)
	if err != nil {
		if claimed {
			if relErr := s.settlements.Release(ctx, settlementScope, key); relErr != nil {
				logCtx := s.logg.WithField(ctx, "confirmation_id", in.ConfirmationID)
				s.logg.Error(logCtx, "release settlement claim", relErr)
			}
		}
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, in.OrderID.String())
	logCtx = s.logg.WithPaymentID(logCtx, result.Payment.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"confirmation_id": in.ConfirmationID,
		"status":          in.Status,
		"duplicate":       result.Duplicate,
	})
	s.logg.Info(logCtx, "gateway settlement applied")
	return result, nil
}

// applySettlement resolves the delivery against the ledger. A concurrent
// insert of the same confirmation surfaces as CONFLICT once and is then
// re-resolved against the winning row.
func (s *service) applySettlement(ctx context.Context, in GatewaySettlement) (*SettlementResult, error) {
	for attempt := 0; ; attempt++ {
		existing, err := s.ledger.FindByConfirmation(ctx, in.ConfirmationID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			result, err := s.recordSettlement(ctx, in)
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) && attempt == 0 {
				continue
			}
			return result, err
		case err != nil:
			return nil, err
		default:
			return s.reconcileSettlement(ctx, in, existing)
		}
	}
}

func (s *service) recordSettlement(ctx context.Context, in GatewaySettlement) (*SettlementResult, error) {
	var result *ledger.Result
	err := s.retry(ctx, "tracking_gateway_settlement", func(ctx context.Context) error {
		res, err := s.ledger.RecordPayment(ctx, ledger.RecordPaymentInput{
			OrderID:        in.OrderID,
			Kind:           enums.PaymentKindCharge,
			Amount:         in.Amount,
			Currency:       in.Currency,
			Method:         in.Method,
			Status:         in.Status,
			ConfirmationID: in.ConfirmationID,
			Metadata: models.PaymentMetadata{
				Source:        settlementSource,
				Gateway:       in.Gateway,
				GatewayRef:    in.GatewayRef,
				FailureReason: in.FailureReason,
			},
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result.Change, nil, orders.SourceLedger, &result.Summary)
	return &SettlementResult{Payment: result.Payment, Summary: result.Summary, Change: result.Change}, nil
}

// reconcileSettlement handles a delivery whose confirmation is already on
// file. A matching status is a duplicate, a stale PENDING after the record
// moved on is ignored, and anything else is a lifecycle move.
func (s *service) reconcileSettlement(ctx context.Context, in GatewaySettlement, existing *models.PaymentRecord) (*SettlementResult, error) {
	if existing.OrderID != in.OrderID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "confirmation id belongs to another order")
	}
	if !existing.Amount.Equal(in.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "settlement amount differs from recorded payment").
			WithDetails(SettlementMismatch{
				Recorded: existing.Amount.StringFixed(3),
				Received: in.Amount.StringFixed(3),
			})
	}
	if existing.PaymentStatus == in.Status || in.Status == enums.PaymentStatusPending {
		return s.duplicateResult(ctx, existing)
	}

	var result *ledger.Result
	err := s.retry(ctx, "tracking_gateway_settlement", func(ctx context.Context) error {
		res, err := s.ledger.UpdatePaymentStatus(ctx, ledger.UpdatePaymentStatusInput{
			PaymentID:     existing.ID,
			Status:        in.Status,
			FailureReason: in.FailureReason,
			GatewayRef:    in.GatewayRef,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result.Change, nil, orders.SourceLedger, &result.Summary)
	return &SettlementResult{Payment: result.Payment, Summary: result.Summary, Change: result.Change}, nil
}

// knownSettlement answers a redelivery from the database when Redis says the
// key was seen. It reports false when the ledger holds no matching row yet,
// so the caller falls through to the authoritative path.
func (s *service) knownSettlement(ctx context.Context, in GatewaySettlement) (*SettlementResult, bool) {
	existing, err := s.ledger.FindByConfirmation(ctx, in.ConfirmationID)
	if err != nil || existing.OrderID != in.OrderID || existing.PaymentStatus != in.Status {
		return nil, false
	}
	result, err := s.duplicateResult(ctx, existing)
	if err != nil {
		return nil, false
	}
	return result, true
}

func (s *service) duplicateResult(ctx context.Context, record *models.PaymentRecord) (*SettlementResult, error) {
	summary, err := s.ledger.GetPaymentSummary(ctx, record.OrderID)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{Payment: record, Summary: *summary, Duplicate: true}, nil
}
