package tracking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

var assignmentTargets = map[enums.DriverAssignmentKind]enums.OrderStatus{
	enums.DriverAssignmentPickup:   enums.OrderStatusPickupAssigned,
	enums.DriverAssignmentDelivery: enums.OrderStatusDeliveryAssigned,
}

// AssignDriver records the assignment and moves the order to the matching
// *_ASSIGNED status in one transaction. Reassigning a driver while the order
// already sits in that status only adds the assignment row.
func (s *service) AssignDriver(ctx context.Context, req AssignDriverRequest) (*AssignmentResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	target := assignmentTargets[req.Kind]
	source := sourceFor(req.AssignedBy, orders.SourceAdmin)

	var result *AssignmentResult
	err := s.retry(ctx, "tracking_assign_driver", func(ctx context.Context) error {
		return s.inTx(ctx, "assign driver", func(tx *gorm.DB) error {
			change, err := s.coordinator.ApplyInTx(ctx, tx, orders.StatusChangeInput{
				OrderID:   req.OrderID,
				ActorID:   req.AssignedBy,
				NewStatus: &target,
				Notes:     req.Notes,
				Source:    source,
			})
			if err != nil {
				return err
			}
			assignment := &models.DriverAssignment{
				OrderID:    req.OrderID,
				DriverID:   req.DriverID,
				AssignedBy: req.AssignedBy,
				Kind:       req.Kind,
				Notes:      optionalString(req.Notes),
			}
			if err := s.ops.WithTx(tx).CreateAssignment(ctx, assignment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create driver assignment")
			}
			result = &AssignmentResult{Assignment: assignment, Change: change}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, req.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"driver_id": req.DriverID.String(),
		"kind":      req.Kind,
	})
	s.logg.Info(logCtx, "driver assigned")

	s.notify(ctx, result.Change, req.AssignedBy, source, nil)
	return result, nil
}

// RecordProcessingUpdate stores a facility step. When NewStatus is set the
// order moves in the same transaction.
func (s *service) RecordProcessingUpdate(ctx context.Context, req ProcessingUpdateRequest) (*ProcessingResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	source := sourceFor(req.StaffID, orders.SourceFacility)

	var result *ProcessingResult
	err := s.retry(ctx, "tracking_processing_update", func(ctx context.Context) error {
		return s.inTx(ctx, "record processing update", func(tx *gorm.DB) error {
			var change *orders.ChangeResult
			if req.NewStatus != nil {
				res, err := s.coordinator.ApplyInTx(ctx, tx, orders.StatusChangeInput{
					OrderID:   req.OrderID,
					ActorID:   req.StaffID,
					NewStatus: req.NewStatus,
					Notes:     req.Notes,
					Source:    source,
				})
				if err != nil {
					return err
				}
				change = res
			} else if err := s.requireOrder(ctx, tx, req.OrderID); err != nil {
				return err
			}

			step := &models.OrderProcessing{
				OrderID:   req.OrderID,
				StaffID:   req.StaffID,
				Stage:     req.Stage,
				ItemCount: req.ItemCount,
				Notes:     optionalString(req.Notes),
			}
			if err := s.ops.WithTx(tx).CreateProcessing(ctx, step); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create processing update")
			}
			result = &ProcessingResult{Processing: step, Change: change}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, result.Change, req.StaffID, source, nil)
	return result, nil
}

func (s *service) ReportIssue(ctx context.Context, req ReportIssueRequest) (*models.IssueReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var issue *models.IssueReport
	err := s.retry(ctx, "tracking_report_issue", func(ctx context.Context) error {
		return s.inTx(ctx, "report issue", func(tx *gorm.DB) error {
			if err := s.requireOrder(ctx, tx, req.OrderID); err != nil {
				return err
			}
			row := &models.IssueReport{
				OrderID:     req.OrderID,
				ReportedBy:  req.ReportedBy,
				Type:        req.Type,
				Severity:    req.Severity,
				Description: strings.TrimSpace(req.Description),
			}
			if err := s.ops.WithTx(tx).CreateIssue(ctx, row); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create issue report")
			}
			issue = row
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, req.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"issue_type": req.Type,
		"severity":   req.Severity,
	})
	s.logg.Info(logCtx, "issue reported")
	return issue, nil
}

func (s *service) inTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if err := s.tx.WithSerializableTx(ctx, fn); err != nil {
		return db.Classify(err, op)
	}
	return nil
}

// requireOrder locks the order row so operational rows never outlive a
// concurrent status decision on the same order.
func (s *service) requireOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if _, err := s.orders.WithTx(tx).LockOrder(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
