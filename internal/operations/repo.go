// Package operations stores the field and facility records that sit beside
// an order's status: driver assignments, processing steps and issue reports.
package operations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/internal/repo"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
)

// Repository persists operational rows. Lists come back newest first with id
// as the tie-breaker, which is the order the timeline merge expects.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAssignment(ctx context.Context, assignment *models.DriverAssignment) error
	CreateProcessing(ctx context.Context, step *models.OrderProcessing) error
	CreateIssue(ctx context.Context, issue *models.IssueReport) error
	ListAssignments(ctx context.Context, orderID uuid.UUID) ([]models.DriverAssignment, error)
	ListProcessing(ctx context.Context, orderID uuid.UUID) ([]models.OrderProcessing, error)
	ListIssues(ctx context.Context, orderID uuid.UUID) ([]models.IssueReport, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds the operations repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) CreateAssignment(ctx context.Context, assignment *models.DriverAssignment) error {
	return r.DB(ctx).Create(assignment).Error
}

func (r *repository) CreateProcessing(ctx context.Context, step *models.OrderProcessing) error {
	return r.DB(ctx).Create(step).Error
}

func (r *repository) CreateIssue(ctx context.Context, issue *models.IssueReport) error {
	return r.DB(ctx).Create(issue).Error
}

func (r *repository) ListAssignments(ctx context.Context, orderID uuid.UUID) ([]models.DriverAssignment, error) {
	var rows []models.DriverAssignment
	if err := r.newestFirst(ctx, orderID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListProcessing(ctx context.Context, orderID uuid.UUID) ([]models.OrderProcessing, error) {
	var rows []models.OrderProcessing
	if err := r.newestFirst(ctx, orderID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListIssues(ctx context.Context, orderID uuid.UUID) ([]models.IssueReport, error) {
	var rows []models.IssueReport
	if err := r.newestFirst(ctx, orderID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) newestFirst(ctx context.Context, orderID uuid.UUID) *gorm.DB {
	return r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("id DESC")
}
