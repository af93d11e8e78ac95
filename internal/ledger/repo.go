package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Repository manages persistence for payment records. Records are never
// deleted and only their status, processed time and metadata change.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PaymentRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	FindByConfirmation(ctx context.Context, confirmationID string) (*models.PaymentRecord, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error
	ListOrdersActiveSince(ctx context.Context, since time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// StatusUpdate carries the mutable columns of a payment record.
type StatusUpdate struct {
	Status      enums.PaymentStatus
	ProcessedAt *time.Time
	Metadata    models.PaymentMetadata
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment record repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByConfirmation(ctx context.Context, confirmationID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("confirmation_id = ?", confirmationID).
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status": update.Status,
			"processed_at":   update.ProcessedAt,
			"metadata":       datatypes.NewJSONType(update.Metadata),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// ListOrdersActiveSince pages through the distinct orders whose payment
// records changed at or after since, in id order, starting past after.
func (r *repository) ListOrdersActiveSince(ctx context.Context, since time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("updated_at >= ?", since.UTC())
	if after != uuid.Nil {
		query = query.Where("order_id > ?", after)
	}
	err := query.
		Distinct("order_id").
		Order("order_id").
		Limit(limit).
		Pluck("order_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
