package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// PaymentMetadata carries gateway correlation data for a payment record.
type PaymentMetadata struct {
	Source        string     `json:"source,omitempty"`
	Gateway       string     `json:"gateway,omitempty"`
	GatewayRef    string     `json:"gateway_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RefundOf      *uuid.UUID `json:"refund_of,omitempty"`
}

// PaymentRecord is one append-only ledger row. Amount, Kind and OrderID never
// change after insert; refunds are separate rows with Kind refund.
type PaymentRecord struct {
	ID             uuid.UUID                           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID                           `gorm:"column:order_id;type:uuid;not null;index"`
	Kind           enums.PaymentKind                   `gorm:"column:kind;type:text;not null;default:'charge'"`
	Amount         decimal.Decimal                     `gorm:"column:amount;type:numeric(12,3);not null"`
	Currency       string                              `gorm:"column:currency;type:text;not null"`
	PaymentMethod  enums.PaymentMethod                 `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus  enums.PaymentStatus                 `gorm:"column:payment_status;type:text;not null"`
	ConfirmationID *string                             `gorm:"column:confirmation_id;type:text;uniqueIndex"`
	ProcessedAt    *time.Time                          `gorm:"column:processed_at"`
	Metadata       datatypes.JSONType[PaymentMetadata] `gorm:"column:metadata"`
	Notes          *string                             `gorm:"column:notes"`
	CreatedBy      *uuid.UUID                          `gorm:"column:created_by;type:uuid"`
	CreatedAt      time.Time                           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsRefund reports whether the row returns money to the customer.
func (p PaymentRecord) IsRefund() bool {
	return p.Kind == enums.PaymentKindRefund
}
