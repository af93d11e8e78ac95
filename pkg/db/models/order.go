package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Order is the laundry order aggregate. Status and PaymentStatus are written
// only by the order coordinator; pricing fields belong to the pricing service.
type Order struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                   `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	CustomerID        uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index"`
	Status            enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'ORDER_PLACED'"`
	PaymentStatus     enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	InvoiceTotal      decimal.NullDecimal      `gorm:"column:invoice_total;type:numeric(12,3)"`
	MinimumFeeApplied bool                     `gorm:"column:minimum_fee_applied;not null;default:false"`
	MinimumOrderFee   decimal.Decimal          `gorm:"column:minimum_order_fee;type:numeric(12,3);not null;default:0"`
	Currency          string                   `gorm:"column:currency;type:text;not null;default:'BHD'"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// AmountDue returns the final amount owed. The minimum order fee acts as a
// floor when it applies. ok is false until the invoice total is computed.
func (o Order) AmountDue() (amount decimal.Decimal, ok bool) {
	if !o.InvoiceTotal.Valid {
		return decimal.Zero, false
	}
	due := o.InvoiceTotal.Decimal
	if o.MinimumFeeApplied && due.LessThan(o.MinimumOrderFee) {
		due = o.MinimumOrderFee
	}
	return due, true
}

// PaymentCeiling is the most the ledger may collect right now. Before the
// invoice exists only the minimum order fee may be taken up front.
func (o Order) PaymentCeiling() (amount decimal.Decimal, ok bool) {
	if due, ok := o.AmountDue(); ok {
		return due, true
	}
	if o.MinimumFeeApplied && o.MinimumOrderFee.IsPositive() {
		return o.MinimumOrderFee, true
	}
	return decimal.Zero, false
}
