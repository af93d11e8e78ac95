package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// PaymentSnapshot captures a payment record as it looked when a history entry
// was written.
type PaymentSnapshot struct {
	PaymentID    uuid.UUID           `json:"payment_id"`
	Kind         enums.PaymentKind   `json:"kind"`
	Amount       decimal.Decimal     `json:"amount"`
	Method       enums.PaymentMethod `json:"method"`
	Status       enums.PaymentStatus `json:"status"`
	Confirmation string              `json:"confirmation_id,omitempty"`
}

// HistoryValue is the old or new side of a history entry. Exactly one of the
// fields is populated depending on the entry action.
type HistoryValue struct {
	Status        enums.OrderStatus        `json:"status,omitempty"`
	PaymentStatus enums.OrderPaymentStatus `json:"payment_status,omitempty"`
	Payment       *PaymentSnapshot         `json:"payment,omitempty"`
}

// HistoryMetadata describes how a history entry came about.
type HistoryMetadata struct {
	Source string `json:"source,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// OrderHistoryEntry is the immutable audit record for an order. Rows are only
// ever inserted.
type OrderHistoryEntry struct {
	ID          int64                               `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     uuid.UUID                           `gorm:"column:order_id;type:uuid;not null;index:idx_order_history_order_created,priority:1"`
	StaffID     *uuid.UUID                          `gorm:"column:staff_id;type:uuid"`
	Action      enums.HistoryAction                 `gorm:"column:action;type:text;not null"`
	OldValue    datatypes.JSONType[HistoryValue]    `gorm:"column:old_value"`
	NewValue    datatypes.JSONType[HistoryValue]    `gorm:"column:new_value"`
	Description string                              `gorm:"column:description;type:text;not null"`
	Metadata    datatypes.JSONType[HistoryMetadata] `gorm:"column:metadata"`
	CreatedAt   time.Time                           `gorm:"column:created_at;autoCreateTime;index:idx_order_history_order_created,priority:2"`
}

func (OrderHistoryEntry) TableName() string { return "order_history_entries" }

// OrderUpdate is the narrow operational feed row written alongside every
// committed status change.
type OrderUpdate struct {
	ID        int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Message   string            `gorm:"column:message;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderUpdate) TableName() string { return "order_updates" }
