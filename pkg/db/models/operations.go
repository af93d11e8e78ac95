package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// DriverAssignment records a driver being put on the pickup or delivery leg.
type DriverAssignment struct {
	ID         int64                      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID    uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	DriverID   uuid.UUID                  `gorm:"column:driver_id;type:uuid;not null"`
	AssignedBy *uuid.UUID                 `gorm:"column:assigned_by;type:uuid"`
	Kind       enums.DriverAssignmentKind `gorm:"column:kind;type:text;not null"`
	Notes      *string                    `gorm:"column:notes"`
	CreatedAt  time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (DriverAssignment) TableName() string { return "driver_assignments" }

// OrderProcessing records a facility step performed on an order.
type OrderProcessing struct {
	ID        int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	StaffID   *uuid.UUID            `gorm:"column:staff_id;type:uuid"`
	Stage     enums.ProcessingStage `gorm:"column:stage;type:text;not null"`
	ItemCount int                   `gorm:"column:item_count;not null;default:0"`
	Notes     *string               `gorm:"column:notes"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (OrderProcessing) TableName() string { return "order_processing" }

// IssueReport records a problem raised against an order.
type IssueReport struct {
	ID          int64               `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	ReportedBy  *uuid.UUID          `gorm:"column:reported_by;type:uuid"`
	Type        enums.IssueType     `gorm:"column:issue_type;type:text;not null"`
	Severity    enums.IssueSeverity `gorm:"column:severity;type:text;not null"`
	Description string              `gorm:"column:description;type:text;not null"`
	Resolved    bool                `gorm:"column:resolved;not null;default:false"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (IssueReport) TableName() string { return "issue_reports" }
