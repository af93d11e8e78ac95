package tracking

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// StatusChangeRequest asks for an order status and/or payment status move.
type StatusChangeRequest struct {
	OrderID          uuid.UUID                 `json:"order_id" validate:"required"`
	ActorID          *uuid.UUID                `json:"actor_id,omitempty"`
	NewStatus        *enums.OrderStatus        `json:"new_status,omitempty" validate:"omitempty,enum"`
	NewPaymentStatus *enums.OrderPaymentStatus `json:"new_payment_status,omitempty" validate:"omitempty,enum"`
	Notes            string                    `json:"notes,omitempty" validate:"max=2000"`
}

// RecordPaymentRequest adds one ledger row.
type RecordPaymentRequest struct {
	OrderID        uuid.UUID           `json:"order_id" validate:"required"`
	Kind           enums.PaymentKind   `json:"kind,omitempty" validate:"omitempty,enum"`
	Amount         decimal.Decimal     `json:"amount" validate:"gt=0"`
	Currency       string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	Method         enums.PaymentMethod `json:"payment_method" validate:"required,enum"`
	Status         enums.PaymentStatus `json:"payment_status" validate:"required,enum"`
	ConfirmationID string              `json:"confirmation_id,omitempty" validate:"max=255"`
	Notes          string              `json:"notes,omitempty" validate:"max=2000"`
	ActorID        *uuid.UUID          `json:"actor_id,omitempty"`
}

// UpdatePaymentStatusRequest moves an existing payment record.
type UpdatePaymentStatusRequest struct {
	PaymentID     uuid.UUID           `json:"payment_id" validate:"required"`
	Status        enums.PaymentStatus `json:"payment_status" validate:"required,enum"`
	FailureReason string              `json:"failure_reason,omitempty" validate:"max=500"`
	GatewayRef    string              `json:"gateway_ref,omitempty" validate:"max=255"`
	ActorID       *uuid.UUID          `json:"actor_id,omitempty"`
}

// GatewaySettlement is one delivery from a payment gateway. The same
// confirmation may arrive more than once and may first report PENDING.
type GatewaySettlement struct {
	OrderID        uuid.UUID           `json:"order_id" validate:"required"`
	Amount         decimal.Decimal     `json:"amount" validate:"gt=0"`
	Currency       string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	Method         enums.PaymentMethod `json:"payment_method" validate:"required,enum"`
	Status         enums.PaymentStatus `json:"payment_status" validate:"required,oneof=PENDING PAID FAILED"`
	ConfirmationID string              `json:"confirmation_id" validate:"required,max=255"`
	Gateway        string              `json:"gateway,omitempty" validate:"max=64"`
	GatewayRef     string              `json:"gateway_ref,omitempty" validate:"max=255"`
	FailureReason  string              `json:"failure_reason,omitempty" validate:"max=500"`
}

// AssignDriverRequest puts a driver on the pickup or delivery leg.
type AssignDriverRequest struct {
	OrderID    uuid.UUID                  `json:"order_id" validate:"required"`
	DriverID   uuid.UUID                  `json:"driver_id" validate:"required"`
	Kind       enums.DriverAssignmentKind `json:"kind" validate:"required,enum"`
	AssignedBy *uuid.UUID                 `json:"assigned_by,omitempty"`
	Notes      string                     `json:"notes,omitempty" validate:"max=2000"`
}

// ProcessingUpdateRequest records a facility step and optionally moves the
// order along with it.
type ProcessingUpdateRequest struct {
	OrderID   uuid.UUID             `json:"order_id" validate:"required"`
	StaffID   *uuid.UUID            `json:"staff_id,omitempty"`
	Stage     enums.ProcessingStage `json:"stage" validate:"required,enum"`
	ItemCount int                   `json:"item_count" validate:"gte=0"`
	Notes     string                `json:"notes,omitempty" validate:"max=2000"`
	NewStatus *enums.OrderStatus    `json:"new_status,omitempty" validate:"omitempty,enum"`
}

// ReportIssueRequest raises a problem against an order.
type ReportIssueRequest struct {
	OrderID     uuid.UUID           `json:"order_id" validate:"required"`
	ReportedBy  *uuid.UUID          `json:"reported_by,omitempty"`
	Type        enums.IssueType     `json:"issue_type" validate:"required,enum"`
	Severity    enums.IssueSeverity `json:"severity" validate:"required,enum"`
	Description string              `json:"description" validate:"required,max=4000"`
}
