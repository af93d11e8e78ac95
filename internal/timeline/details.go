package timeline

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Details is the kind-specific payload of an Event. The concrete type follows
// Event.Type.
type Details interface {
	eventType() enums.TimelineEventType
}

// Origin records who or what produced a history entry.
type Origin struct {
	Source string `json:"source,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type StatusChangeDetails struct {
	From enums.OrderStatus `json:"from"`
	To   enums.OrderStatus `json:"to"`
	Origin
}

type PaymentStatusDetails struct {
	From enums.OrderPaymentStatus `json:"from"`
	To   enums.OrderPaymentStatus `json:"to"`
	Origin
}

// PaymentDetails describes a recorded or updated payment. Amount is fixed to
// three decimals.
type PaymentDetails struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	Kind           enums.PaymentKind   `json:"kind"`
	Amount         string              `json:"amount"`
	Method         enums.PaymentMethod `json:"method"`
	Status         enums.PaymentStatus `json:"status"`
	ConfirmationID string              `json:"confirmation_id,omitempty"`
	Updated        bool                `json:"updated,omitempty"`
	Origin
}

type NoteDetails struct {
	Origin
}

type DriverDetails struct {
	DriverID uuid.UUID                  `json:"driver_id"`
	Kind     enums.DriverAssignmentKind `json:"kind"`
}

type ProcessingDetails struct {
	Stage     enums.ProcessingStage `json:"stage"`
	ItemCount int                   `json:"item_count"`
}

type IssueDetails struct {
	IssueType enums.IssueType     `json:"issue_type"`
	Severity  enums.IssueSeverity `json:"severity"`
	Resolved  bool                `json:"resolved"`
}

func (StatusChangeDetails) eventType() enums.TimelineEventType  { return enums.TimelineStatusChange }
func (PaymentStatusDetails) eventType() enums.TimelineEventType { return enums.TimelinePaymentStatusChange }
func (NoteDetails) eventType() enums.TimelineEventType          { return enums.TimelineNote }
func (DriverDetails) eventType() enums.TimelineEventType        { return enums.TimelineDriverAssignment }
func (ProcessingDetails) eventType() enums.TimelineEventType    { return enums.TimelineProcessing }
func (IssueDetails) eventType() enums.TimelineEventType         { return enums.TimelineIssue }

func (d PaymentDetails) eventType() enums.TimelineEventType {
	if d.Updated {
		return enums.TimelinePaymentUpdated
	}
	return enums.TimelinePaymentRecorded
}
