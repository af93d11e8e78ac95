package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Source identifies the table an event came from. The numeric value is the
// tie-break rank when two events share a timestamp.
type Source int

const (
	SourceHistory Source = iota
	SourceDriver
	SourceProcessing
	SourceIssue
)

func (s Source) String() string {
	switch s {
	case SourceHistory:
		return "history"
	case SourceDriver:
		return "driver"
	case SourceProcessing:
		return "processing"
	case SourceIssue:
		return "issue"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalText renders the source by name in JSON.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is one normalized row of an order's timeline. Details holds the
// payload for Type.
type Event struct {
	Type        enums.TimelineEventType `json:"type"`
	Source      Source                  `json:"source"`
	SourceID    int64                   `json:"source_id"`
	OrderID     uuid.UUID               `json:"order_id"`
	ActorID     *uuid.UUID              `json:"actor_id,omitempty"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Details     Details                 `json:"details,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// before reports whether a sorts ahead of b: newest first, then source rank,
// then the higher row id.
func before(a, b Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.SourceID > b.SourceID
}

func fromHistory(row models.OrderHistoryEntry) Event {
	oldValue, newValue := row.OldValue.Data(), row.NewValue.Data()
	meta := row.Metadata.Data()
	origin := Origin{Source: meta.Source, Rule: meta.Rule, Notes: meta.Notes}

	var (
		title   string
		details Details
	)
	switch row.Action {
	case enums.HistoryActionStatusChange:
		title = fmt.Sprintf("Status changed to %s", newValue.Status)
		details = StatusChangeDetails{From: oldValue.Status, To: newValue.Status, Origin: origin}
	case enums.HistoryActionPaymentStatusChange:
		title = fmt.Sprintf("Payment status changed to %s", newValue.PaymentStatus)
		details = PaymentStatusDetails{From: oldValue.PaymentStatus, To: newValue.PaymentStatus, Origin: origin}
	case enums.HistoryActionPaymentRecorded, enums.HistoryActionPaymentUpdated:
		payment := PaymentDetails{Updated: row.Action == enums.HistoryActionPaymentUpdated, Origin: origin}
		if p := newValue.Payment; p != nil {
			payment.PaymentID = p.PaymentID
			payment.Kind = p.Kind
			payment.Amount = p.Amount.StringFixed(3)
			payment.Method = p.Method
			payment.Status = p.Status
			payment.ConfirmationID = p.Confirmation
		}
		title = "Payment recorded"
		if payment.Updated {
			title = "Payment updated"
		}
		details = payment
	default:
		title = "Note added"
		details = NoteDetails{Origin: origin}
	}

	return Event{
		Type:        details.eventType(),
		Source:      SourceHistory,
		SourceID:    row.ID,
		OrderID:     row.OrderID,
		ActorID:     row.StaffID,
		Title:       title,
		Description: row.Description,
		Details:     details,
		CreatedAt:   row.CreatedAt,
	}
}

func fromAssignment(row models.DriverAssignment) Event {
	details := DriverDetails{DriverID: row.DriverID, Kind: row.Kind}
	ev := Event{
		Type:      details.eventType(),
		Source:    SourceDriver,
		SourceID:  row.ID,
		OrderID:   row.OrderID,
		ActorID:   row.AssignedBy,
		Title:     fmt.Sprintf("Driver assigned for %s", row.Kind),
		Details:   details,
		CreatedAt: row.CreatedAt,
	}
	if row.Notes != nil {
		ev.Description = *row.Notes
	}
	return ev
}

func fromProcessing(row models.OrderProcessing) Event {
	details := ProcessingDetails{Stage: row.Stage, ItemCount: row.ItemCount}
	ev := Event{
		Type:      details.eventType(),
		Source:    SourceProcessing,
		SourceID:  row.ID,
		OrderID:   row.OrderID,
		ActorID:   row.StaffID,
		Title:     fmt.Sprintf("Processing: %s", row.Stage),
		Details:   details,
		CreatedAt: row.CreatedAt,
	}
	if row.Notes != nil {
		ev.Description = *row.Notes
	}
	return ev
}

func fromIssue(row models.IssueReport) Event {
	details := IssueDetails{IssueType: row.Type, Severity: row.Severity, Resolved: row.Resolved}
	return Event{
		Type:        details.eventType(),
		Source:      SourceIssue,
		SourceID:    row.ID,
		OrderID:     row.OrderID,
		ActorID:     row.ReportedBy,
		Title:       fmt.Sprintf("Issue reported: %s", row.Type),
		Description: row.Description,
		Details:     details,
		CreatedAt:   row.CreatedAt,
	}
}
