package enums

// TimelineEventType identifies the source and shape of a timeline event.
type TimelineEventType string

const (
	TimelineStatusChange        TimelineEventType = "status_change"
	TimelinePaymentStatusChange TimelineEventType = "payment_status_change"
	TimelinePaymentRecorded     TimelineEventType = "payment_recorded"
	TimelinePaymentUpdated      TimelineEventType = "payment_updated"
	TimelineNote                TimelineEventType = "note"
	TimelineDriverAssignment    TimelineEventType = "driver_assignment"
	TimelineProcessing          TimelineEventType = "processing"
	TimelineIssue               TimelineEventType = "issue"
)

// String implements fmt.Stringer.
func (t TimelineEventType) String() string {
	return string(t)
}
