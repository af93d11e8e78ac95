package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Summary is the payment position of one order. It is always computed from
// the full record set and never stored.
type Summary struct {
	OrderID  uuid.UUID `json:"order_id"`
	Currency string    `json:"currency"`

	// AmountDue is null until the invoice total is computed.
	AmountDue decimal.NullDecimal `json:"amount_due"`
	// Ceiling is the most the ledger may collect right now. It equals
	// AmountDue once known and falls back to the minimum order fee.
	Ceiling decimal.NullDecimal `json:"ceiling"`
	// Outstanding is Ceiling minus TotalPaid and goes negative on overpayment.
	Outstanding decimal.NullDecimal `json:"outstanding_amount"`

	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalPending  decimal.Decimal `json:"total_pending"`
	TotalFailed   decimal.Decimal `json:"total_failed"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`

	PaymentStatus enums.OrderPaymentStatus `json:"payment_status"`
	RecordCount   int                      `json:"record_count"`

	pendingCount int
	failedCount  int
}

// Summarize derives the payment position of order from its records.
//
// Charges count toward TotalPaid while PAID. Refund rows are subtracted from
// TotalPaid and a charge that was itself reversed to REFUNDED drops out of it.
// Both count toward TotalRefunded.
func Summarize(order *models.Order, records []models.PaymentRecord) Summary {
	s := Summary{
		OrderID:       order.ID,
		Currency:      order.Currency,
		TotalPaid:     decimal.Zero,
		TotalPending:  decimal.Zero,
		TotalFailed:   decimal.Zero,
		TotalRefunded: decimal.Zero,
		RecordCount:   len(records),
	}

	chargesPaid := decimal.Zero
	refundRows := decimal.Zero
	for _, record := range records {
		if record.IsRefund() {
			if record.PaymentStatus == enums.PaymentStatusRefunded {
				refundRows = refundRows.Add(record.Amount)
			}
			continue
		}
		switch record.PaymentStatus {
		case enums.PaymentStatusPaid:
			chargesPaid = chargesPaid.Add(record.Amount)
		case enums.PaymentStatusPending:
			s.TotalPending = s.TotalPending.Add(record.Amount)
			s.pendingCount++
		case enums.PaymentStatusFailed:
			s.TotalFailed = s.TotalFailed.Add(record.Amount)
			s.failedCount++
		case enums.PaymentStatusRefunded:
			s.TotalRefunded = s.TotalRefunded.Add(record.Amount)
		}
	}
	s.TotalPaid = chargesPaid.Sub(refundRows)
	s.TotalRefunded = s.TotalRefunded.Add(refundRows)

	if due, ok := order.AmountDue(); ok {
		s.AmountDue = decimal.NewNullDecimal(due)
	}
	if ceiling, ok := order.PaymentCeiling(); ok {
		s.Ceiling = decimal.NewNullDecimal(ceiling)
		s.Outstanding = decimal.NewNullDecimal(ceiling.Sub(s.TotalPaid))
	}

	s.PaymentStatus = s.derive()
	return s
}

// derive picks the order payment status. An order without an invoice total
// can be PARTIAL but never PAID.
func (s Summary) derive() enums.OrderPaymentStatus {
	switch {
	case s.AmountDue.Valid && s.TotalPaid.IsPositive() && s.TotalPaid.GreaterThanOrEqual(s.AmountDue.Decimal):
		return enums.OrderPaymentStatusPaid
	case s.TotalPaid.IsPositive():
		return enums.OrderPaymentStatusPartial
	case s.TotalRefunded.IsPositive():
		return enums.OrderPaymentStatusRefunded
	case s.failedCount > 0 && s.pendingCount == 0:
		return enums.OrderPaymentStatusFailed
	default:
		return enums.OrderPaymentStatusPending
	}
}

// maxCharge is the largest new charge the ledger accepts in the given status.
// Settled charges may only fill the remaining ceiling. Pending charges get the
// outstanding amount plus the pending total as slack because pending money
// may still fail.
func (s Summary) maxCharge(status enums.PaymentStatus) (decimal.Decimal, bool) {
	if !s.Outstanding.Valid {
		return decimal.Zero, false
	}
	outstanding := s.Outstanding.Decimal
	if status == enums.PaymentStatusPending {
		return outstanding.Abs().Add(s.TotalPending), true
	}
	if outstanding.IsNegative() {
		return decimal.Zero, true
	}
	return outstanding, true
}

// maxRefund is the most that can be handed back.
func (s Summary) maxRefund() decimal.Decimal {
	if s.TotalPaid.IsNegative() {
		return decimal.Zero
	}
	return s.TotalPaid
}
