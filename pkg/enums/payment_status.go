package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a single payment record.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// OrderPaymentStatus is the aggregate payment state stored on an order. It is
// derived from the order's payment records and never set directly by callers
// outside the ledger.
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending  OrderPaymentStatus = "PENDING"
	OrderPaymentStatusPartial  OrderPaymentStatus = "PARTIAL"
	OrderPaymentStatusPaid     OrderPaymentStatus = "PAID"
	OrderPaymentStatusFailed   OrderPaymentStatus = "FAILED"
	OrderPaymentStatusRefunded OrderPaymentStatus = "REFUNDED"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentStatusPending,
	OrderPaymentStatusPartial,
	OrderPaymentStatusPaid,
	OrderPaymentStatusFailed,
	OrderPaymentStatusRefunded,
}

// OrderPaymentStatuses returns every known OrderPaymentStatus.
func OrderPaymentStatuses() []OrderPaymentStatus {
	out := make([]OrderPaymentStatus, len(validOrderPaymentStatuses))
	copy(out, validOrderPaymentStatuses)
	return out
}

// String implements fmt.Stringer.
func (p OrderPaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (p OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseOrderPaymentStatus converts raw input into an OrderPaymentStatus.
func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	for _, candidate := range validOrderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payment status %q", value)
}
