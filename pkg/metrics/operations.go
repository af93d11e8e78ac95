package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

// OperationMetrics records outcomes of ledger and coordinator operations.
type OperationMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewOperationMetrics registers the operation metrics on the provided registerer.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "laundrytrack_operation_duration_seconds",
		Help:    "Duration of order lifecycle and ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laundrytrack_operation_total",
		Help: "Order lifecycle and ledger operations by outcome.",
	}, []string{"operation", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laundrytrack_operation_conflict_retries_total",
		Help: "Retries caused by serialization conflicts.",
	}, []string{"operation"})
	reg.MustRegister(duration, outcomes, retries)
	return &OperationMetrics{
		duration: duration,
		outcomes: outcomes,
		retries:  retries,
	}
}

// Observe records the duration and outcome of one operation. The outcome is
// "ok" for a nil error and the lowercased error code otherwise.
func (m *OperationMetrics) Observe(operation string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.outcomes.WithLabelValues(op, outcomeLabel(err)).Inc()
}

// IncRetry counts one conflict retry for the operation.
func (m *OperationMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation:
		return "validation"
	case pkgerrors.CodeInvalidTransition:
		return "invalid_transition"
	case pkgerrors.CodeOverpayment:
		return "overpayment"
	case pkgerrors.CodeConcurrency:
		return "conflict"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeConflict:
		return "duplicate"
	default:
		return "error"
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
