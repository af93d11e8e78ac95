package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// ErrConflict is matched by every ConflictError via errors.Is.
var ErrConflict = errors.New("db: transaction conflict")

// ConflictError reports a transaction the store aborted because it could not
// be serialized against a concurrent writer. Retrying with a fresh read is safe.
type ConflictError struct {
	cause error
}

func (e *ConflictError) Error() string {
	return "db: transaction conflict: " + e.cause.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.cause
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper also
// requires the constraint to match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, ok := sqlState(err); ok {
		if code != sqlStateUniqueViolation {
			return false
		}
		return constraintName == "" || constraint == constraintName || strings.Contains(err.Error(), constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsSerializationFailure reports whether err is a serialization failure,
// deadlock, lock timeout, or SQLite busy error.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	if code, _, ok := sqlState(err); ok {
		switch code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// Classify maps an error returned from a transaction onto the typed error
// taxonomy. Serialization conflicts win over any code attached inside the
// transaction; typed errors pass through; anything else is a dependency failure.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsSerializationFailure(err) {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConcurrency {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, op+": concurrent update, retry")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func sqlState(err error) (code string, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
