package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes treated as transient conflicts.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// TransientError marks a failure as a retryable conflict. Repositories wrap
// lost optimistic races with MarkTransient so the retry helper can see them
// without inspecting message text.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient conflict: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err as a retryable conflict.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err belongs to the narrow class of failures
// worth retrying: an explicit TransientError, a Postgres serialization /
// deadlock / lock-timeout SQLSTATE, or, as a last resort, a message
// mentioning a deadlock or timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "timeout")
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (duplicate email, plan name, token).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
