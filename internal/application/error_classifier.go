package application

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

// ErrorClass decides what the ledger and the retry worker do with a failure.
type ErrorClass string

const (
	// ClassTransient errors are expected to succeed on retry: timeouts,
	// connection loss, serialization conflicts.
	ClassTransient ErrorClass = "TRANSIENT"
	// ClassTerminal errors will never succeed on retry: integrity violations,
	// ambiguous matches. They require investigation, not another attempt.
	ClassTerminal ErrorClass = "TERMINAL"
	// ClassBusinessRule rejections are deliberate and are not retried.
	ClassBusinessRule ErrorClass = "BUSINESS_RULE"
)

// ClassifyError buckets an error for retry decisions. Classification uses the
// store's error-class code where present and falls back to message patterns.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}

	if errors.Is(err, domain.ErrAmbiguousPaymentMatch) {
		return ClassTerminal
	}

	if errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrInvalidPaymentMethod) ||
		errors.Is(err, domain.ErrPaymentAlreadyExists) ||
		errors.Is(err, domain.ErrConcurrentUpdate) ||
		errors.Is(err, domain.ErrInvalidAmount) {
		return ClassBusinessRule
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeInternal:
			return ClassTransient
		default:
			return ClassBusinessRule
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// Class 23: integrity constraint violations never fix themselves.
		case strings.HasPrefix(pgErr.Code, "23"):
			return ClassTerminal
		// Serialization failure / deadlock detected.
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return ClassTransient
		// Query canceled covers statement_timeout.
		case pgErr.Code == "57014":
			return ClassTransient
		// Class 08: connection exceptions.
		case strings.HasPrefix(pgErr.Code, "08"):
			return ClassTransient
		// Class 22 (data) and 42 (syntax/access) need a code change.
		case strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "42"):
			return ClassTerminal
		}
	}

	// No structured code available; fall back to message patterns.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "temporarily unavailable"):
		return ClassTransient
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "violates unique"),
		strings.Contains(msg, "ambiguous"):
		return ClassTerminal
	}

	// Default: transient, so the worker gets another look at it.
	return ClassTransient
}

// IsRetryable reports whether the worker should revisit the failure.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ClassTransient
}

// IsTerminalError reports whether retrying can never help.
func IsTerminalError(err error) bool {
	class := ClassifyError(err)
	return class == ClassTerminal || class == ClassBusinessRule
}
