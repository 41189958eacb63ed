package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want application.ErrorClass
	}{
		{"nil error", nil, ""},
		{"context deadline", context.DeadlineExceeded, application.ClassTransient},
		{"context canceled", context.Canceled, application.ClassTransient},
		{"ambiguous match", domain.ErrAmbiguousPaymentMatch, application.ClassTerminal},
		{"wrapped ambiguous match", errors.Join(errors.New("resolve"), domain.ErrAmbiguousPaymentMatch), application.ClassTerminal},
		{"invalid transition", domain.ErrInvalidTransition, application.ClassBusinessRule},
		{"concurrent update", domain.ErrConcurrentUpdate, application.ClassBusinessRule},
		{"unique violation", &pgconn.PgError{Code: "23505"}, application.ClassTerminal},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, application.ClassTransient},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, application.ClassTransient},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, application.ClassTransient},
		{"connection exception", &pgconn.PgError{Code: "08006"}, application.ClassTransient},
		{"bad data", &pgconn.PgError{Code: "22P02"}, application.ClassTerminal},
		{"undefined column", &pgconn.PgError{Code: "42703"}, application.ClassTerminal},
		{"timeout message", errors.New("dial tcp: i/o timeout"), application.ClassTransient},
		{"connection refused message", errors.New("connection refused"), application.ClassTransient},
		{"duplicate key message", errors.New("duplicate key value"), application.ClassTerminal},
		{"unknown error defaults to transient", errors.New("something odd"), application.ClassTransient},
		{"internal service error", application.NewInternalError(errors.New("boom")), application.ClassTransient},
		{"validation service error", application.NewValidationError("bad input"), application.ClassBusinessRule},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, application.ClassifyError(tc.err))
		})
	}
}

func TestRetryPredicates(t *testing.T) {
	assert.True(t, application.IsRetryable(context.DeadlineExceeded))
	assert.False(t, application.IsRetryable(domain.ErrAmbiguousPaymentMatch))

	assert.True(t, application.IsTerminalError(domain.ErrAmbiguousPaymentMatch))
	assert.True(t, application.IsTerminalError(domain.ErrInvalidTransition))
	assert.False(t, application.IsTerminalError(errors.New("network flake")))
}
