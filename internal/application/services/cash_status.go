package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

// MaxBulkUpdates caps one bulk request so no call runs unbounded.
const MaxBulkUpdates = 50

type UpdateStatusCommand struct {
	PaymentID       string
	Status          domain.PaymentStatus
	ExpectedVersion int
	Notes           string
}

type UpdateStatusResult struct {
	PaymentID  string
	Status     domain.PaymentStatus
	NewVersion int
}

// CashStatusService applies operator-initiated cash status changes under
// optimistic concurrency control.
type CashStatusService struct {
	payments application.PaymentRepository
	logger   *slog.Logger
}

func NewCashStatusService(payments application.PaymentRepository, logger *slog.Logger) *CashStatusService {
	return &CashStatusService{payments: payments, logger: logger}
}

// UpdateStatus marks a cash payment received or waived. The write applies only
// if the caller's expected version still matches; a mismatch is returned as
// CONCURRENT_UPDATE and the caller must re-fetch, never overwrite.
func (s *CashStatusService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*UpdateStatusResult, error) {
	if cmd.PaymentID == "" {
		return nil, application.NewValidationError("payment_id is required")
	}
	if cmd.ExpectedVersion <= 0 {
		return nil, application.NewValidationError("expected_version must be positive")
	}

	payment, err := s.payments.FindByID(ctx, cmd.PaymentID)
	if err != nil {
		if errors.Is(err, postgres.ErrPaymentNotFound) {
			return nil, application.NewNotFoundError("payment")
		}
		return nil, application.NewInternalError(err)
	}

	if err := payment.CanManuallyTransitionTo(cmd.Status); err != nil {
		if errors.Is(err, domain.ErrInvalidPaymentMethod) {
			return nil, application.NewInvalidPaymentMethodError(err)
		}
		return nil, application.NewInvalidTransitionError(err)
	}

	var paidAt *time.Time
	if cmd.Status == domain.StatusReceived {
		now := time.Now()
		paidAt = &now
	}

	newVersion, err := s.payments.UpdateStatusCAS(ctx, cmd.PaymentID, cmd.ExpectedVersion, cmd.Status, paidAt, cmd.Notes)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return nil, application.NewConcurrentUpdateError()
		}
		if errors.Is(err, postgres.ErrPaymentNotFound) {
			return nil, application.NewNotFoundError("payment")
		}
		return nil, application.NewInternalError(fmt.Errorf("cas update: %w", err))
	}

	s.logger.Info("cash status updated",
		"payment_id", cmd.PaymentID,
		"status", cmd.Status,
		"version", newVersion,
	)

	return &UpdateStatusResult{
		PaymentID:  cmd.PaymentID,
		Status:     cmd.Status,
		NewVersion: newVersion,
	}, nil
}

// BulkUpdateStatus applies up to MaxBulkUpdates independent CAS updates and
// reports a per-item outcome, so one stale version does not block the batch.
func (s *CashStatusService) BulkUpdateStatus(ctx context.Context, cmds []UpdateStatusCommand) ([]application.CASOutcome, error) {
	if len(cmds) == 0 {
		return nil, application.NewValidationError("at least one update is required")
	}
	if len(cmds) > MaxBulkUpdates {
		return nil, application.NewValidationError(fmt.Sprintf("at most %d updates per request", MaxBulkUpdates))
	}

	outcomes := make([]application.CASOutcome, 0, len(cmds))
	for _, cmd := range cmds {
		result, err := s.UpdateStatus(ctx, cmd)
		outcome := application.CASOutcome{PaymentID: cmd.PaymentID, Err: err}
		if err == nil {
			outcome.NewVersion = result.NewVersion
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
