package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

type CreateSessionCommand struct {
	AttendanceID string
	EventID      string
	AmountCents  int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

type CreateSessionResult struct {
	PaymentID  string
	SessionID  string
	SessionURL string
	Reused     bool
}

// CheckoutService creates provider checkout sessions and registers cash
// payments, both behind the completion guard.
type CheckoutService struct {
	payments application.PaymentRepository
	provider application.ProviderClient
	logger   *slog.Logger
}

func NewCheckoutService(
	payments application.PaymentRepository,
	provider application.ProviderClient,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		payments: payments,
		provider: provider,
		logger:   logger,
	}
}

// CreateSession starts (or resumes) a provider payment for an attendance.
//
// Completion guard: if the authoritative payment row for the attendance is
// already terminal the request is rejected, so nobody gets charged twice for
// one participation. A still-open provider attempt is reused with a fresh
// session; anything else gets a new payment row.
func (s *CheckoutService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*CreateSessionResult, error) {
	if cmd.AttendanceID == "" || cmd.EventID == "" {
		return nil, application.NewValidationError("attendance_id and event_id are required")
	}
	if cmd.AmountCents <= 0 {
		return nil, application.NewValidationError("amount_cents must be positive")
	}

	existing, err := s.payments.FindByAttendanceID(ctx, cmd.AttendanceID)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	authoritative := domain.Authoritative(existing)
	if authoritative != nil && authoritative.IsTerminal() {
		s.logger.Info("session creation blocked by completion guard",
			"attendance_id", cmd.AttendanceID,
			"payment_id", authoritative.ID,
			"status", authoritative.Status,
		)
		return nil, application.NewPaymentAlreadyExistsError()
	}

	payment := authoritative
	reused := payment != nil && payment.Method == domain.MethodProvider
	if !reused {
		payment, err = domain.NewPayment(
			uuid.New().String(),
			cmd.AttendanceID,
			cmd.EventID,
			domain.MethodProvider,
			cmd.AmountCents,
			cmd.Currency,
		)
		if err != nil {
			return nil, application.NewValidationError(err.Error())
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return nil, application.NewInternalError(fmt.Errorf("create payment: %w", err))
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, application.CheckoutSessionRequest{
		PaymentID:    payment.ID,
		AttendanceID: payment.AttendanceID,
		EventID:      payment.EventID,
		AmountCents:  payment.AmountCents,
		Currency:     payment.Currency,
		SuccessURL:   cmd.SuccessURL,
		CancelURL:    cmd.CancelURL,
	})
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("create checkout session: %w", err))
	}

	if _, err := s.payments.AttachSessionCAS(ctx, payment.ID, payment.Version, session.SessionID); err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return nil, application.NewConcurrentUpdateError()
		}
		return nil, application.NewInternalError(fmt.Errorf("attach session: %w", err))
	}

	s.logger.Info("checkout session created",
		"payment_id", payment.ID,
		"attendance_id", payment.AttendanceID,
		"session_id", session.SessionID,
		"reused_payment", reused,
	)

	return &CreateSessionResult{
		PaymentID:  payment.ID,
		SessionID:  session.SessionID,
		SessionURL: session.URL,
		Reused:     reused,
	}, nil
}

type RegisterCashCommand struct {
	AttendanceID string
	EventID      string
	AmountCents  int64
	Currency     string
}

// RegisterCash opens a cash payment for an attendance, behind the same
// completion guard as provider sessions.
func (s *CheckoutService) RegisterCash(ctx context.Context, cmd RegisterCashCommand) (*domain.Payment, error) {
	if cmd.AttendanceID == "" || cmd.EventID == "" {
		return nil, application.NewValidationError("attendance_id and event_id are required")
	}

	existing, err := s.payments.FindByAttendanceID(ctx, cmd.AttendanceID)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	authoritative := domain.Authoritative(existing)
	if authoritative != nil && authoritative.IsTerminal() {
		return nil, application.NewPaymentAlreadyExistsError()
	}
	if authoritative != nil && authoritative.Method == domain.MethodCash {
		// Still-open cash attempt; nothing new to create.
		return authoritative, nil
	}

	payment, err := domain.NewPayment(
		uuid.New().String(),
		cmd.AttendanceID,
		cmd.EventID,
		domain.MethodCash,
		cmd.AmountCents,
		cmd.Currency,
	)
	if err != nil {
		return nil, application.NewValidationError(err.Error())
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, application.NewInternalError(fmt.Errorf("create cash payment: %w", err))
	}

	s.logger.Info("cash payment registered",
		"payment_id", payment.ID,
		"attendance_id", payment.AttendanceID,
	)
	return payment, nil
}
