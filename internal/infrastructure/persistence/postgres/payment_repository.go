package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrEventNotFound   = errors.New("webhook event not found")
)

const paymentColumns = `
	id, attendance_id, event_id, method, amount_cents, currency, status, version,
	paid_at, refunded_amount_cents, provider_charge_id, provider_intent_id,
	provider_session_id, source_event_id, notes, created_at, updated_at`

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ application.PaymentRepository = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, attendance_id, event_id, method, amount_cents, currency, status, version,
			paid_at, refunded_amount_cents, provider_charge_id, provider_intent_id,
			provider_session_id, source_event_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		p.ID,
		p.AttendanceID,
		p.EventID,
		string(p.Method),
		p.AmountCents,
		p.Currency,
		string(p.Status),
		p.Version,
		p.PaidAt,
		p.RefundedAmountCents,
		p.ProviderChargeID,
		p.ProviderIntentID,
		p.ProviderSessionID,
		p.SourceEventID,
		p.Notes,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// FindByID retrieves a payment
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	row := r.db.Pool.QueryRow(ctx, query, id)
	return scanPayment(row)
}

// FindByAttendanceID retrieves every payment row for one attendance so the
// authority rule can pick the current one.
func (r *PaymentRepository) FindByAttendanceID(ctx context.Context, attendanceID string) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE attendance_id = $1`

	rows, err := r.db.Pool.Query(ctx, query, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("query payments by attendance_id: %w", err)
	}
	return collectPayments(rows)
}

// FindByProviderIntentID resolves a payment by its payment-intent reference.
// More than one match is ErrAmbiguousPaymentMatch: resolving against the wrong
// row would credit the wrong person.
func (r *PaymentRepository) FindByProviderIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	return r.findOneByRef(ctx, "provider_intent_id", intentID)
}

// FindByProviderChargeID resolves a payment by its charge reference.
func (r *PaymentRepository) FindByProviderChargeID(ctx context.Context, chargeID string) (*domain.Payment, error) {
	return r.findOneByRef(ctx, "provider_charge_id", chargeID)
}

// FindByProviderSessionID resolves a payment by its checkout-session reference.
func (r *PaymentRepository) FindByProviderSessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	return r.findOneByRef(ctx, "provider_session_id", sessionID)
}

func (r *PaymentRepository) findOneByRef(ctx context.Context, column, value string) (*domain.Payment, error) {
	if value == "" {
		return nil, ErrPaymentNotFound
	}

	// LIMIT 2 so an ambiguous match is detectable without scanning everything.
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1 LIMIT 2`

	rows, err := r.db.Pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("query payment by %s: %w", column, err)
	}
	matches, err := collectPayments(rows)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrPaymentNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%s=%s: %w", column, value, domain.ErrAmbiguousPaymentMatch)
	}
}

// UpdateFromWebhook persists a handler-side mutation. The caller holds the
// ledger claim for the source event; the version still advances by one so
// concurrent manual writers observe the change.
func (r *PaymentRepository) UpdateFromWebhook(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2,
		    version = version + 1,
		    paid_at = $3,
		    refunded_amount_cents = $4,
		    provider_charge_id = $5,
		    provider_intent_id = $6,
		    source_event_id = $7,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		p.ID,
		string(p.Status),
		p.PaidAt,
		p.RefundedAmountCents,
		p.ProviderChargeID,
		p.ProviderIntentID,
		p.SourceEventID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment from webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// UpdateStatusCAS applies a manual status change only if the stored version
// still matches expectedVersion, then advances the version by one. A mismatch
// is never silently overwritten; the caller re-fetches and resubmits.
func (r *PaymentRepository) UpdateStatusCAS(ctx context.Context, id string, expectedVersion int, status domain.PaymentStatus, paidAt *time.Time, notes string) (int, error) {
	query := `
		UPDATE payments
		SET status = $3,
		    version = version + 1,
		    paid_at = COALESCE($4, paid_at),
		    notes = COALESCE($5, notes),
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING version
	`

	var newVersion int
	err := r.db.Pool.QueryRow(ctx, query, id, expectedVersion, string(status), paidAt, nullable(notes)).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("cas update payment: %w", err)
	}

	// No row matched: either the payment is gone or the version moved.
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("cas update recheck: %w", err)
	}
	if !exists {
		return 0, ErrPaymentNotFound
	}
	return 0, domain.ErrConcurrentUpdate
}

// AttachSessionCAS stores a new checkout-session reference under the same
// version guard as any other manual write.
func (r *PaymentRepository) AttachSessionCAS(ctx context.Context, id string, expectedVersion int, sessionID string) (int, error) {
	query := `
		UPDATE payments
		SET provider_session_id = $3,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING version
	`

	var newVersion int
	err := r.db.Pool.QueryRow(ctx, query, id, expectedVersion, sessionID).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("attach session: %w", err)
	}

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("attach session recheck: %w", err)
	}
	if !exists {
		return 0, ErrPaymentNotFound
	}
	return 0, domain.ErrConcurrentUpdate
}

func collectPayments(rows pgx.Rows) ([]*domain.Payment, error) {
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Payment, error) {
		var m PaymentModel
		err := row.Scan(
			&m.ID, &m.AttendanceID, &m.EventID, &m.Method, &m.AmountCents, &m.Currency, &m.Status, &m.Version,
			&m.PaidAt, &m.RefundedAmountCents, &m.ProviderChargeID, &m.ProviderIntentID,
			&m.ProviderSessionID, &m.SourceEventID, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
		)
		return toDomainPayment(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments: %w", err)
	}
	return results, nil
}

// scanPayment converts a database row into a domain Payment.
// Returns ErrPaymentNotFound if the row doesn't exist.
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var m PaymentModel
	err := row.Scan(
		&m.ID, &m.AttendanceID, &m.EventID, &m.Method, &m.AmountCents, &m.Currency, &m.Status, &m.Version,
		&m.PaidAt, &m.RefundedAmountCents, &m.ProviderChargeID, &m.ProviderIntentID,
		&m.ProviderSessionID, &m.SourceEventID, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return toDomainPayment(m), nil
}
