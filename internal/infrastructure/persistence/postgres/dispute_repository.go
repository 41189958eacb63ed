package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *DB
}

func NewDisputeRepository(db *DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

var _ application.DisputeRepository = (*DisputeRepository)(nil)

// Upsert inserts or updates the dispute keyed by the provider's dispute id,
// propagating status and amounts on redelivery.
func (r *DisputeRepository) Upsert(ctx context.Context, d *domain.Dispute) error {
	query := `
		INSERT INTO disputes (
			id, provider_dispute_id, charge_id, payment_id, status,
			amount_cents, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (provider_dispute_id) DO UPDATE
		SET status = EXCLUDED.status,
		    amount_cents = EXCLUDED.amount_cents,
		    payment_id = COALESCE(EXCLUDED.payment_id, disputes.payment_id),
		    updated_at = now()
	`

	_, err := r.db.Pool.Exec(ctx, query,
		d.ID,
		d.ProviderDisputeID,
		d.ChargeID,
		d.PaymentID,
		d.Status,
		d.AmountCents,
		d.Currency,
	)
	if err != nil {
		return fmt.Errorf("upsert dispute: %w", err)
	}
	return nil
}

func (r *DisputeRepository) FindByProviderDisputeID(ctx context.Context, providerDisputeID string) (*domain.Dispute, error) {
	query := `
		SELECT id, provider_dispute_id, charge_id, payment_id, status,
		       amount_cents, currency, created_at, updated_at
		FROM disputes
		WHERE provider_dispute_id = $1
	`

	var m DisputeModel
	err := r.db.Pool.QueryRow(ctx, query, providerDisputeID).Scan(
		&m.ID, &m.ProviderDisputeID, &m.ChargeID, &m.PaymentID, &m.Status,
		&m.AmountCents, &m.Currency, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("find dispute: %w", err)
	}
	return toDomainDispute(m), nil
}
