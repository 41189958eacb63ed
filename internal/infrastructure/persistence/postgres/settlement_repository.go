package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

var ErrSnapshotNotFound = errors.New("settlement snapshot not found")

type SettlementRepository struct {
	db *DB
}

func NewSettlementRepository(db *DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

var _ application.SettlementRepository = (*SettlementRepository)(nil)

// Regenerate recomputes the event's settlement snapshot from the current
// payment rows in one statement and replaces any prior snapshot. Refunded and
// canceled payments count toward neither revenue nor outstanding balance.
// Re-running over unchanged rows yields the same snapshot.
func (r *SettlementRepository) Regenerate(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	query := `
		INSERT INTO settlement_snapshots (
			event_id, revenue_cents, outstanding_cents, refunded_cents,
			paid_count, open_count, refunded_count, generated_at
		)
		SELECT
			$1,
			COALESCE(SUM(amount_cents) FILTER (WHERE status IN ('paid', 'received')), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE status IN ('pending', 'failed')), 0),
			COALESCE(SUM(refunded_amount_cents) FILTER (WHERE status = 'refunded'), 0),
			COUNT(*) FILTER (WHERE status IN ('paid', 'received')),
			COUNT(*) FILTER (WHERE status IN ('pending', 'failed')),
			COUNT(*) FILTER (WHERE status = 'refunded'),
			now()
		FROM payments
		WHERE event_id = $1
		ON CONFLICT (event_id) DO UPDATE
		SET revenue_cents = EXCLUDED.revenue_cents,
		    outstanding_cents = EXCLUDED.outstanding_cents,
		    refunded_cents = EXCLUDED.refunded_cents,
		    paid_count = EXCLUDED.paid_count,
		    open_count = EXCLUDED.open_count,
		    refunded_count = EXCLUDED.refunded_count,
		    generated_at = EXCLUDED.generated_at
		RETURNING event_id, revenue_cents, outstanding_cents, refunded_cents,
		          paid_count, open_count, refunded_count, generated_at
	`

	var s domain.SettlementSnapshot
	err := r.db.Pool.QueryRow(ctx, query, eventID).Scan(
		&s.EventID, &s.RevenueCents, &s.OutstandingCents, &s.RefundedCents,
		&s.PaidCount, &s.OpenCount, &s.RefundedCount, &s.GeneratedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("regenerate settlement snapshot: %w", err)
	}
	return &s, nil
}

func (r *SettlementRepository) Find(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	query := `
		SELECT event_id, revenue_cents, outstanding_cents, refunded_cents,
		       paid_count, open_count, refunded_count, generated_at
		FROM settlement_snapshots
		WHERE event_id = $1
	`

	var s domain.SettlementSnapshot
	err := r.db.Pool.QueryRow(ctx, query, eventID).Scan(
		&s.EventID, &s.RevenueCents, &s.OutstandingCents, &s.RefundedCents,
		&s.PaidCount, &s.OpenCount, &s.RefundedCount, &s.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("find settlement snapshot: %w", err)
	}
	return &s, nil
}
