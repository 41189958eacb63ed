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

const eventColumns = `
	event_id, event_type, status, object_id, account_id, provider_created_at,
	attempt_count, last_error, result_summary, terminal, claimed_at, created_at, updated_at`

// EventLedgerRepository implements the webhook event ledger over the
// webhook_events table. The claim protocol is enforced by conditional writes,
// not in-process locks, so multiple process instances can share the table.
type EventLedgerRepository struct {
	db *DB

	// claimLease bounds how long a processing claim is honored. A claim older
	// than the lease is treated as abandoned by a crashed worker and may be
	// taken over.
	claimLease time.Duration
}

func NewEventLedgerRepository(db *DB, claimLease time.Duration) *EventLedgerRepository {
	return &EventLedgerRepository{db: db, claimLease: claimLease}
}

var _ application.EventLedger = (*EventLedgerRepository)(nil)

// BeginProcessing claims or inserts the ledger row for ev.
//
// First receipt inserts the row directly in processing. For a known row:
// succeeded and terminally failed rows are skipped, a live processing claim is
// busy, and pending / retryable-failed / lease-expired rows are re-claimed.
func (r *EventLedgerRepository) BeginProcessing(ctx context.Context, ev domain.WebhookEvent) (domain.ClaimOutcome, error) {
	insert := `
		INSERT INTO webhook_events (
			event_id, event_type, status, object_id, account_id,
			provider_created_at, attempt_count, claimed_at, created_at, updated_at
		) VALUES ($1, $2, 'processing', $3, $4, $5, 1, now(), now(), now())
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, insert,
		ev.EventID, ev.Type, nullable(ev.ObjectID), nullable(ev.AccountID), ev.ProviderCreatedAt)
	if err != nil {
		return domain.ClaimBusy, fmt.Errorf("insert ledger row: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.ClaimProceed, nil
	}

	// Row exists; try to take it over under the claim conditions.
	claim := `
		UPDATE webhook_events
		SET status = 'processing',
		    claimed_at = now(),
		    attempt_count = attempt_count + 1,
		    updated_at = now()
		WHERE event_id = $1
		  AND (
		        (status IN ('pending', 'failed') AND NOT terminal)
		     OR (status = 'processing' AND claimed_at < now() - make_interval(secs => $2))
		  )
	`

	tag, err = r.db.Pool.Exec(ctx, claim, ev.EventID, r.claimLease.Seconds())
	if err != nil {
		return domain.ClaimBusy, fmt.Errorf("claim ledger row: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.ClaimProceed, nil
	}

	// Not claimable: distinguish a finished row from a live claim.
	var status string
	var terminal bool
	err = r.db.Pool.QueryRow(ctx,
		`SELECT status, terminal FROM webhook_events WHERE event_id = $1`,
		ev.EventID).Scan(&status, &terminal)
	if err != nil {
		return domain.ClaimBusy, fmt.Errorf("check ledger row: %w", err)
	}

	switch domain.EventStatus(status) {
	case domain.EventSucceeded:
		return domain.ClaimSkip, nil
	case domain.EventFailed:
		if terminal {
			return domain.ClaimSkip, nil
		}
		// Lost a race with another claimer between the UPDATE and this read.
		return domain.ClaimBusy, nil
	default:
		return domain.ClaimBusy, nil
	}
}

// MarkSucceeded resolves a processing claim. Idempotent: marking an already
// succeeded event is a no-op, not an error.
func (r *EventLedgerRepository) MarkSucceeded(ctx context.Context, eventID, resultSummary string) error {
	query := `
		UPDATE webhook_events
		SET status = 'succeeded',
		    result_summary = $2,
		    last_error = NULL,
		    claimed_at = NULL,
		    updated_at = now()
		WHERE event_id = $1
		  AND status IN ('processing', 'succeeded')
	`

	tag, err := r.db.Pool.Exec(ctx, query, eventID, resultSummary)
	if err != nil {
		return fmt.Errorf("mark event succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark event succeeded: event %s not in a resolvable state", eventID)
	}
	return nil
}

func (r *EventLedgerRepository) MarkFailed(ctx context.Context, eventID, errorCode string, terminal bool) error {
	query := `
		UPDATE webhook_events
		SET status = 'failed',
		    last_error = $2,
		    terminal = $3,
		    claimed_at = NULL,
		    updated_at = now()
		WHERE event_id = $1
		  AND status <> 'succeeded'
	`

	_, err := r.db.Pool.Exec(ctx, query, eventID, errorCode, terminal)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// HasProcessedByObject checks the secondary dedup index: did the same business
// fact already succeed under a different event id? Account scope is part of
// the key so connected-account events never collide with platform events.
func (r *EventLedgerRepository) HasProcessedByObject(ctx context.Context, eventType, objectID, accountID string) (bool, string, error) {
	if objectID == "" {
		return false, "", nil
	}

	query := `
		SELECT event_id
		FROM webhook_events
		WHERE event_type = $1
		  AND object_id = $2
		  AND COALESCE(account_id, '') = $3
		  AND status = 'succeeded'
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var eventID string
	err := r.db.Pool.QueryRow(ctx, query, eventType, objectID, accountID).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("dedup lookup: %w", err)
	}
	return true, eventID, nil
}

// ListPendingOrFailedOrdered returns the oldest unresolved ledger rows for the
// retry worker, including processing claims past the lease.
func (r *EventLedgerRepository) ListPendingOrFailedOrdered(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM webhook_events
		WHERE (status IN ('pending', 'failed') AND NOT terminal)
		   OR (status = 'processing' AND claimed_at < now() - make_interval(secs => $1))
		ORDER BY provider_created_at ASC, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, r.claimLease.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("query unresolved events: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.WebhookEvent, error) {
		var m WebhookEventModel
		err := row.Scan(
			&m.EventID, &m.EventType, &m.Status, &m.ObjectID, &m.AccountID, &m.ProviderCreatedAt,
			&m.AttemptCount, &m.LastError, &m.ResultSummary, &m.Terminal, &m.ClaimedAt, &m.CreatedAt, &m.UpdatedAt,
		)
		return toDomainEvent(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan unresolved events: %w", err)
	}
	return results, nil
}

// FindByEventID retrieves one ledger row; used by tests and operational checks.
func (r *EventLedgerRepository) FindByEventID(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE event_id = $1`

	var m WebhookEventModel
	err := r.db.Pool.QueryRow(ctx, query, eventID).Scan(
		&m.EventID, &m.EventType, &m.Status, &m.ObjectID, &m.AccountID, &m.ProviderCreatedAt,
		&m.AttemptCount, &m.LastError, &m.ResultSummary, &m.Terminal, &m.ClaimedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return toDomainEvent(m), nil
}
