package application

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v75"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

// ProviderClient is the port to the external payment provider. Injected
// explicitly so tests can substitute a fake instead of a shared SDK singleton.
type ProviderClient interface {
	// GetEvent re-fetches the authoritative event by id. The retry worker
	// never replays a locally cached payload.
	GetEvent(ctx context.Context, eventID string, accountID string) (*stripe.Event, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResponse, error)
}

type CheckoutSessionRequest struct {
	PaymentID    string
	AttendanceID string
	EventID      string
	AmountCents  int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

type CheckoutSessionResponse struct {
	SessionID string
	URL       string
}

// EventLedger is the idempotency store for externally delivered events.
type EventLedger interface {
	// BeginProcessing atomically claims or inserts the ledger row for ev.
	BeginProcessing(ctx context.Context, ev domain.WebhookEvent) (domain.ClaimOutcome, error)
	// MarkSucceeded resolves a processing claim; idempotent.
	MarkSucceeded(ctx context.Context, eventID, resultSummary string) error
	// MarkFailed records a failure. terminal=true rows are never retried.
	MarkFailed(ctx context.Context, eventID, errorCode string, terminal bool) error
	// HasProcessedByObject reports whether the same business fact already
	// succeeded under a different event id, and which one.
	HasProcessedByObject(ctx context.Context, eventType, objectID, accountID string) (bool, string, error)
	// ListPendingOrFailedOrdered returns the oldest unresolved rows,
	// including processing claims older than the lease.
	ListPendingOrFailedOrdered(ctx context.Context, limit int) ([]*domain.WebhookEvent, error)
}

// CASOutcome is the per-item result of a bulk CAS update.
type CASOutcome struct {
	PaymentID  string
	NewVersion int
	Err        error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	// FindByAttendanceID returns every payment row for one attendance so the
	// caller can apply the authority rule.
	FindByAttendanceID(ctx context.Context, attendanceID string) ([]*domain.Payment, error)
	// FindByProviderIntentID / FindByProviderChargeID return
	// domain.ErrAmbiguousPaymentMatch when more than one row carries the key.
	FindByProviderIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	FindByProviderChargeID(ctx context.Context, chargeID string) (*domain.Payment, error)
	FindByProviderSessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
	// UpdateFromWebhook persists handler-side mutations. The caller holds the
	// ledger claim for the source event; the row version still moves by one.
	UpdateFromWebhook(ctx context.Context, p *domain.Payment) error
	// UpdateStatusCAS applies the change only if the stored version matches
	// expectedVersion, returning the new version. Mismatch yields
	// domain.ErrConcurrentUpdate.
	UpdateStatusCAS(ctx context.Context, id string, expectedVersion int, status domain.PaymentStatus, paidAt *time.Time, notes string) (int, error)
	// AttachSessionCAS records a freshly created checkout session on a still
	// open payment row, guarded by the same version check.
	AttachSessionCAS(ctx context.Context, id string, expectedVersion int, sessionID string) (int, error)
}

type DisputeRepository interface {
	// Upsert inserts or updates the dispute keyed by provider dispute id.
	Upsert(ctx context.Context, d *domain.Dispute) error
	FindByProviderDisputeID(ctx context.Context, providerDisputeID string) (*domain.Dispute, error)
}

type SettlementRepository interface {
	// Regenerate recomputes the event's snapshot from current payment rows
	// and stores it, replacing any prior snapshot. Idempotent.
	Regenerate(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error)
	Find(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error)
}
