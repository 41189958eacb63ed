package webhook_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

// fakeLedger is an in-memory stand-in for the postgres event ledger. It keeps
// the same claim semantics: first claim proceeds, a resolved row skips, a live
// claim is busy.
type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]*domain.WebhookEvent

	failMarkSucceeded bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*domain.WebhookEvent)}
}

func (f *fakeLedger) BeginProcessing(_ context.Context, ev domain.WebhookEvent) (domain.ClaimOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[ev.EventID]
	if !ok {
		now := time.Now()
		ev.Status = domain.EventProcessing
		ev.AttemptCount = 1
		ev.ClaimedAt = &now
		ev.CreatedAt = now
		f.rows[ev.EventID] = &ev
		return domain.ClaimProceed, nil
	}

	switch {
	case row.Status == domain.EventSucceeded:
		return domain.ClaimSkip, nil
	case row.Status == domain.EventFailed && row.Terminal:
		return domain.ClaimSkip, nil
	case row.Status == domain.EventProcessing:
		return domain.ClaimBusy, nil
	default:
		now := time.Now()
		row.Status = domain.EventProcessing
		row.AttemptCount++
		row.ClaimedAt = &now
		return domain.ClaimProceed, nil
	}
}

func (f *fakeLedger) MarkSucceeded(_ context.Context, eventID, resultSummary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failMarkSucceeded {
		return errors.New("connection reset by peer")
	}
	row, ok := f.rows[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	row.Status = domain.EventSucceeded
	row.ResultSummary = &resultSummary
	row.ClaimedAt = nil
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, eventID, errorCode string, terminal bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	row.Status = domain.EventFailed
	row.LastError = &errorCode
	row.Terminal = terminal
	row.ClaimedAt = nil
	return nil
}

func (f *fakeLedger) HasProcessedByObject(_ context.Context, eventType, objectID, accountID string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.Status == domain.EventSucceeded &&
			row.Type == eventType &&
			row.ObjectID == objectID &&
			row.AccountID == accountID {
			return true, row.EventID, nil
		}
	}
	return false, "", nil
}

func (f *fakeLedger) ListPendingOrFailedOrdered(_ context.Context, limit int) ([]*domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.WebhookEvent
	for _, row := range f.rows {
		if row.Terminal {
			continue
		}
		if row.Status == domain.EventPending || row.Status == domain.EventFailed {
			copied := *row
			out = append(out, &copied)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLedger) row(eventID string) *domain.WebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[eventID]
}

// fakePayments mirrors the repository contract, including the two-match
// ambiguity rule on provider reference lookups.
type fakePayments struct {
	mu   sync.Mutex
	rows map[string]*domain.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{rows: make(map[string]*domain.Payment)}
}

func (f *fakePayments) put(p *domain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.rows[p.ID] = &copied
}

func (f *fakePayments) get(id string) *domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakePayments) Create(_ context.Context, p *domain.Payment) error {
	f.put(p)
	return nil
}

func (f *fakePayments) FindByID(_ context.Context, id string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, postgres.ErrPaymentNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakePayments) FindByAttendanceID(_ context.Context, attendanceID string) ([]*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Payment
	for _, row := range f.rows {
		if row.AttendanceID == attendanceID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePayments) findByRef(pick func(*domain.Payment) *string, value string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []*domain.Payment
	for _, row := range f.rows {
		if ref := pick(row); ref != nil && *ref == value {
			matches = append(matches, row)
		}
	}
	switch len(matches) {
	case 0:
		return nil, postgres.ErrPaymentNotFound
	case 1:
		copied := *matches[0]
		return &copied, nil
	default:
		return nil, fmt.Errorf("reference %s: %w", value, domain.ErrAmbiguousPaymentMatch)
	}
}

func (f *fakePayments) FindByProviderIntentID(_ context.Context, intentID string) (*domain.Payment, error) {
	return f.findByRef(func(p *domain.Payment) *string { return p.ProviderIntentID }, intentID)
}

func (f *fakePayments) FindByProviderChargeID(_ context.Context, chargeID string) (*domain.Payment, error) {
	return f.findByRef(func(p *domain.Payment) *string { return p.ProviderChargeID }, chargeID)
}

func (f *fakePayments) FindByProviderSessionID(_ context.Context, sessionID string) (*domain.Payment, error) {
	return f.findByRef(func(p *domain.Payment) *string { return p.ProviderSessionID }, sessionID)
}

func (f *fakePayments) UpdateFromWebhook(_ context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[p.ID]
	if !ok {
		return postgres.ErrPaymentNotFound
	}
	copied := *p
	copied.Version = row.Version + 1
	f.rows[p.ID] = &copied
	return nil
}

func (f *fakePayments) UpdateStatusCAS(_ context.Context, id string, expectedVersion int, status domain.PaymentStatus, paidAt *time.Time, notes string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return 0, postgres.ErrPaymentNotFound
	}
	if row.Version != expectedVersion {
		return 0, domain.ErrConcurrentUpdate
	}
	row.Status = status
	row.PaidAt = paidAt
	if notes != "" {
		row.Notes = &notes
	}
	row.Version++
	row.UpdatedAt = time.Now()
	return row.Version, nil
}

func (f *fakePayments) AttachSessionCAS(_ context.Context, id string, expectedVersion int, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return 0, postgres.ErrPaymentNotFound
	}
	if row.Version != expectedVersion {
		return 0, domain.ErrConcurrentUpdate
	}
	row.ProviderSessionID = &sessionID
	row.Version++
	return row.Version, nil
}

type fakeDisputes struct {
	mu   sync.Mutex
	rows map[string]*domain.Dispute
}

func newFakeDisputes() *fakeDisputes {
	return &fakeDisputes{rows: make(map[string]*domain.Dispute)}
}

func (f *fakeDisputes) Upsert(_ context.Context, d *domain.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *d
	f.rows[d.ProviderDisputeID] = &copied
	return nil
}

func (f *fakeDisputes) FindByProviderDisputeID(_ context.Context, providerDisputeID string) (*domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[providerDisputeID]
	if !ok {
		return nil, postgres.ErrDisputeNotFound
	}
	copied := *row
	return &copied, nil
}

type fakeSettlements struct {
	mu          sync.Mutex
	regenerated []string
}

func (f *fakeSettlements) Regenerate(_ context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regenerated = append(f.regenerated, eventID)
	return &domain.SettlementSnapshot{EventID: eventID, GeneratedAt: time.Now()}, nil
}

func (f *fakeSettlements) Find(_ context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	return nil, postgres.ErrSnapshotNotFound
}

func (f *fakeSettlements) regenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regenerated)
}
