package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
	"github.com/sotaro-dev/meetup-payments/internal/worker"
)

// memLedger keeps just enough of the ledger contract for batch tests.
type memLedger struct {
	rows map[string]*domain.WebhookEvent
	// listing order is controlled explicitly so tests are deterministic
	order []string
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*domain.WebhookEvent)}
}

func (m *memLedger) addFailed(eventID, eventType, objectID string) {
	m.rows[eventID] = &domain.WebhookEvent{
		EventID:  eventID,
		Type:     eventType,
		Status:   domain.EventFailed,
		ObjectID: objectID,
	}
	m.order = append(m.order, eventID)
}

func (m *memLedger) addSucceeded(eventID, eventType, objectID string) {
	summary := "done"
	m.rows[eventID] = &domain.WebhookEvent{
		EventID:       eventID,
		Type:          eventType,
		Status:        domain.EventSucceeded,
		ObjectID:      objectID,
		ResultSummary: &summary,
	}
}

func (m *memLedger) BeginProcessing(_ context.Context, ev domain.WebhookEvent) (domain.ClaimOutcome, error) {
	row, ok := m.rows[ev.EventID]
	if !ok {
		ev.Status = domain.EventProcessing
		m.rows[ev.EventID] = &ev
		return domain.ClaimProceed, nil
	}
	switch {
	case row.Status == domain.EventSucceeded, row.Status == domain.EventFailed && row.Terminal:
		return domain.ClaimSkip, nil
	case row.Status == domain.EventProcessing:
		return domain.ClaimBusy, nil
	default:
		row.Status = domain.EventProcessing
		row.AttemptCount++
		return domain.ClaimProceed, nil
	}
}

func (m *memLedger) MarkSucceeded(_ context.Context, eventID, resultSummary string) error {
	row, ok := m.rows[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	// Same guard as the repository: only a held claim (or an already
	// succeeded row) can be resolved.
	if row.Status != domain.EventProcessing && row.Status != domain.EventSucceeded {
		return fmt.Errorf("event %s not in a resolvable state", eventID)
	}
	row.Status = domain.EventSucceeded
	row.ResultSummary = &resultSummary
	return nil
}

func (m *memLedger) MarkFailed(_ context.Context, eventID, errorCode string, terminal bool) error {
	row, ok := m.rows[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	if row.Status == domain.EventSucceeded {
		return nil
	}
	row.Status = domain.EventFailed
	row.LastError = &errorCode
	row.Terminal = terminal
	return nil
}

func (m *memLedger) HasProcessedByObject(_ context.Context, eventType, objectID, accountID string) (bool, string, error) {
	for _, row := range m.rows {
		if row.Status == domain.EventSucceeded && row.Type == eventType &&
			row.ObjectID == objectID && row.AccountID == accountID {
			return true, row.EventID, nil
		}
	}
	return false, "", nil
}

func (m *memLedger) ListPendingOrFailedOrdered(_ context.Context, limit int) ([]*domain.WebhookEvent, error) {
	var out []*domain.WebhookEvent
	for _, id := range m.order {
		row := m.rows[id]
		if row.Terminal || (row.Status != domain.EventPending && row.Status != domain.EventFailed) {
			continue
		}
		copied := *row
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// memPayments resolves payments by provider intent id only.
type memPayments struct {
	byIntent map[string]*domain.Payment
}

func (m *memPayments) Create(context.Context, *domain.Payment) error { return nil }

func (m *memPayments) FindByID(context.Context, string) (*domain.Payment, error) {
	return nil, postgres.ErrPaymentNotFound
}

func (m *memPayments) FindByAttendanceID(context.Context, string) ([]*domain.Payment, error) {
	return nil, nil
}

func (m *memPayments) FindByProviderIntentID(_ context.Context, intentID string) (*domain.Payment, error) {
	if p, ok := m.byIntent[intentID]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, postgres.ErrPaymentNotFound
}

func (m *memPayments) FindByProviderChargeID(context.Context, string) (*domain.Payment, error) {
	return nil, postgres.ErrPaymentNotFound
}

func (m *memPayments) FindByProviderSessionID(context.Context, string) (*domain.Payment, error) {
	return nil, postgres.ErrPaymentNotFound
}

func (m *memPayments) UpdateFromWebhook(_ context.Context, p *domain.Payment) error {
	if stored, ok := m.byIntent[derefOr(p.ProviderIntentID)]; ok {
		*stored = *p
		stored.Version++
	}
	return nil
}

func (m *memPayments) UpdateStatusCAS(context.Context, string, int, domain.PaymentStatus, *time.Time, string) (int, error) {
	return 0, postgres.ErrPaymentNotFound
}

func (m *memPayments) AttachSessionCAS(context.Context, string, int, string) (int, error) {
	return 0, postgres.ErrPaymentNotFound
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type memDisputes struct{}

func (memDisputes) Upsert(context.Context, *domain.Dispute) error { return nil }
func (memDisputes) FindByProviderDisputeID(context.Context, string) (*domain.Dispute, error) {
	return nil, postgres.ErrDisputeNotFound
}

type memSettlements struct{}

func (memSettlements) Regenerate(_ context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	return &domain.SettlementSnapshot{EventID: eventID}, nil
}
func (memSettlements) Find(context.Context, string) (*domain.SettlementSnapshot, error) {
	return nil, postgres.ErrSnapshotNotFound
}

// memProvider serves canned events by id.
type memProvider struct {
	events  map[string]*stripe.Event
	fetches int
}

func (m *memProvider) GetEvent(_ context.Context, eventID, _ string) (*stripe.Event, error) {
	m.fetches++
	ev, ok := m.events[eventID]
	if !ok {
		return nil, errors.New("provider fetch failed")
	}
	return ev, nil
}

func (m *memProvider) CreateCheckoutSession(context.Context, application.CheckoutSessionRequest) (*application.CheckoutSessionResponse, error) {
	return nil, errors.New("not implemented")
}

func intentEvent(id, intentID string) *stripe.Event {
	raw, _ := json.Marshal(map[string]any{"id": intentID})
	return &stripe.Event{
		ID:      id,
		Type:    "payment_intent.succeeded",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

type workerFixture struct {
	ledger   *memLedger
	payments *memPayments
	provider *memProvider
	worker   *worker.RetryWorker
}

func newWorkerFixture() *workerFixture {
	f := &workerFixture{
		ledger:   newMemLedger(),
		payments: &memPayments{byIntent: make(map[string]*domain.Payment)},
		provider: &memProvider{events: make(map[string]*stripe.Event)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	processor := webhook.NewProcessor(f.ledger, f.payments, memDisputes{}, memSettlements{}, nil, logger)
	f.worker = worker.NewRetryWorker(f.ledger, f.provider, processor, nil, time.Minute, 25, logger)
	return f
}

func (f *workerFixture) addPayment(intentID string) {
	f.payments.byIntent[intentID] = &domain.Payment{
		ID:           "pay-" + intentID,
		AttendanceID: "att-1",
		EventID:      "evt-venue-1",
		Method:       domain.MethodProvider,
		Status:       domain.StatusPending,
		Version:      1,
		ProviderIntentID: func() *string {
			s := intentID
			return &s
		}(),
	}
}

func TestProcessBatch_RedrainsFailedEvents(t *testing.T) {
	f := newWorkerFixture()
	f.addPayment("pi_1")
	f.ledger.addFailed("evt_1", "payment_intent.succeeded", "pi_1")
	f.provider.events["evt_1"] = intentEvent("evt_1", "pi_1")

	stats, err := f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{Processed: 1, Succeeded: 1}, stats)

	assert.Equal(t, domain.EventSucceeded, f.ledger.rows["evt_1"].Status)
	assert.Equal(t, domain.StatusPaid, f.payments.byIntent["pi_1"].Status)
}

func TestProcessBatch_DedupBeforeRefetch(t *testing.T) {
	f := newWorkerFixture()
	f.addPayment("pi_1")
	// Another envelope already handled this object.
	f.ledger.addSucceeded("evt_first", "payment_intent.succeeded", "pi_1")
	f.ledger.addFailed("evt_dup", "payment_intent.succeeded", "pi_1")

	stats, err := f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{Processed: 1, Skipped: 1}, stats)

	// Resolved without a provider round trip.
	assert.Zero(t, f.provider.fetches)

	row := f.ledger.rows["evt_dup"]
	assert.Equal(t, domain.EventSucceeded, row.Status)
	require.NotNil(t, row.ResultSummary)
	assert.Equal(t, "skipped: object handled by event evt_first", *row.ResultSummary)

	// The row is resolved for good: a second pass finds nothing to drain.
	stats, err = f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{}, stats)
}

func TestProcessBatch_FetchFailureLeavesRow(t *testing.T) {
	f := newWorkerFixture()
	f.ledger.addFailed("evt_gone", "payment_intent.succeeded", "pi_1")

	stats, err := f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{Processed: 1, Failed: 1}, stats)

	// The row stays failed and non-terminal for the next pass.
	row := f.ledger.rows["evt_gone"]
	assert.Equal(t, domain.EventFailed, row.Status)
	assert.False(t, row.Terminal)
}

func TestProcessBatch_MixedBatchCounts(t *testing.T) {
	f := newWorkerFixture()

	f.addPayment("pi_ok")
	f.ledger.addFailed("evt_ok", "payment_intent.succeeded", "pi_ok")
	f.provider.events["evt_ok"] = intentEvent("evt_ok", "pi_ok")

	// Payment row missing: handler fails, row stays retryable.
	f.ledger.addFailed("evt_orphan", "payment_intent.succeeded", "pi_missing")
	f.provider.events["evt_orphan"] = intentEvent("evt_orphan", "pi_missing")

	f.ledger.addFailed("evt_unfetchable", "payment_intent.succeeded", "pi_x")

	stats, err := f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{Processed: 3, Succeeded: 1, Failed: 2}, stats)
}

func TestProcessBatch_RespectsLimit(t *testing.T) {
	f := newWorkerFixture()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("evt_%d", i)
		f.ledger.addFailed(id, "payment_intent.succeeded", fmt.Sprintf("pi_%d", i))
	}

	stats, err := f.worker.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
}

func TestProcessBatch_EmptyLedger(t *testing.T) {
	f := newWorkerFixture()

	stats, err := f.worker.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, worker.BatchStats{}, stats)
}
