package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

// NewPendingPayment builds a valid payment row without persisting it.
func NewPendingPayment(t *testing.T, method domain.PaymentMethod) *domain.Payment {
	payment, err := domain.NewPayment(
		uuid.New().String(),
		"att-"+uuid.New().String(),
		"evt-"+uuid.New().String(),
		method,
		5000,
		"usd",
	)
	require.NoError(t, err)
	return payment
}

// CreatePayment persists a fresh pending payment and returns it.
func CreatePayment(t *testing.T, ctx context.Context, repo *postgres.PaymentRepository, method domain.PaymentMethod) *domain.Payment {
	payment := NewPendingPayment(t, method)
	require.NoError(t, repo.Create(ctx, payment))
	return payment
}

// NewWebhookEvent builds a ledger entry for an incoming delivery.
func NewWebhookEvent(eventType, objectID string) domain.WebhookEvent {
	return domain.WebhookEvent{
		EventID:           "evt_" + uuid.New().String(),
		Type:              eventType,
		ObjectID:          objectID,
		ProviderCreatedAt: time.Now().UTC(),
	}
}
