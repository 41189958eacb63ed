package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
)

func TestResolveByChargeOrFallback(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, mutate func(*domain.Payment)) *fakePayments {
		t.Helper()
		payments := newFakePayments()
		payment, err := domain.NewPayment("pay-1", "att-1", "evt-venue-1", domain.MethodProvider, 5000, "usd")
		require.NoError(t, err)
		mutate(payment)
		payments.put(payment)
		return payments
	}

	t.Run("intent id wins over weaker keys", func(t *testing.T) {
		pi := "pi_1"
		payments := seed(t, func(p *domain.Payment) { p.ProviderIntentID = &pi })
		resolver := webhook.NewPaymentResolver(payments)

		payment, err := resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{
			IntentID:  "pi_1",
			ChargeID:  "ch_unknown",
			SessionID: "cs_unknown",
		})
		require.NoError(t, err)
		assert.Equal(t, "pay-1", payment.ID)
	})

	t.Run("falls through to charge id", func(t *testing.T) {
		ch := "ch_1"
		payments := seed(t, func(p *domain.Payment) { p.ProviderChargeID = &ch })
		resolver := webhook.NewPaymentResolver(payments)

		payment, err := resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{
			IntentID: "pi_unknown",
			ChargeID: "ch_1",
		})
		require.NoError(t, err)
		assert.Equal(t, "pay-1", payment.ID)
	})

	t.Run("falls through to session id", func(t *testing.T) {
		cs := "cs_1"
		payments := seed(t, func(p *domain.Payment) { p.ProviderSessionID = &cs })
		resolver := webhook.NewPaymentResolver(payments)

		payment, err := resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{SessionID: "cs_1"})
		require.NoError(t, err)
		assert.Equal(t, "pay-1", payment.ID)
	})

	t.Run("metadata payment id is the last resort", func(t *testing.T) {
		payments := seed(t, func(p *domain.Payment) {})
		resolver := webhook.NewPaymentResolver(payments)

		payment, err := resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{
			IntentID:          "pi_unknown",
			MetadataPaymentID: "pay-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "pay-1", payment.ID)
	})

	t.Run("no key matches", func(t *testing.T) {
		payments := seed(t, func(p *domain.Payment) {})
		resolver := webhook.NewPaymentResolver(payments)

		_, err := resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{IntentID: "pi_unknown"})
		assert.ErrorIs(t, err, postgres.ErrPaymentNotFound)
	})

	t.Run("ambiguous match aborts the chain", func(t *testing.T) {
		pi := "pi_dup"
		payments := seed(t, func(p *domain.Payment) { p.ProviderIntentID = &pi })
		dup, err := domain.NewPayment("pay-2", "att-2", "evt-venue-1", domain.MethodProvider, 5000, "usd")
		require.NoError(t, err)
		dup.ProviderIntentID = &pi
		payments.put(dup)
		resolver := webhook.NewPaymentResolver(payments)

		// A session key that would match is never consulted.
		_, err = resolver.ResolveByChargeOrFallback(ctx, webhook.PaymentRefs{
			IntentID:          "pi_dup",
			MetadataPaymentID: "pay-1",
		})
		assert.ErrorIs(t, err, domain.ErrAmbiguousPaymentMatch)
	})
}
