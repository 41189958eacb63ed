package webhook

import (
	"context"
	"errors"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

// PaymentRefs carries every provider identifier an event may expose. Providers
// do not populate all of them on every event type.
type PaymentRefs struct {
	IntentID          string
	ChargeID          string
	SessionID         string
	MetadataPaymentID string
}

// PaymentResolver maps provider identifiers to internal payment rows through a
// fallback chain, degrading from the most specific key to the least.
type PaymentResolver struct {
	payments application.PaymentRepository
}

func NewPaymentResolver(payments application.PaymentRepository) *PaymentResolver {
	return &PaymentResolver{payments: payments}
}

// ResolveByChargeOrFallback tries the payment-intent id, then the charge id,
// then the session id, then the payment id embedded in event metadata. First
// match wins. An ambiguous match aborts the chain: that error is terminal and
// must reach the caller unchanged.
func (r *PaymentResolver) ResolveByChargeOrFallback(ctx context.Context, refs PaymentRefs) (*domain.Payment, error) {
	lookups := []func(context.Context) (*domain.Payment, error){
		func(ctx context.Context) (*domain.Payment, error) {
			if refs.IntentID == "" {
				return nil, postgres.ErrPaymentNotFound
			}
			return r.payments.FindByProviderIntentID(ctx, refs.IntentID)
		},
		func(ctx context.Context) (*domain.Payment, error) {
			if refs.ChargeID == "" {
				return nil, postgres.ErrPaymentNotFound
			}
			return r.payments.FindByProviderChargeID(ctx, refs.ChargeID)
		},
		func(ctx context.Context) (*domain.Payment, error) {
			if refs.SessionID == "" {
				return nil, postgres.ErrPaymentNotFound
			}
			return r.payments.FindByProviderSessionID(ctx, refs.SessionID)
		},
		func(ctx context.Context) (*domain.Payment, error) {
			if refs.MetadataPaymentID == "" {
				return nil, postgres.ErrPaymentNotFound
			}
			return r.payments.FindByID(ctx, refs.MetadataPaymentID)
		},
	}

	for _, lookup := range lookups {
		payment, err := lookup(ctx)
		if err == nil {
			return payment, nil
		}
		if errors.Is(err, postgres.ErrPaymentNotFound) {
			continue
		}
		return nil, err
	}
	return nil, postgres.ErrPaymentNotFound
}
