package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

func (p *Processor) handleCheckoutCompleted(ctx context.Context, ev *DecodedEvent) (string, error) {
	session := ev.Session

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		SessionID:         session.ID,
		IntentID:          intentID(session.PaymentIntent),
		MetadataPaymentID: session.Metadata["payment_id"],
	})
	if err != nil {
		return "", fmt.Errorf("resolve payment for session %s: %w", session.ID, err)
	}

	if payment.Status == domain.StatusPaid {
		return "already paid", nil
	}

	payment.MarkPaid("", intentID(session.PaymentIntent), ev.CreatedAt, ev.ID)
	if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
		return "", fmt.Errorf("persist paid payment %s: %w", payment.ID, err)
	}
	return fmt.Sprintf("payment %s marked paid", payment.ID), nil
}

func (p *Processor) handleCheckoutExpired(ctx context.Context, ev *DecodedEvent) (string, error) {
	session := ev.Session

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		SessionID:         session.ID,
		MetadataPaymentID: session.Metadata["payment_id"],
	})
	if err != nil {
		return "", fmt.Errorf("resolve payment for session %s: %w", session.ID, err)
	}

	if payment.IsTerminal() {
		return "ignored: payment already settled", nil
	}

	payment.MarkCanceled(ev.ID)
	if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
		return "", fmt.Errorf("persist canceled payment %s: %w", payment.ID, err)
	}
	return fmt.Sprintf("payment %s marked canceled", payment.ID), nil
}

func (p *Processor) handleIntentSucceeded(ctx context.Context, ev *DecodedEvent) (string, error) {
	intent := ev.Intent

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		IntentID:          intent.ID,
		ChargeID:          chargeID(intent.LatestCharge),
		MetadataPaymentID: intent.Metadata["payment_id"],
	})
	if err != nil {
		return "", fmt.Errorf("resolve payment for intent %s: %w", intent.ID, err)
	}

	if payment.Status == domain.StatusPaid {
		return "already paid", nil
	}

	payment.MarkPaid(chargeID(intent.LatestCharge), intent.ID, ev.CreatedAt, ev.ID)
	if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
		return "", fmt.Errorf("persist paid payment %s: %w", payment.ID, err)
	}
	return fmt.Sprintf("payment %s marked paid", payment.ID), nil
}

func (p *Processor) handleIntentFailed(ctx context.Context, ev *DecodedEvent) (string, error) {
	intent := ev.Intent

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		IntentID:          intent.ID,
		ChargeID:          chargeID(intent.LatestCharge),
		MetadataPaymentID: intent.Metadata["payment_id"],
	})
	if err != nil {
		return "", fmt.Errorf("resolve payment for intent %s: %w", intent.ID, err)
	}

	// A late failure event must never reopen a settled payment.
	if payment.IsTerminal() {
		return "ignored: payment already settled", nil
	}

	payment.MarkFailed(ev.ID)
	if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
		return "", fmt.Errorf("persist failed payment %s: %w", payment.ID, err)
	}
	return fmt.Sprintf("payment %s marked failed", payment.ID), nil
}

func (p *Processor) handleChargeRefunded(ctx context.Context, ev *DecodedEvent) (string, error) {
	charge := ev.Charge

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		ChargeID:          charge.ID,
		IntentID:          intentID(charge.PaymentIntent),
		MetadataPaymentID: charge.Metadata["payment_id"],
	})
	if err != nil {
		return "", fmt.Errorf("resolve payment for charge %s: %w", charge.ID, err)
	}

	payment.MarkRefunded(charge.AmountRefunded, ev.ID)
	if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
		return "", fmt.Errorf("persist refunded payment %s: %w", payment.ID, err)
	}

	// A refund invalidates the event's prior totals; the snapshot is
	// regenerated whole, never patched.
	if _, err := p.settlements.Regenerate(ctx, payment.EventID); err != nil {
		return "", fmt.Errorf("regenerate settlement for event %s: %w", payment.EventID, err)
	}
	return fmt.Sprintf("payment %s refunded, settlement regenerated", payment.ID), nil
}

func (p *Processor) handleDispute(ctx context.Context, ev *DecodedEvent) (string, error) {
	dispute := ev.Dispute

	payment, err := p.resolver.ResolveByChargeOrFallback(ctx, PaymentRefs{
		ChargeID: chargeID(dispute.Charge),
		IntentID: intentID(dispute.PaymentIntent),
	})
	if err != nil {
		if !errors.Is(err, postgres.ErrPaymentNotFound) {
			// An ambiguous match is terminal: crediting or debiting an
			// ambiguously resolved payment is unacceptable.
			return "", fmt.Errorf("resolve payment for dispute %s: %w", dispute.ID, err)
		}
		payment = nil
	}

	record := &domain.Dispute{
		ID:                uuid.New().String(),
		ProviderDisputeID: dispute.ID,
		ChargeID:          chargeID(dispute.Charge),
		Status:            string(dispute.Status),
		AmountCents:       dispute.Amount,
		Currency:          string(dispute.Currency),
	}
	if payment != nil {
		record.PaymentID = &payment.ID
	}

	if err := p.disputes.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("upsert dispute %s: %w", dispute.ID, err)
	}

	// A lost dispute means the funds are gone; reflect it like a refund and
	// rebuild the event's totals.
	if dispute.Status == stripe.DisputeStatusLost && payment != nil && payment.Status != domain.StatusRefunded {
		payment.MarkRefunded(dispute.Amount, ev.ID)
		if err := p.payments.UpdateFromWebhook(ctx, payment); err != nil {
			return "", fmt.Errorf("persist disputed payment %s: %w", payment.ID, err)
		}
		if _, err := p.settlements.Regenerate(ctx, payment.EventID); err != nil {
			return "", fmt.Errorf("regenerate settlement for event %s: %w", payment.EventID, err)
		}
		return fmt.Sprintf("dispute %s lost, payment %s written off", dispute.ID, payment.ID), nil
	}

	return fmt.Sprintf("dispute %s recorded with status %s", dispute.ID, dispute.Status), nil
}

func intentID(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func chargeID(ch *stripe.Charge) string {
	if ch == nil {
		return ""
	}
	return ch.ID
}
