package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v75"
)

// EventKind is the closed set of event shapes this system acts on. Everything
// else decodes to KindUnhandled and is acknowledged without action, so new
// provider event types never break ingestion.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindCheckoutCompleted
	KindCheckoutExpired
	KindIntentSucceeded
	KindIntentFailed
	KindChargeRefunded
	KindDispute
)

func (k EventKind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "checkout_completed"
	case KindCheckoutExpired:
		return "checkout_expired"
	case KindIntentSucceeded:
		return "intent_succeeded"
	case KindIntentFailed:
		return "intent_failed"
	case KindChargeRefunded:
		return "charge_refunded"
	case KindDispute:
		return "dispute"
	default:
		return "unhandled"
	}
}

// DecodedEvent is the typed form of one provider event, produced once at the
// dispatcher boundary. Exactly one of the object pointers matching Kind is set.
type DecodedEvent struct {
	ID        string
	Type      string
	AccountID string
	CreatedAt time.Time
	Kind      EventKind

	Session *stripe.CheckoutSession
	Intent  *stripe.PaymentIntent
	Charge  *stripe.Charge
	Dispute *stripe.Dispute
}

// ObjectID is the business-object key used by the dedup-by-object index.
func (d *DecodedEvent) ObjectID() string {
	switch d.Kind {
	case KindCheckoutCompleted, KindCheckoutExpired:
		return d.Session.ID
	case KindIntentSucceeded, KindIntentFailed:
		return d.Intent.ID
	case KindChargeRefunded:
		return d.Charge.ID
	case KindDispute:
		return d.Dispute.ID
	default:
		return ""
	}
}

// Decode maps a verified provider event to its typed form.
func Decode(ev *stripe.Event) (*DecodedEvent, error) {
	decoded := &DecodedEvent{
		ID:        ev.ID,
		Type:      string(ev.Type),
		AccountID: ev.Account,
		CreatedAt: time.Unix(ev.Created, 0).UTC(),
		Kind:      KindUnhandled,
	}

	unmarshal := func(v any) error {
		if ev.Data == nil || len(ev.Data.Raw) == 0 {
			return fmt.Errorf("event %s has no payload", ev.ID)
		}
		if err := json.Unmarshal(ev.Data.Raw, v); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Type, err)
		}
		return nil
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := unmarshal(&session); err != nil {
			return nil, err
		}
		decoded.Session = &session
		if ev.Type == "checkout.session.completed" {
			decoded.Kind = KindCheckoutCompleted
		} else {
			decoded.Kind = KindCheckoutExpired
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := unmarshal(&intent); err != nil {
			return nil, err
		}
		decoded.Intent = &intent
		if ev.Type == "payment_intent.succeeded" {
			decoded.Kind = KindIntentSucceeded
		} else {
			decoded.Kind = KindIntentFailed
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := unmarshal(&charge); err != nil {
			return nil, err
		}
		decoded.Charge = &charge
		decoded.Kind = KindChargeRefunded

	case "charge.dispute.created", "charge.dispute.updated", "charge.dispute.closed", "charge.dispute.funds_withdrawn", "charge.dispute.funds_reinstated":
		var dispute stripe.Dispute
		if err := unmarshal(&dispute); err != nil {
			return nil, err
		}
		decoded.Dispute = &dispute
		decoded.Kind = KindDispute
	}

	return decoded, nil
}
