// Package webhook ingests provider events: signature verification, typed
// decoding, dispatch through the event ledger, and the business handlers.
package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v75"
	stripewebhook "github.com/stripe/stripe-go/v75/webhook"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

// DefaultTolerance is how far a signed timestamp may drift before the payload
// is rejected as a possible replay.
const DefaultTolerance = 300 * time.Second

// VerifyEvent authenticates a raw payload against an ordered list of candidate
// secrets (current first, then previous, so rotation never drops deliveries).
// The first secret that validates wins. Pure function, no side effects.
func VerifyEvent(payload []byte, sigHeader string, secrets []string, tolerance time.Duration) (stripe.Event, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var lastErr error
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		event, err := stripewebhook.ConstructEventWithTolerance(payload, sigHeader, secret, tolerance)
		if err == nil {
			return event, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no webhook secrets configured")
	}
	return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, lastErr)
}
