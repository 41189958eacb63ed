// Package provider wraps the Stripe SDK behind the application's
// ProviderClient port so handlers and workers can be tested against a fake.
package provider

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/config"
)

type StripeClient struct {
	api *client.API
}

func NewStripeClient(cfg config.ProviderConfig) *StripeClient {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	return &StripeClient{api: api}
}

var _ application.ProviderClient = (*StripeClient)(nil)

// GetEvent fetches the authoritative event by id, scoped to the connected
// account when one is set.
func (c *StripeClient) GetEvent(ctx context.Context, eventID string, accountID string) (*stripe.Event, error) {
	params := &stripe.EventParams{}
	params.Context = ctx
	if accountID != "" {
		params.SetStripeAccount(accountID)
	}

	event, err := c.api.Events.Get(eventID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch event %s: %w", eventID, err)
	}
	return event, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req application.CheckoutSessionRequest) (*application.CheckoutSessionResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Event participation fee"),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{},
	}
	params.Context = ctx

	// The payment id rides along on both the session and the intent so the
	// resolver's metadata fallback works from either object.
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("attendance_id", req.AttendanceID)
	params.AddMetadata("event_id", req.EventID)
	params.PaymentIntentData.AddMetadata("payment_id", req.PaymentID)

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &application.CheckoutSessionResponse{
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}
