package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
)

// maxWebhookBody bounds the raw payload read. Provider events are a few KB;
// anything past this is not a legitimate delivery.
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Result   string `json:"result,omitempty"`
}

// HandleWebhook is the provider-facing ingestion endpoint.
//
// Response contract: an authenticated, parseable envelope is always answered
// 200 regardless of what processing decided, because the ledger already holds
// the outcome and a provider retry of an acknowledged event is pure noise.
// Only signature and parse failures return 400, which asks the provider to
// redeliver.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", "error", err)
		http.Error(w, "unable to read request body", http.StatusBadRequest)
		return
	}

	event, err := webhook.VerifyEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecrets, h.signatureTolerance)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", "error", err)
		} else {
			h.logger.Warn("webhook payload rejected", "error", err)
		}
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	result := h.processor.ProcessEvent(r.Context(), &event)

	rest.WriteJSON(w, http.StatusOK, webhookResponse{
		Received: true,
		EventID:  event.ID,
		Result:   string(result),
	})
}
