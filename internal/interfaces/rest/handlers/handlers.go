// Package handlers exposes the core's HTTP surface: the webhook endpoint, the
// authenticated retry trigger, manual cash-status updates and settlement
// regeneration.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/application/services"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
	"github.com/sotaro-dev/meetup-payments/internal/worker"
)

type Handlers struct {
	processor       *webhook.Processor
	retryWorker     *worker.RetryWorker
	checkoutService *services.CheckoutService
	cashService     *services.CashStatusService
	settlementSvc   *services.SettlementService

	webhookSecrets     []string
	signatureTolerance time.Duration
	retrySecret        string
	logger             *slog.Logger
}

func NewHandlers(
	processor *webhook.Processor,
	retryWorker *worker.RetryWorker,
	checkoutService *services.CheckoutService,
	cashService *services.CashStatusService,
	settlementSvc *services.SettlementService,
	webhookSecrets []string,
	signatureTolerance time.Duration,
	retrySecret string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		processor:          processor,
		retryWorker:        retryWorker,
		checkoutService:    checkoutService,
		cashService:        cashService,
		settlementSvc:      settlementSvc,
		webhookSecrets:     webhookSecrets,
		signatureTolerance: signatureTolerance,
		retrySecret:        retrySecret,
		logger:             logger,
	}
}

// Register wires all routes onto the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleWebhook)
	mux.HandleFunc("POST /internal/retry-events", h.HandleRetryTrigger)
	mux.HandleFunc("POST /checkout-sessions", h.HandleCreateSession)
	mux.HandleFunc("POST /payments/cash", h.HandleRegisterCash)
	mux.HandleFunc("POST /payments/cash-status", h.HandleCashStatus)
	mux.HandleFunc("POST /payments/cash-status/bulk", h.HandleBulkCashStatus)
	mux.HandleFunc("POST /events/{id}/settlement", h.HandleRegenerateSettlement)
	mux.HandleFunc("GET /events/{id}/settlement", h.HandleGetSettlement)
}
