package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
)

// HandleRetryTrigger drains a bounded batch of unresolved ledger entries on
// demand. Operator-only: the shared secret travels in X-Retry-Secret and is
// compared in constant time.
func (h *Handlers) HandleRetryTrigger(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Retry-Secret")
	if h.retrySecret == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(h.retrySecret)) != 1 {
		rest.WriteError(w, application.NewUnauthorizedError(), h.logger)
		return
	}

	// The worker's configured batch size is the hard cap; a larger limit
	// would be silently clamped, so reject it up front.
	limit := h.retryWorker.BatchSize()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > h.retryWorker.BatchSize() {
			rest.WriteError(w, application.NewValidationError(
				fmt.Sprintf("limit must be between 1 and %d", h.retryWorker.BatchSize())), h.logger)
			return
		}
		limit = parsed
	}

	stats, err := h.retryWorker.ProcessBatch(r.Context(), limit)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, stats)
}
