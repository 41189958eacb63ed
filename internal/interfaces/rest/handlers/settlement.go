package handlers

import (
	"net/http"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
)

type settlementResponse struct {
	EventID          string    `json:"event_id"`
	RevenueCents     int64     `json:"revenue_cents"`
	OutstandingCents int64     `json:"outstanding_cents"`
	RefundedCents    int64     `json:"refunded_cents"`
	PaidCount        int       `json:"paid_count"`
	OpenCount        int       `json:"open_count"`
	RefundedCount    int       `json:"refunded_count"`
	GeneratedAt      time.Time `json:"generated_at"`
}

func toSettlementResponse(s *domain.SettlementSnapshot) settlementResponse {
	return settlementResponse{
		EventID:          s.EventID,
		RevenueCents:     s.RevenueCents,
		OutstandingCents: s.OutstandingCents,
		RefundedCents:    s.RefundedCents,
		PaidCount:        s.PaidCount,
		OpenCount:        s.OpenCount,
		RefundedCount:    s.RefundedCount,
		GeneratedAt:      s.GeneratedAt,
	}
}

// HandleRegenerateSettlement rebuilds the snapshot for one event from current
// payment rows.
func (h *Handlers) HandleRegenerateSettlement(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.settlementSvc.Regenerate(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toSettlementResponse(snapshot))
}

// HandleGetSettlement serves the stored snapshot without recomputing it.
func (h *Handlers) HandleGetSettlement(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.settlementSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toSettlementResponse(snapshot))
}
