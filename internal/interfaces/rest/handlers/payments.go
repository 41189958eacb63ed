package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/application/services"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
)

type createSessionRequest struct {
	AttendanceID string `json:"attendance_id"`
	EventID      string `json:"event_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	SuccessURL   string `json:"success_url"`
	CancelURL    string `json:"cancel_url"`
}

type createSessionResponse struct {
	PaymentID  string `json:"payment_id"`
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
	Reused     bool   `json:"reused"`
}

// HandleCreateSession starts (or resumes) a provider checkout for an
// attendance.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewValidationError("invalid request body"), h.logger)
		return
	}

	result, err := h.checkoutService.CreateSession(r.Context(), services.CreateSessionCommand{
		AttendanceID: req.AttendanceID,
		EventID:      req.EventID,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		SuccessURL:   req.SuccessURL,
		CancelURL:    req.CancelURL,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	rest.WriteJSON(w, status, createSessionResponse{
		PaymentID:  result.PaymentID,
		SessionID:  result.SessionID,
		SessionURL: result.SessionURL,
		Reused:     result.Reused,
	})
}

type registerCashRequest struct {
	AttendanceID string `json:"attendance_id"`
	EventID      string `json:"event_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

type paymentResponse struct {
	PaymentID    string `json:"payment_id"`
	AttendanceID string `json:"attendance_id"`
	EventID      string `json:"event_id"`
	Method       string `json:"method"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Version      int    `json:"version"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		PaymentID:    p.ID,
		AttendanceID: p.AttendanceID,
		EventID:      p.EventID,
		Method:       string(p.Method),
		Status:       string(p.Status),
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Version:      p.Version,
	}
}

// HandleRegisterCash opens a cash payment row for an attendance.
func (h *Handlers) HandleRegisterCash(w http.ResponseWriter, r *http.Request) {
	var req registerCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewValidationError("invalid request body"), h.logger)
		return
	}

	payment, err := h.checkoutService.RegisterCash(r.Context(), services.RegisterCashCommand{
		AttendanceID: req.AttendanceID,
		EventID:      req.EventID,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, toPaymentResponse(payment))
}
