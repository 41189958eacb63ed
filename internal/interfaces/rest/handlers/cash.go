package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/application/services"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/interfaces/rest"
)

type cashStatusRequest struct {
	PaymentID       string `json:"payment_id"`
	Status          string `json:"status"`
	ExpectedVersion int    `json:"expected_version"`
	Notes           string `json:"notes,omitempty"`
}

type cashStatusResponse struct {
	PaymentID  string `json:"payment_id"`
	Status     string `json:"status"`
	NewVersion int    `json:"new_version"`
}

// HandleCashStatus applies one operator-initiated cash status change. A stale
// expected_version comes back as 409 CONCURRENT_UPDATE and the client must
// re-fetch before retrying.
func (h *Handlers) HandleCashStatus(w http.ResponseWriter, r *http.Request) {
	var req cashStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewValidationError("invalid request body"), h.logger)
		return
	}

	result, err := h.cashService.UpdateStatus(r.Context(), services.UpdateStatusCommand{
		PaymentID:       req.PaymentID,
		Status:          domain.PaymentStatus(req.Status),
		ExpectedVersion: req.ExpectedVersion,
		Notes:           req.Notes,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, cashStatusResponse{
		PaymentID:  result.PaymentID,
		Status:     string(result.Status),
		NewVersion: result.NewVersion,
	})
}

type bulkCashStatusRequest struct {
	Updates []cashStatusRequest `json:"updates"`
}

type bulkItemResponse struct {
	PaymentID  string `json:"payment_id"`
	NewVersion int    `json:"new_version,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

type bulkCashStatusResponse struct {
	Results   []bulkItemResponse `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// HandleBulkCashStatus applies up to the bulk cap of independent updates.
// Items fail individually; the batch as a whole is rejected only when it is
// malformed or oversized.
func (h *Handlers) HandleBulkCashStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkCashStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewValidationError("invalid request body"), h.logger)
		return
	}

	cmds := make([]services.UpdateStatusCommand, 0, len(req.Updates))
	for _, u := range req.Updates {
		cmds = append(cmds, services.UpdateStatusCommand{
			PaymentID:       u.PaymentID,
			Status:          domain.PaymentStatus(u.Status),
			ExpectedVersion: u.ExpectedVersion,
			Notes:           u.Notes,
		})
	}

	outcomes, err := h.cashService.BulkUpdateStatus(r.Context(), cmds)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	resp := bulkCashStatusResponse{Results: make([]bulkItemResponse, 0, len(outcomes))}
	for _, outcome := range outcomes {
		item := bulkItemResponse{PaymentID: outcome.PaymentID}
		if outcome.Err != nil {
			resp.Failed++
			item.Error = outcome.Err.Error()
			if svcErr, ok := application.IsServiceError(outcome.Err); ok {
				item.ErrorCode = svcErr.Code
				item.Error = svcErr.Message
			}
		} else {
			resp.Succeeded++
			item.NewVersion = outcome.NewVersion
		}
		resp.Results = append(resp.Results, item)
	}

	rest.WriteJSON(w, http.StatusOK, resp)
}
