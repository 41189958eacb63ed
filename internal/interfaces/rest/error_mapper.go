package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError maps application errors to HTTP responses. Concurrency conflicts
// ("someone else got there first") and business-rule rejections ("not a valid
// operation") carry distinct codes so operators can tell them apart.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	code := application.ErrCodeInternal
	message := "An internal error occurred"

	if svcErr, ok := application.IsServiceError(err); ok {
		status = svcErr.HTTPStatus
		code = svcErr.Code
		message = svcErr.Message
	} else {
		switch {
		case errors.Is(err, domain.ErrConcurrentUpdate):
			status, code, message = http.StatusConflict, application.ErrCodeConcurrentUpdate, err.Error()
		case errors.Is(err, domain.ErrPaymentAlreadyExists):
			status, code, message = http.StatusConflict, application.ErrCodePaymentAlreadyExists, err.Error()
		case errors.Is(err, domain.ErrInvalidTransition):
			status, code, message = http.StatusConflict, application.ErrCodeInvalidTransition, err.Error()
		case errors.Is(err, domain.ErrInvalidPaymentMethod):
			status, code, message = http.StatusConflict, application.ErrCodeInvalidPaymentMethod, err.Error()
		case errors.Is(err, postgres.ErrPaymentNotFound):
			status, code, message = http.StatusNotFound, application.ErrCodeNotFound, err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
