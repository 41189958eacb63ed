package application

import (
	"errors"
	"fmt"
	"net/http"
)

// APPLICATION-LEVEL ERRORS (Orchestration)

type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodePaymentAlreadyExists = "PAYMENT_ALREADY_EXISTS"
	ErrCodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	ErrCodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	ErrCodeConcurrentUpdate     = "CONCURRENT_UPDATE"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

func NewValidationError(msg string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewUnauthorizedError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeUnauthorized,
		Message:    "Missing or invalid credentials",
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewNotFoundError(what string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    what + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

func NewPaymentAlreadyExistsError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodePaymentAlreadyExists,
		Message:    "A finalized payment already exists for this attendance",
		HTTPStatus: http.StatusConflict,
	}
}

func NewInvalidTransitionError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidTransition,
		Message:    "Requested status change is not allowed",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewInvalidPaymentMethodError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidPaymentMethod,
		Message:    "Operation is not valid for this payment method",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewConcurrentUpdateError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeConcurrentUpdate,
		Message:    "Payment was modified by another writer; re-fetch and resubmit",
		HTTPStatus: http.StatusConflict,
	}
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
