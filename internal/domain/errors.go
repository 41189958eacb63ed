package domain

import "errors"

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidPaymentMethod = errors.New("invalid payment method for this operation")
	ErrPaymentAlreadyExists = errors.New("a finalized payment already exists for this attendance")
	ErrConcurrentUpdate     = errors.New("payment was modified by another writer")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")

	// ErrAmbiguousPaymentMatch means one provider reference matched more than
	// one payment row. Crediting an ambiguously resolved payment is never
	// acceptable, so this is terminal.
	ErrAmbiguousPaymentMatch = errors.New("provider reference matches multiple payments")
)
