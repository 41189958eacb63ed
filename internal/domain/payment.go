// Package domain holds the payment, webhook-event and dispute entities and the
// rules that decide which record wins when several of them disagree.
package domain

import (
	"errors"
	"sort"
	"time"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusFailed   PaymentStatus = "failed"
	StatusPaid     PaymentStatus = "paid"
	StatusReceived PaymentStatus = "received"
	StatusWaived   PaymentStatus = "waived"
	StatusCanceled PaymentStatus = "canceled"
	StatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod distinguishes provider-collected payments from cash handed to
// an operator at the door.
type PaymentMethod string

const (
	MethodProvider PaymentMethod = "provider"
	MethodCash     PaymentMethod = "cash"
)

// statusRank orders statuses by finality. received and paid share a rank on
// purpose: a cash receipt and a card payment are equally final.
var statusRank = map[PaymentStatus]int{
	StatusPending:  10,
	StatusFailed:   15,
	StatusPaid:     20,
	StatusReceived: 20,
	StatusWaived:   25,
	StatusCanceled: 35,
	StatusRefunded: 40,
}

// Rank returns the finality rank of a status. Unknown statuses rank lowest.
func Rank(s PaymentStatus) int {
	return statusRank[s]
}

// IsTerminalStatus reports whether a status closes the payment attempt.
func IsTerminalStatus(s PaymentStatus) bool {
	switch s {
	case StatusPaid, StatusReceived, StatusWaived, StatusCanceled, StatusRefunded:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID           string
	AttendanceID string
	EventID      string
	Method       PaymentMethod
	AmountCents  int64
	Currency     string
	Status       PaymentStatus

	// Version guards every manual mutation; it moves by exactly one per
	// successful write.
	Version int

	PaidAt              *time.Time
	RefundedAmountCents int64

	ProviderChargeID  *string
	ProviderIntentID  *string
	ProviderSessionID *string
	SourceEventID     *string

	Notes *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPayment(id, attendanceID, eventID string, method PaymentMethod, amountCents int64, currency string) (*Payment, error) {
	if id == "" {
		return nil, errors.New("payment ID is required")
	}
	if attendanceID == "" {
		return nil, errors.New("attendance ID is required")
	}
	if eventID == "" {
		return nil, errors.New("event ID is required")
	}
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	return &Payment{
		ID:           id,
		AttendanceID: attendanceID,
		EventID:      eventID,
		Method:       method,
		AmountCents:  amountCents,
		Currency:     currency,
		Status:       StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsTerminal reports whether this payment is closed.
func (p *Payment) IsTerminal() bool {
	return IsTerminalStatus(p.Status)
}

// IsOpen reports whether the attempt can still move forward.
func (p *Payment) IsOpen() bool {
	return !p.IsTerminal()
}

// EffectiveTime is the timestamp used to rank competing payment rows for the
// same attendance. A terminal row is ranked by when it settled, an open row by
// when it last moved.
func (p *Payment) EffectiveTime() time.Time {
	if p.IsTerminal() && p.PaidAt != nil {
		return *p.PaidAt
	}
	if !p.UpdatedAt.IsZero() {
		return p.UpdatedAt
	}
	return p.CreatedAt
}

// Authoritative picks the single row that currently speaks for the attendance:
// greatest effective time, ties broken by created_at, then by ID so the result
// is stable no matter which writer produced the rows. Returns nil for an empty
// slice.
func Authoritative(payments []*Payment) *Payment {
	if len(payments) == 0 {
		return nil
	}
	sorted := make([]*Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].EffectiveTime(), sorted[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted[0]
}

// CanManuallyTransitionTo validates an operator-initiated status change.
// Only a still-open cash payment may be marked received or waived.
func (p *Payment) CanManuallyTransitionTo(target PaymentStatus) error {
	if target != StatusReceived && target != StatusWaived {
		return ErrInvalidTransition
	}
	if p.Method != MethodCash {
		return ErrInvalidPaymentMethod
	}
	if p.Status != StatusPending && p.Status != StatusFailed {
		return ErrInvalidTransition
	}
	return nil
}

// MarkPaid records a provider-confirmed payment.
func (p *Payment) MarkPaid(chargeID, intentID string, paidAt time.Time, sourceEventID string) {
	p.Status = StatusPaid
	if chargeID != "" {
		p.ProviderChargeID = &chargeID
	}
	if intentID != "" {
		p.ProviderIntentID = &intentID
	}
	p.PaidAt = &paidAt
	p.SourceEventID = &sourceEventID
	p.UpdatedAt = time.Now()
}

// MarkFailed records a provider-reported failure. Terminal rows are left alone
// so that a late failure event cannot reopen a settled payment.
func (p *Payment) MarkFailed(sourceEventID string) {
	if p.IsTerminal() {
		return
	}
	p.Status = StatusFailed
	p.SourceEventID = &sourceEventID
	p.UpdatedAt = time.Now()
}

// MarkRefunded records a confirmed refund and the refunded amount.
func (p *Payment) MarkRefunded(amountCents int64, sourceEventID string) {
	p.Status = StatusRefunded
	p.RefundedAmountCents = amountCents
	p.SourceEventID = &sourceEventID
	p.UpdatedAt = time.Now()
}

// MarkCanceled records an expired or abandoned provider session.
func (p *Payment) MarkCanceled(sourceEventID string) {
	if p.IsTerminal() {
		return
	}
	p.Status = StatusCanceled
	p.SourceEventID = &sourceEventID
	p.UpdatedAt = time.Now()
}
