package postgres

import (
	"github.com/sotaro-dev/meetup-payments/internal/domain"
)

// toDomainPayment: maps db model to domain entity
func toDomainPayment(m PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:                  m.ID,
		AttendanceID:        m.AttendanceID,
		EventID:             m.EventID,
		Method:              domain.PaymentMethod(m.Method),
		AmountCents:         m.AmountCents,
		Currency:            m.Currency,
		Status:              domain.PaymentStatus(m.Status),
		Version:             m.Version,
		PaidAt:              m.PaidAt,
		RefundedAmountCents: m.RefundedAmountCents,
		ProviderChargeID:    m.ProviderChargeID,
		ProviderIntentID:    m.ProviderIntentID,
		ProviderSessionID:   m.ProviderSessionID,
		SourceEventID:       m.SourceEventID,
		Notes:               m.Notes,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toDomainEvent(m WebhookEventModel) *domain.WebhookEvent {
	ev := &domain.WebhookEvent{
		EventID:           m.EventID,
		Type:              m.EventType,
		Status:            domain.EventStatus(m.Status),
		ProviderCreatedAt: m.ProviderCreatedAt,
		AttemptCount:      m.AttemptCount,
		LastError:         m.LastError,
		ResultSummary:     m.ResultSummary,
		Terminal:          m.Terminal,
		ClaimedAt:         m.ClaimedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.ObjectID != nil {
		ev.ObjectID = *m.ObjectID
	}
	if m.AccountID != nil {
		ev.AccountID = *m.AccountID
	}
	return ev
}

func toDomainDispute(m DisputeModel) *domain.Dispute {
	return &domain.Dispute{
		ID:                m.ID,
		ProviderDisputeID: m.ProviderDisputeID,
		ChargeID:          m.ChargeID,
		PaymentID:         m.PaymentID,
		Status:            m.Status,
		AmountCents:       m.AmountCents,
		Currency:          m.Currency,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// nullable converts an empty string to a NULL-able pointer for optional columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
