package postgres

import "time"

// PaymentModel mirrors the payments table row.
type PaymentModel struct {
	ID                  string
	AttendanceID        string
	EventID             string
	Method              string
	AmountCents         int64
	Currency            string
	Status              string
	Version             int
	PaidAt              *time.Time
	RefundedAmountCents int64
	ProviderChargeID    *string
	ProviderIntentID    *string
	ProviderSessionID   *string
	SourceEventID       *string
	Notes               *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// WebhookEventModel mirrors the webhook_events ledger table row. Rows are
// claimed and resolved, never deleted.
type WebhookEventModel struct {
	EventID           string
	EventType         string
	Status            string
	ObjectID          *string
	AccountID         *string
	ProviderCreatedAt time.Time
	AttemptCount      int
	LastError         *string
	ResultSummary     *string
	Terminal          bool
	ClaimedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type DisputeModel struct {
	ID                string
	ProviderDisputeID string
	ChargeID          string
	PaymentID         *string
	Status            string
	AmountCents       int64
	Currency          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
