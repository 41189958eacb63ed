package domain

import "time"

// Dispute mirrors the provider's dispute object for a charge we collected.
// Keyed by the provider dispute id; upserts propagate status changes.
type Dispute struct {
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

// SettlementSnapshot is the per-event money aggregate. It is regenerated
// whole whenever a refund or dispute invalidates prior totals; refunded and
// canceled payments count toward neither revenue nor outstanding balance.
type SettlementSnapshot struct {
	EventID          string
	RevenueCents     int64
	OutstandingCents int64
	RefundedCents    int64
	PaidCount        int
	OpenCount        int
	RefundedCount    int
	GeneratedAt      time.Time
}
