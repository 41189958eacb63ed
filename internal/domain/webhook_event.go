package domain

import "time"

// EventStatus tracks the lifecycle of one externally delivered webhook event.
// Transitions: pending -> processing -> succeeded | failed, failed -> processing
// on retry. succeeded is terminal. Rows are never deleted.
type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventSucceeded  EventStatus = "succeeded"
	EventFailed     EventStatus = "failed"
)

// WebhookEvent is a ledger entry for an externally delivered event. EventID is
// the provider's envelope id and is unique; ObjectID is the business object the
// event concerns and backs the secondary dedup index.
type WebhookEvent struct {
	EventID   string
	Type      string
	Status    EventStatus
	ObjectID  string
	AccountID string

	ProviderCreatedAt time.Time
	AttemptCount      int
	LastError         *string
	ResultSummary     *string

	// Terminal marks a failure the retry worker must never revisit.
	Terminal bool

	// ClaimedAt is set while a worker holds the processing claim. A claim
	// older than the configured lease is considered abandoned and may be
	// reclaimed.
	ClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimOutcome is the result of attempting to claim a ledger row for
// processing.
type ClaimOutcome int

const (
	// ClaimProceed means the caller now owns the row and must run the handler.
	ClaimProceed ClaimOutcome = iota
	// ClaimSkip means the event already succeeded (or failed terminally);
	// the handler must not run again.
	ClaimSkip
	// ClaimBusy means another worker holds a live claim on the row.
	ClaimBusy
)

func (c ClaimOutcome) String() string {
	switch c {
	case ClaimProceed:
		return "proceed"
	case ClaimSkip:
		return "skip"
	case ClaimBusy:
		return "busy"
	default:
		return "unknown"
	}
}

const (
	// ReasonMarkSucceededFailed is recorded when the success write itself
	// failed, so the row lands in failed instead of sticking in processing.
	ReasonMarkSucceededFailed = "mark_succeeded_failed"
)
