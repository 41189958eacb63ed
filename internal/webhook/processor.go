package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v75"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
	"github.com/sotaro-dev/meetup-payments/internal/metrics"
)

// Result is the final disposition of one delivery attempt.
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultSkipped   Result = "skipped"
	ResultBusy      Result = "busy"
	ResultFailed    Result = "failed"
)

type handlerFunc func(ctx context.Context, ev *DecodedEvent) (string, error)

// Processor runs one event through the full path: ledger claim, dedup by
// business object, typed handler, ledger resolution. Both the live webhook
// endpoint and the retry worker enter here, so retries and redeliveries take
// exactly the same path as first deliveries.
type Processor struct {
	ledger      application.EventLedger
	payments    application.PaymentRepository
	disputes    application.DisputeRepository
	settlements application.SettlementRepository
	resolver    *PaymentResolver
	collector   *metrics.Collector
	logger      *slog.Logger

	handlers        map[EventKind]handlerFunc
	connectHandlers map[EventKind]handlerFunc
}

func NewProcessor(
	ledger application.EventLedger,
	payments application.PaymentRepository,
	disputes application.DisputeRepository,
	settlements application.SettlementRepository,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Processor {
	p := &Processor{
		ledger:      ledger,
		payments:    payments,
		disputes:    disputes,
		settlements: settlements,
		resolver:    NewPaymentResolver(payments),
		collector:   collector,
		logger:      logger,
	}

	p.handlers = map[EventKind]handlerFunc{
		KindCheckoutCompleted: p.handleCheckoutCompleted,
		KindCheckoutExpired:   p.handleCheckoutExpired,
		KindIntentSucceeded:   p.handleIntentSucceeded,
		KindIntentFailed:      p.handleIntentFailed,
		KindChargeRefunded:    p.handleChargeRefunded,
		KindDispute:           p.handleDispute,
	}

	// Connected-account deliveries route through their own handler set.
	// Checkout sessions are created on the platform account only, so the
	// connect set handles the charge-level facts.
	p.connectHandlers = map[EventKind]handlerFunc{
		KindIntentSucceeded: p.handleIntentSucceeded,
		KindIntentFailed:    p.handleIntentFailed,
		KindChargeRefunded:  p.handleChargeRefunded,
		KindDispute:         p.handleDispute,
	}

	return p
}

// ProcessEvent drives one verified event through claim, dedup, handler and
// resolution. Every exit path resolves the ledger row; the one exception is a
// failed MarkSucceeded, which is downgraded to failed/mark_succeeded_failed so
// the retry worker picks the row back up.
func (p *Processor) ProcessEvent(ctx context.Context, ev *stripe.Event) Result {
	decoded, decodeErr := Decode(ev)
	if decodeErr != nil {
		// The envelope was authenticated but the payload shape is off.
		// Claim and fail terminally; redelivering the same bytes cannot help.
		decoded = &DecodedEvent{
			ID:        ev.ID,
			Type:      string(ev.Type),
			AccountID: ev.Account,
			Kind:      KindUnhandled,
			CreatedAt: time.Unix(ev.Created, 0).UTC(),
		}
	}

	logger := p.logger.With(
		"event_id", decoded.ID,
		"event_type", decoded.Type,
		"object_id", decoded.ObjectID(),
		"account_id", decoded.AccountID,
	)

	outcome, err := p.ledger.BeginProcessing(ctx, domain.WebhookEvent{
		EventID:           decoded.ID,
		Type:              decoded.Type,
		ObjectID:          decoded.ObjectID(),
		AccountID:         decoded.AccountID,
		ProviderCreatedAt: decoded.CreatedAt,
	})
	if err != nil {
		logger.Error("ledger claim failed", "error", err)
		return p.observe(ResultFailed)
	}

	switch outcome {
	case domain.ClaimSkip:
		logger.Info("event already resolved, skipping")
		return p.observe(ResultSkipped)
	case domain.ClaimBusy:
		logger.Info("event claimed by another worker")
		return p.observe(ResultBusy)
	}

	if decodeErr != nil {
		logger.Error("payload decode failed", "error", decodeErr)
		p.failEvent(ctx, logger, decoded.ID, "payload_decode_failed", true)
		return p.observe(ResultFailed)
	}

	// Unrecognized types are acknowledged without action, never failed:
	// the provider adds event types faster than we adopt them.
	if decoded.Kind == KindUnhandled {
		p.resolveEvent(ctx, logger, decoded.ID, "ignored: unhandled event type")
		return p.observe(ResultSucceeded)
	}

	// Dedup by business object: a redelivery under a fresh envelope id must
	// not re-run side effects the business layer cannot undo.
	if done, priorEventID, err := p.ledger.HasProcessedByObject(ctx, decoded.Type, decoded.ObjectID(), decoded.AccountID); err != nil {
		logger.Error("dedup lookup failed", "error", err)
		p.failEvent(ctx, logger, decoded.ID, "dedup_lookup_failed", false)
		return p.observe(ResultFailed)
	} else if done {
		logger.Info("object already processed, skipping", "prior_event_id", priorEventID)
		p.resolveEvent(ctx, logger, decoded.ID, fmt.Sprintf("skipped: object handled by event %s", priorEventID))
		return p.observe(ResultSkipped)
	}

	handlers := p.handlers
	if decoded.AccountID != "" {
		handlers = p.connectHandlers
	}
	handle, ok := handlers[decoded.Kind]
	if !ok {
		p.resolveEvent(ctx, logger, decoded.ID, "ignored: not handled for this account scope")
		return p.observe(ResultSucceeded)
	}

	summary, err := handle(ctx, decoded)
	if err != nil {
		terminal := application.IsTerminalError(err)
		logger.Error("handler failed",
			"error", err,
			"class", application.ClassifyError(err),
			"terminal", terminal,
		)
		p.failEvent(ctx, logger, decoded.ID, errorCode(err), terminal)
		return p.observe(ResultFailed)
	}

	logger.Info("event processed", "result", summary)
	p.resolveEvent(ctx, logger, decoded.ID, summary)
	return p.observe(ResultSucceeded)
}

// resolveEvent marks the row succeeded. If that write itself fails the row is
// downgraded to failed so the worker revisits it instead of it sticking in
// processing forever; handlers are safe to re-run thanks to the object dedup.
func (p *Processor) resolveEvent(ctx context.Context, logger *slog.Logger, eventID, summary string) {
	if err := p.ledger.MarkSucceeded(ctx, eventID, summary); err != nil {
		logger.Error("mark succeeded failed, downgrading to failed", "error", err)
		p.failEvent(ctx, logger, eventID, domain.ReasonMarkSucceededFailed, false)
	}
}

func (p *Processor) failEvent(ctx context.Context, logger *slog.Logger, eventID, code string, terminal bool) {
	if err := p.ledger.MarkFailed(ctx, eventID, code, terminal); err != nil {
		// Nothing left to do besides log; the claim lease will eventually
		// surface the row to the worker again.
		logger.Error("mark failed failed", "error", err)
	}
}

func (p *Processor) observe(r Result) Result {
	if p.collector != nil {
		p.collector.ObserveEvent(string(r))
	}
	return r
}

func errorCode(err error) string {
	var svcErr *application.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	if errors.Is(err, domain.ErrAmbiguousPaymentMatch) {
		return "ambiguous_payment_match"
	}
	if errors.Is(err, postgres.ErrPaymentNotFound) {
		return "payment_not_found"
	}
	return "handler_error"
}
