package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/metrics"
	"github.com/sotaro-dev/meetup-payments/internal/webhook"
)

// BatchStats summarizes one redrain pass over the ledger.
type BatchStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RetryWorker periodically redrains unresolved ledger entries through the same
// dispatch path as live deliveries. It always re-fetches the authoritative
// event from the provider by id; a locally cached payload is never replayed.
type RetryWorker struct {
	ledger    application.EventLedger
	provider  application.ProviderClient
	processor *webhook.Processor
	collector *metrics.Collector
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRetryWorker(
	ledger application.EventLedger,
	provider application.ProviderClient,
	processor *webhook.Processor,
	collector *metrics.Collector,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *RetryWorker {
	return &RetryWorker{
		ledger:    ledger,
		provider:  provider,
		processor: processor,
		collector: collector,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// BatchSize reports the configured per-pass cap on redrained entries.
func (w *RetryWorker) BatchSize() int {
	return w.batchSize
}

func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("retry worker started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx, w.batchSize); err != nil {
				w.logger.Error("retry batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch redrains up to limit unresolved entries, oldest first. It is
// also invoked directly by the authenticated retry trigger endpoint.
func (w *RetryWorker) ProcessBatch(ctx context.Context, limit int) (BatchStats, error) {
	if limit <= 0 || limit > w.batchSize {
		limit = w.batchSize
	}

	var stats BatchStats
	entries, err := w.ledger.ListPendingOrFailedOrdered(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("list unresolved events: %w", err)
	}

	if w.collector != nil {
		w.collector.WorkerBatches.Inc()
	}

	for _, entry := range entries {
		stats.Processed++

		// Dedup by object first: an event fulfilled by a different
		// redelivery is marked skipped, not reprocessed.
		if entry.ObjectID != "" {
			done, priorEventID, err := w.ledger.HasProcessedByObject(ctx, entry.Type, entry.ObjectID, entry.AccountID)
			if err != nil {
				w.logger.Error("dedup lookup failed", "event_id", entry.EventID, "error", err)
				stats.Failed++
				w.observe("failed")
				continue
			}
			if done {
				// Resolving a row requires holding the processing claim,
				// so take it over the same transition a live delivery uses.
				outcome, err := w.ledger.BeginProcessing(ctx, *entry)
				if err != nil {
					w.logger.Error("claim for skip failed", "event_id", entry.EventID, "error", err)
					stats.Failed++
					w.observe("failed")
					continue
				}
				if outcome == domain.ClaimProceed {
					if err := w.ledger.MarkSucceeded(ctx, entry.EventID,
						fmt.Sprintf("skipped: object handled by event %s", priorEventID)); err != nil {
						w.logger.Error("mark skipped failed", "event_id", entry.EventID, "error", err)
						stats.Failed++
						w.observe("failed")
						continue
					}
				}
				// ClaimSkip or ClaimBusy: another worker already resolved
				// or currently holds the row.
				stats.Skipped++
				w.observe("skipped")
				continue
			}
		}

		event, err := w.provider.GetEvent(ctx, entry.EventID, entry.AccountID)
		if err != nil {
			// Leave the row as-is; the fetch failure says nothing about the
			// event itself and the next pass will try again.
			w.logger.Error("provider event fetch failed",
				"event_id", entry.EventID,
				"attempts", entry.AttemptCount,
				"error", err)
			stats.Failed++
			w.observe("failed")
			continue
		}

		switch w.processor.ProcessEvent(ctx, event) {
		case webhook.ResultSucceeded:
			stats.Succeeded++
			w.observe("succeeded")
		case webhook.ResultSkipped, webhook.ResultBusy:
			stats.Skipped++
			w.observe("skipped")
		default:
			stats.Failed++
			w.observe("failed")
		}
	}

	if stats.Processed > 0 {
		w.logger.Info("retry batch complete",
			"processed", stats.Processed,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
		)
	}
	return stats, nil
}

func (w *RetryWorker) observe(outcome string) {
	if w.collector != nil {
		w.collector.WorkerEvents.WithLabelValues(outcome).Inc()
	}
}
