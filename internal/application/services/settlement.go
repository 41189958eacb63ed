package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sotaro-dev/meetup-payments/internal/application"
	"github.com/sotaro-dev/meetup-payments/internal/domain"
	"github.com/sotaro-dev/meetup-payments/internal/infrastructure/persistence/postgres"
)

// SettlementService regenerates and serves per-event settlement snapshots.
type SettlementService struct {
	settlements application.SettlementRepository
	logger      *slog.Logger
}

func NewSettlementService(settlements application.SettlementRepository, logger *slog.Logger) *SettlementService {
	return &SettlementService{settlements: settlements, logger: logger}
}

// Regenerate rebuilds the snapshot from current payment rows. Safe to call
// any number of times: the same underlying state yields the same snapshot.
func (s *SettlementService) Regenerate(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	if eventID == "" {
		return nil, application.NewValidationError("event_id is required")
	}

	snapshot, err := s.settlements.Regenerate(ctx, eventID)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("settlement snapshot regenerated",
		"event_id", eventID,
		"revenue_cents", snapshot.RevenueCents,
		"outstanding_cents", snapshot.OutstandingCents,
		"refunded_cents", snapshot.RefundedCents,
	)
	return snapshot, nil
}

func (s *SettlementService) Get(ctx context.Context, eventID string) (*domain.SettlementSnapshot, error) {
	snapshot, err := s.settlements.Find(ctx, eventID)
	if err != nil {
		if errors.Is(err, postgres.ErrSnapshotNotFound) {
			return nil, application.NewNotFoundError("settlement snapshot")
		}
		return nil, application.NewInternalError(err)
	}
	return snapshot, nil
}
