package usecase

import (
	"context"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/service"
	"marketchat/internal/infrastructure/metrics"
	"marketchat/pkg/logger"
)

type PresenceView struct {
	UserID string                `json:"user_id"`
	Status entity.PresenceStatus `json:"status"`
}

// PresenceUseCase answers "is this user reachable". Backend failures degrade
// to PresenceUnknown instead of an error.
type PresenceUseCase struct {
	tracker service.PresenceTracker
}

func NewPresenceUseCase(tracker service.PresenceTracker) *PresenceUseCase {
	return &PresenceUseCase{tracker: tracker}
}

func (uc *PresenceUseCase) GetPresence(ctx context.Context, userID string) *PresenceView {
	view := &PresenceView{UserID: userID, Status: entity.PresenceOffline}

	online, err := uc.tracker.IsOnline(ctx, userID)
	if err != nil {
		logger.Warn("Presence lookup for %s failed: %v", userID, err)
		metrics.PresenceErrors.Inc()
		view.Status = entity.PresenceUnknown
		return view
	}
	if online {
		view.Status = entity.PresenceOnline
	}
	return view
}

func (uc *PresenceUseCase) ListOnline(ctx context.Context) ([]entity.PresenceRecord, error) {
	return uc.tracker.ListOnline(ctx)
}
