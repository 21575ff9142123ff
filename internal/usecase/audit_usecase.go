package usecase

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/logger"
)

// AuditUseCase appends forensic entries. Entries are written after the action
// they describe has committed, so a failed append is logged rather than
// reported to the caller.
type AuditUseCase struct {
	auditRepo repository.AuditRepository
	now       func() time.Time
}

func NewAuditUseCase(auditRepo repository.AuditRepository) *AuditUseCase {
	return &AuditUseCase{
		auditRepo: auditRepo,
		now:       time.Now,
	}
}

func (uc *AuditUseCase) Record(ctx context.Context, entry *entity.AuditLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = uc.now()
	}
	if err := uc.auditRepo.Append(ctx, entry); err != nil {
		logger.Error("Audit Error: failed to record %s by %s: %v", entry.Action, entry.ActorID, err)
	}
}

func (uc *AuditUseCase) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error) {
	return uc.auditRepo.List(ctx, filter)
}
