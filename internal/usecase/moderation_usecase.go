package usecase

import (
	"context"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/domain/service"
	"marketchat/pkg/errors"
)

// ModerationUseCase is the staff-only view over reports and the audit log.
type ModerationUseCase struct {
	accountRepo repository.AccountRepository
	reportRepo  repository.ReportRepository
	audit       *AuditUseCase
	messaging   *MessagingUseCase
}

func NewModerationUseCase(
	accountRepo repository.AccountRepository,
	reportRepo repository.ReportRepository,
	audit *AuditUseCase,
	messaging *MessagingUseCase,
) *ModerationUseCase {
	return &ModerationUseCase{
		accountRepo: accountRepo,
		reportRepo:  reportRepo,
		audit:       audit,
		messaging:   messaging,
	}
}

// IsModerator reports whether userID belongs to moderation staff. Lookup
// failures other than a missing account are returned.
func (uc *ModerationUseCase) IsModerator(ctx context.Context, userID string) (bool, error) {
	account, err := uc.accountRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return service.IsModerationStaff(account.AccountType), nil
}

func (uc *ModerationUseCase) ListReports(ctx context.Context, moderatorID string, filter entity.ReportFilter) ([]*entity.MessageReport, error) {
	if err := uc.requireModerator(ctx, moderatorID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidArgument("Unknown report status " + string(filter.Status))
	}
	filter.Limit = clampPageSize(filter.Limit)
	return uc.reportRepo.List(ctx, filter)
}

func (uc *ModerationUseCase) GetReport(ctx context.Context, moderatorID, reportID string) (*entity.MessageReport, error) {
	if err := uc.requireModerator(ctx, moderatorID); err != nil {
		return nil, err
	}
	return uc.reportRepo.GetByID(ctx, reportID)
}

func (uc *ModerationUseCase) ListAuditLog(ctx context.Context, moderatorID string, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error) {
	if err := uc.requireModerator(ctx, moderatorID); err != nil {
		return nil, err
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, errors.InvalidArgument("Unknown audit action " + string(filter.Action))
	}
	filter.Limit = clampPageSize(filter.Limit)
	return uc.audit.List(ctx, filter)
}

func (uc *ModerationUseCase) ReviewReport(ctx context.Context, moderatorID, reportID string, status entity.ReportStatus, notes string) (*entity.MessageReport, error) {
	return uc.messaging.ReviewReport(ctx, reportID, moderatorID, status, notes)
}

func (uc *ModerationUseCase) requireModerator(ctx context.Context, userID string) error {
	ok, err := uc.IsModerator(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden("Moderation privileges required", nil)
	}
	return nil
}
