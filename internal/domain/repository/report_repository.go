package repository

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
)

type ReportRepository interface {
	Create(ctx context.Context, report *entity.MessageReport) error
	GetByID(ctx context.Context, id string) (*entity.MessageReport, error)
	// Review moves the report to status when its current status is one of
	// allowedFrom, otherwise it fails with INVALID_STATE.
	Review(ctx context.Context, id string, allowedFrom []entity.ReportStatus, status entity.ReportStatus, reviewerID, notes string, at time.Time) (*entity.MessageReport, error)
	List(ctx context.Context, filter entity.ReportFilter) ([]*entity.MessageReport, error)
}
