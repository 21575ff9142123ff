package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditLogEntry) error
	List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error)
}
