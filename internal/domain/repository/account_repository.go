package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Account, error)
}
