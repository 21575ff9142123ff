package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

// firestoreAccountRepository reads the users collection owned by the account
// service. Messaging never writes to it.
type firestoreAccountRepository struct {
	client *firestore.Client
}

func NewFirestoreAccountRepository(client *firestore.Client) repository.AccountRepository {
	return &firestoreAccountRepository{
		client: client,
	}
}

func (r *firestoreAccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Account", err)
		}
		return nil, errors.Internal("Failed to get account", err)
	}

	var account entity.Account
	if err := doc.DataTo(&account); err != nil {
		return nil, errors.Internal("Failed to parse account data", err)
	}
	if account.ID == "" {
		account.ID = doc.Ref.ID
	}
	return &account, nil
}
