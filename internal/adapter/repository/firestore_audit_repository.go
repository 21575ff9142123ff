package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

// firestoreAuditRepository only ever creates documents. Security rules on
// audit_log should deny update and delete to every client.
type firestoreAuditRepository struct {
	client *firestore.Client
}

func NewFirestoreAuditRepository(client *firestore.Client) repository.AuditRepository {
	return &firestoreAuditRepository{
		client: client,
	}
}

func (r *firestoreAuditRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if _, err := r.client.Collection("audit_log").Doc(entry.ID).Create(ctx, entry); err != nil {
		return errors.Internal("Failed to append audit entry", err)
	}
	return nil
}

func (r *firestoreAuditRepository) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditLogEntry, error) {
	query := r.client.Collection("audit_log").OrderBy("createdAt", firestore.Desc)
	if filter.Action != "" {
		query = query.Where("action", "==", string(filter.Action))
	}
	if filter.ActorID != "" {
		query = query.Where("actorId", "==", filter.ActorID)
	}
	if filter.ConversationID != "" {
		query = query.Where("conversationId", "==", filter.ConversationID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []*entity.AuditLogEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while listing audit log: %v", err)
			return nil, errors.Internal("Failed to list audit log", err)
		}
		var entry entity.AuditLogEntry
		if err := doc.DataTo(&entry); err != nil {
			log.Printf("Error parsing audit entry %s: %v", doc.Ref.ID, err)
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
