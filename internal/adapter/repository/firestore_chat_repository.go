package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

const (
	conversationsCollection    = "conversations"
	conversationKeysCollection = "conversation_keys"
	messagesCollection         = "messages"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

type conversationKeyDoc struct {
	Key            string    `firestore:"key"`
	ConversationID string    `firestore:"conversationId"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func keyDocID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (r *firestoreChatRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection)
}

func (r *firestoreChatRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection(messagesCollection)
}

// CreateIfAbsent claims conversation_keys/{hash(key)} and writes the
// conversation in the same transaction. A concurrent creator loses the
// transaction and rereads the winner on retry.
func (r *firestoreChatRepository) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	key := conv.Key()
	keyRef := r.client.Collection(conversationKeysCollection).Doc(keyDocID(key))

	var (
		stored  *entity.Conversation
		created bool
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		stored, created = nil, false

		keySnap, err := tx.Get(keyRef)
		if err == nil {
			var existing conversationKeyDoc
			if err := keySnap.DataTo(&existing); err != nil {
				return errors.Internal("Failed to parse conversation key", err)
			}
			convSnap, err := tx.Get(r.conversations().Doc(existing.ConversationID))
			if err != nil {
				return errors.Internal("Failed to get conversation for key", err)
			}
			stored, err = conversationFromSnapshot(convSnap)
			return err
		}
		if status.Code(err) != codes.NotFound {
			return errors.Internal("Failed to get conversation key", err)
		}

		fresh := cloneConversation(conv)
		if fresh.ID == "" {
			fresh.ID = newID()
		}
		prepareConversation(fresh, time.Now())

		if err := tx.Create(keyRef, conversationKeyDoc{Key: key, ConversationID: fresh.ID, CreatedAt: fresh.CreatedAt}); err != nil {
			return err
		}
		if err := tx.Create(r.conversations().Doc(fresh.ID), fresh); err != nil {
			return err
		}
		stored, created = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, wrapFirestore("Failed to create conversation", err)
	}
	return stored, created, nil
}

func (r *firestoreChatRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return conversationFromSnapshot(doc)
}

func (r *firestoreChatRepository) ListByParticipant(ctx context.Context, userID string, filter entity.ConversationFilter) ([]*entity.Conversation, error) {
	query := r.conversations().Where("participants", "array-contains", userID)
	if filter.Type != "" {
		query = query.Where("type", "==", string(filter.Type))
	}
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}

	// Last activity falls back to createdAt, which Firestore cannot order by
	// in one query, so sorting and limiting happen here.
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while listing conversations for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to list conversations", err)
	}

	var out []*entity.Conversation
	for _, doc := range docs {
		conv, err := conversationFromSnapshot(doc)
		if err != nil {
			log.Printf("Error parsing conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, conv)
	}
	sortByActivity(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *firestoreChatRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ConversationStatus) (*entity.Conversation, error) {
	ref := r.conversations().Doc(id)

	var updated *entity.Conversation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		conv, err := conversationFromSnapshot(snap)
		if err != nil {
			return err
		}
		if conv.Status != from {
			return errors.InvalidState("Conversation status changed concurrently")
		}

		now := time.Now()
		conv.Status = to
		conv.UpdatedAt = now
		updated = conv
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return nil, wrapFirestore("Failed to update conversation status", err, "Conversation")
	}
	return updated, nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) (*entity.Conversation, error) {
	convRef := r.conversations().Doc(msg.ConversationID)
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	msgRef := r.messages(msg.ConversationID).Doc(msg.ID)

	var updated *entity.Conversation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(convRef)
		if err != nil {
			return err
		}
		conv, err := conversationFromSnapshot(snap)
		if err != nil {
			return err
		}
		if conv.Status != entity.ConversationActive {
			return errors.InvalidState("Conversation is not active")
		}

		if recipientID == msg.SenderID {
			return errors.InvalidArgument("Recipient is not the other participant")
		}
		counter := "unread1"
		switch conv.UnreadSlot(recipientID) {
		case 1:
			conv.Unread1++
		case 2:
			conv.Unread2++
			counter = "unread2"
		default:
			return errors.InvalidArgument("Recipient is not the other participant")
		}

		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}

		at := msg.CreatedAt
		conv.LastMessageID = msg.ID
		conv.LastMessageAt = &at
		conv.UpdatedAt = at
		updated = conv

		// Increment is applied by the server, so concurrent senders never
		// overwrite each other's counts.
		return tx.Update(convRef, []firestore.Update{
			{Path: counter, Value: firestore.Increment(1)},
			{Path: "lastMessageId", Value: msg.ID},
			{Path: "lastMessageAt", Value: at},
			{Path: "updatedAt", Value: at},
		})
	})
	if err != nil {
		return nil, wrapFirestore("Failed to append message", err, "Conversation")
	}
	return updated, nil
}

func (r *firestoreChatRepository) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	// Messages live under their conversation, so a lookup by id alone goes
	// through a collection group query on the stored id field.
	iter := r.client.CollectionGroup(messagesCollection).Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Message", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get message", err)
	}
	return messageFromSnapshot(doc)
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*entity.Message, error) {
	query := r.messages(conversationID).OrderBy("id", firestore.Desc)
	if beforeID != "" {
		query = query.Where("id", "<", beforeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}
		msg, err := messageFromSnapshot(doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// maxTransactionWrites is the most documents one Firestore transaction may
// write.
const maxTransactionWrites = 500

// MarkConversationRead commits in transactions of at most
// maxTransactionWrites writes, one of which resets the unread counter, and
// keeps going until nothing is left unread.
func (r *firestoreChatRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	var changed []string
	for {
		ids, more, err := r.markReadBatch(ctx, conversationID, readerID, at, maxTransactionWrites-1)
		if err != nil {
			return nil, wrapFirestore("Failed to mark conversation read", err, "Conversation")
		}
		changed = append(changed, ids...)
		if !more {
			return changed, nil
		}
	}
}

func (r *firestoreChatRepository) markReadBatch(ctx context.Context, conversationID, readerID string, at time.Time, limit int) ([]string, bool, error) {
	convRef := r.conversations().Doc(conversationID)

	var (
		changed []string
		more    bool
	)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = nil

		snap, err := tx.Get(convRef)
		if err != nil {
			return err
		}
		conv, err := conversationFromSnapshot(snap)
		if err != nil {
			return err
		}
		counterpart := conv.Counterpart(readerID)
		if counterpart == "" {
			return errors.Forbidden("Reader is not a participant", nil)
		}

		docs, err := tx.Documents(r.messages(conversationID).Where("senderId", "==", counterpart)).GetAll()
		if err != nil {
			return err
		}
		msgs := make([]*entity.Message, 0, len(docs))
		for _, doc := range docs {
			msg, err := messageFromSnapshot(doc)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}

		var batch []*entity.Message
		batch, more = readBatch(msgs, readerID, limit)
		for _, msg := range batch {
			if err := tx.Update(r.messages(conversationID).Doc(msg.ID), []firestore.Update{
				{Path: "readBy", Value: firestore.ArrayUnion(readerID)},
				{Path: "status", Value: string(msg.Status)},
				{Path: "updatedAt", Value: at},
			}); err != nil {
				return err
			}
			changed = append(changed, msg.ID)
		}

		counter := "unread1"
		if conv.UnreadSlot(readerID) == 2 {
			counter = "unread2"
		}
		return tx.Update(convRef, []firestore.Update{{Path: counter, Value: 0}})
	})
	if err != nil {
		return nil, false, err
	}
	return changed, more, nil
}

// readBatch applies the read to at most limit of msgs. more reports that
// further messages are still unread for readerID.
func readBatch(msgs []*entity.Message, readerID string, limit int) (batch []*entity.Message, more bool) {
	for _, msg := range msgs {
		if msg.SenderID == readerID || msg.ReadByUser(readerID) {
			continue
		}
		if len(batch) == limit {
			return batch, true
		}
		msg.ApplyRead(readerID)
		batch = append(batch, msg)
	}
	return batch, false
}

func (r *firestoreChatRepository) SoftDeleteMessage(ctx context.Context, id string, at time.Time) (*entity.Message, bool, error) {
	existing, err := r.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	ref := r.messages(existing.ConversationID).Doc(id)

	var (
		result  *entity.Message
		changed bool
	)
	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		msg, err := messageFromSnapshot(snap)
		if err != nil {
			return err
		}
		result, changed = msg, msg.ApplySoftDelete(at)
		if !changed {
			return nil
		}
		return tx.Set(ref, msg)
	})
	if err != nil {
		return nil, false, wrapFirestore("Failed to delete message", err, "Message")
	}
	return result, changed, nil
}

func conversationFromSnapshot(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	return &conv, nil
}

func messageFromSnapshot(doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &msg, nil
}

// wrapFirestore passes AppErrors raised inside a transaction through and maps
// a missing document to NotFound for the named resource.
func wrapFirestore(message string, err error, resource ...string) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if status.Code(err) == codes.NotFound && len(resource) > 0 {
		return errors.NotFound(resource[0], err)
	}
	return errors.Internal(message, err)
}
